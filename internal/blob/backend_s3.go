package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3 accepts at most this many keys per DeleteObjects request
const deleteBatchSize = 1000

type S3Backend struct {
	s3Client    *s3.Client
	s3Presigner *s3.PresignClient
	config      *S3Config
}

func NewS3Backend(s3Client *s3.Client, cfg *S3Config) *S3Backend {
	return &S3Backend{
		s3Client:    s3Client,
		s3Presigner: s3.NewPresignClient(s3Client),
		config:      cfg,
	}
}

// NewS3BackendWithConfig builds an S3 client for the configured provider. Without static keys
// the default AWS credential chain is used.
func NewS3BackendWithConfig(ctx context.Context, cfg *S3Config) (*S3Backend, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   64,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		// whole objects go through a single request, keep this generous
		Timeout: 10 * time.Minute,
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle()
		o.UseAccelerate = cfg.UseAccelerate
	})

	slog.Debug("s3 backend", "provider", cfg.Provider, "bucket", cfg.BucketName, "region", cfg.Region, "endpoint", cfg.Endpoint)
	return NewS3Backend(client, cfg), nil
}

func (s *S3Backend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, params.Key)
	}

	input := &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           &params.Key,
		Body:          params.Body,
		ContentLength: aws.Int64(params.Size),
		Metadata:      params.Metadata,
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}

	resp, err := s.s3Client.PutObject(ctx, input)
	if err != nil {
		return nil, err
	}

	// PutObjectOutput has no LastModified
	return &PutObjectResponse{
		Key:          params.Key,
		Size:         params.Size,
		Version:      aws.ToString(resp.VersionId),
		ETag:         cleanETag(aws.ToString(resp.ETag)),
		LastModified: time.Now().UTC(),
	}, nil
}

func (s *S3Backend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}

	return &GetObjectResponse{
		Body:         resp.Body,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         cleanETag(aws.ToString(resp.ETag)),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

func (s *S3Backend) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	resp, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         cleanETag(aws.ToString(resp.ETag)),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

func (s *S3Backend) ListObjects(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	var objects []*ObjectInfo

	input := &s3.ListObjectsV2Input{Bucket: &s.config.BucketName}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, &ObjectInfo{
				Key:          aws.ToString(obj.Key),
				ETag:         cleanETag(aws.ToString(obj.ETag)),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

func (s *S3Backend) DeleteObject(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	})
	// S3 itself answers 204 for absent keys, some compatible stores do not
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *S3Backend) DeleteObjects(ctx context.Context, keys []string) error {
	var errs []error
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		resp, err := s.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &s.config.BucketName,
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		for _, e := range resp.Errors {
			if aws.ToString(e.Code) == "NoSuchKey" {
				continue
			}
			errs = append(errs, fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(errs...)
}

func (s *S3Backend) CopyObject(ctx context.Context, params *CopyObjectParams) (*CopyObjectResponse, error) {
	if !ValidateKey(params.SourceKey) {
		return nil, fmt.Errorf("%w: source %q", ErrInvalidKey, params.SourceKey)
	}
	if !ValidateKey(params.DestinationKey) {
		return nil, fmt.Errorf("%w: destination %q", ErrInvalidKey, params.DestinationKey)
	}

	resp, err := s.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &s.config.BucketName,
		CopySource: aws.String(fmt.Sprintf("%s/%s", s.config.BucketName, params.SourceKey)),
		Key:        &params.DestinationKey,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, params.SourceKey)
		}
		return nil, err
	}

	result := &CopyObjectResponse{}
	if resp.CopyObjectResult != nil {
		result.ETag = cleanETag(aws.ToString(resp.CopyObjectResult.ETag))
		result.LastModified = aws.ToTime(resp.CopyObjectResult.LastModified)
	}
	return result, nil
}

func (s *S3Backend) PresignGetObject(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !ValidateKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	req, err := s.s3Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.config.BucketName,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

var _ Backend = (*S3Backend)(nil)
