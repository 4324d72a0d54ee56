// Package apiclient talks to a running `s3sync serve` instance.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/server/handlers/api"
	"github.com/tradedata/s3sync/internal/server/handlers/files"
	"github.com/tradedata/s3sync/internal/version"
)

const (
	v1Files  = "/v1/files"
	v1URL    = "/v1/url"
	v1Status = "/v1/status"
	v1Sync   = "/v1/sync"
)

var ErrNoServerURL = errors.New("apiclient: server url missing")

type Client struct {
	client *req.Client
}

// New returns a client for baseURL. An empty token sends no Authorization header.
func New(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoServerURL
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	client := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(version.UserAgent()).
		SetTimeout(10*time.Minute).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(500*time.Millisecond).
		SetCommonErrorResult(&api.APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
	if token != "" {
		client.SetCommonBearerAuthToken(token)
	}
	return &Client{client: client}, nil
}

func (c *Client) Status(ctx context.Context) (status *foldersync.JobStatus, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&status).
		Get(v1Status)
	if err := handleAPIError(resp, err, "status"); err != nil {
		return nil, err
	}
	return status, nil
}

// Sync triggers a run and waits for its result. A run already in progress fails with a
// CodeSyncBusy APIError.
func (c *Client) Sync(ctx context.Context) (result *files.SyncResponse, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetSuccessResult(&result).
		Post(v1Sync)
	if err := handleAPIError(resp, err, "sync"); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) List(ctx context.Context, prefix string) (list *files.ListResponse, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("prefix", prefix).
		SetSuccessResult(&list).
		Get(v1Files)
	if err := handleAPIError(resp, err, "list"); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) PresignURL(ctx context.Context, path string) (url *files.PresignResponse, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("path", path).
		SetSuccessResult(&url).
		Get(v1URL)
	if err := handleAPIError(resp, err, "presign"); err != nil {
		return nil, err
	}
	return url, nil
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*api.APIError); ok && apiErr.Code != "" {
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("%s: unexpected status %s", operation, resp.Status)
	}
	return nil
}
