package api

const (
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeUnauthorized   = "E_UNAUTHORIZED"    // missing or invalid bearer token

	CodeObjectNotFound = "E_OBJECT_NOT_FOUND"  // no object for the requested path
	CodePresignFailed  = "E_PRESIGN_FAILED"    // the store refused to presign
	CodeCacheReadError = "E_CACHE_READ_FAILED" // sync cache could not be read
	CodeSyncBusy       = "E_SYNC_BUSY"         // a sync run is already in progress
	CodeSyncFailed     = "E_SYNC_FAILED"       // the sync run aborted
)
