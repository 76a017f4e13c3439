package docsdk

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL = errors.New("sdk: server url missing")
	ErrNoAuthToken = errors.New("sdk: auth token missing")
)

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	// Document errors
	CodeDocNotFound     = "E_DOC_NOT_FOUND"     // the document could not be found
	CodeDocInvalid      = "E_DOC_INVALID"       // the document payload is malformed
	CodeVersionConflict = "E_VERSION_CONFLICT"  // the server copy advanced past the client's base version
	CodeDocDeleteFailed = "E_DOC_DELETE_FAILED" // a failure while deleting the document
)

// APIError is the error body the backend returns for non-2xx responses.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// ConflictError reports a rejected replay: the backend's version of the
// document advanced independently of the queued local action.
type ConflictError struct {
	DocumentID    string `json:"documentId"`
	ServerVersion int64  `json:"serverVersion"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: document %s is at server version %d", e.DocumentID, e.ServerVersion)
}

// IsConflict reports whether err is a version conflict. Conflicts are never
// retried; they require explicit resolution.
func IsConflict(err error) bool {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return true
	}
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == CodeVersionConflict
}

// IsNotFound reports whether err means the document does not exist remotely.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == CodeDocNotFound
}

// IsTransient reports whether err is worth retrying on a later sync cycle:
// network failures, timeouts, rate limits and server-side 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsConflict(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.status >= 500 || ae.Code == CodeRateLimited || ae.Code == CodeInternalError
	}
	// an error without a decoded API body is a broken transport
	return true
}

// handleAPIError folds the req error/response pair into a single error.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok {
			apiErr.status = resp.StatusCode
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("api error: %s: http %d", operation, resp.StatusCode)
	}

	return nil
}
