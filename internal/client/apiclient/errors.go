package apiclient

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/artforge/internal/client/models"
)

var (
	ErrInvalidCredential = errors.New("invalid or missing API credential")
	ErrInvalidImage      = models.ErrInvalidImage
	ErrEmptyPrompt       = errors.New("prompt must not be empty")
	ErrInvalidResponse   = errors.New("invalid response from image API")
	ErrRateLimited       = errors.New("rate limited by image API")
	ErrServerError       = errors.New("image API server error")
	ErrUnknown           = errors.New("unknown image API error")
)

// RemoteError carries the error message the API returned with a non-2xx status.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("image API error (status %d): %s", e.StatusCode, e.Message)
}

// TransportError wraps network-level failures: DNS, TLS, timeouts, resets.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorKind maps an error returned by this package to a stable identifier
// suitable for logs and user-facing messages.
func ErrorKind(err error) string {
	var remote *RemoteError
	var transport *TransportError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, ErrEmptyPrompt):
		return "empty_prompt"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServerError):
		return "server_error"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.As(err, &transport):
		return "transport"
	default:
		return "unknown"
	}
}
