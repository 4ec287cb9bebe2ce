package remote

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// APIError carries the status code and endpoint context of a failed call.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Timeout    bool
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote API %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote API %s: %s", e.Endpoint, e.Message)
}

// IsRetryable reports whether an error is a transient failure worth another
// attempt: 429 and 5xx responses, timeouts, and raw network errors.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Timeout {
			return true
		}
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		case 0:
			// Transport-level failure without a response.
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsRateLimited reports whether the upstream rejected the call with 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newStatusError(endpoint string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
		Message:    string(body),
	}
}
