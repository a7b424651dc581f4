package realdebrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ochronus/godebrid/internal/services/retry"
)

// Session and authorization errors.
var (
	ErrAuthFailed     = errors.New("real-debrid: authorization failed")
	ErrNotOAuth2      = errors.New("real-debrid: session is not an oauth2 session")
	ErrNotRefreshable = errors.New("real-debrid: session has no refresh token")
	ErrRefreshFailed  = errors.New("real-debrid: token refresh failed")
)

// Endpoint errors. An *APIError unwraps to one of these.
var (
	ErrBadToken               = errors.New("real-debrid: bad token")
	ErrPermissionDenied       = errors.New("real-debrid: permission denied")
	ErrNotPremium             = errors.New("real-debrid: account not premium")
	ErrNoContent              = errors.New("real-debrid: no content")
	ErrUnknownResource        = errors.New("real-debrid: unknown resource")
	ErrBadRequest             = errors.New("real-debrid: bad request")
	ErrServiceUnavailable     = errors.New("real-debrid: service unavailable")
	ErrFileUnavailable        = errors.New("real-debrid: file unavailable")
	ErrProblemFindingMetadata = errors.New("real-debrid: problem finding metadata")
	ErrActionAlreadyDone      = errors.New("real-debrid: action already done")
	ErrPathNotRight           = errors.New("real-debrid: torrent file path not readable")
	ErrUndefined              = errors.New("real-debrid: undefined response")
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is returned when Real-Debrid answers with a status the endpoint
// treats as a failure.
type APIError struct {
	StatusCode int
	Kind       error
	Message    string
	Code       int
	// RetryAfter is the server-advised delay, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v (status %d, %s, code %d)", e.Kind, e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// RetryDelay returns the Retry-After advice of a rate-limited or
// unavailable answer.
func (e *APIError) RetryDelay() time.Duration {
	return e.RetryAfter
}

type errorBody struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

func newAPIError(resp *http.Response, kind error) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Kind:       kind,
		RetryAfter: retry.RetryAfterDelay(resp.Header.Get("Retry-After"), 0),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body errorBody
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Error
		apiErr.Code = body.ErrorCode
	}
	return apiErr
}

// IsTransient reports whether err is worth retrying: rate limiting, gateway
// failures, an unavailable service or a network fault.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return errors.Is(apiErr.Kind, ErrServiceUnavailable)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
