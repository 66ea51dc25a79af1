package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tejusbharadwaj/univers/internal/ferrors"
)

// ErrPageFull means a raw history call filled its page, so samples past the
// page may be missing. It is not retryable: the same range returns the same page.
var ErrPageFull = errors.New("raw history page is full, samples may be missing")

// StatusError is a gateway rejection, either an HTTP status or an envelope code.
// It unwraps to the matching ferrors sentinel so callers can use errors.Is.
type StatusError struct {
	HTTPStatus int
	Code       int
	Message    string
	kind       error
}

func newStatusError(httpStatus, code int, message string) *StatusError {
	if len(message) > 512 {
		message = message[:512]
	}
	return &StatusError{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
		kind:       classify(httpStatus, code),
	}
}

func (e *StatusError) Error() string {
	prefix := "poseidon api error"
	if e.kind != nil {
		prefix = e.kind.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: http %d, code %d: %s", prefix, e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: http %d: %s", prefix, e.HTTPStatus, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// classify maps a rejection to the error taxonomy. Envelope codes reuse HTTP
// semantics, so the envelope code wins when present.
func classify(httpStatus, code int) error {
	status := httpStatus
	if code != 0 {
		status = code
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ferrors.ErrAuthentication
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500 && status <= 599:
		return ferrors.ErrTransientFetch
	default:
		return nil
	}
}
