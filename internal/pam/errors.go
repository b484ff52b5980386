package pam

import (
	"errors"
	"fmt"
	"net/http"
)

// Operation names used in errors, logs and metrics.
const (
	OpSignIn       = "sign-in"
	OpListAccounts = "list-accounts"
	OpCheckout     = "checkout"
	OpListRequests = "list-requests"
	OpCredential   = "credential"
	OpCheckin      = "checkin"
	OpSafe         = "safe"
)

// Error is a non-success HTTP response from Password Safe.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("beyondtrust %s error (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("beyondtrust %s error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("beyondtrust %s error: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the response status, 0 when there was none.
func (e *Error) HTTPStatus() int {
	return e.StatusCode
}

// IsConflict reports whether a checkout was refused because a request for
// the account is already outstanding. Password Safe answers 409, or 403 for
// some run-as configurations.
func (e *Error) IsConflict() bool {
	return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusForbidden
}

// StatusCode extracts the HTTP status from err, 0 if err carries none.
func StatusCode(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

// IsConflict reports whether err is a checkout conflict.
func IsConflict(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.IsConflict()
}

// ErrDecode marks a response body that could not be understood.
var ErrDecode = errors.New("beyondtrust: malformed response body")
