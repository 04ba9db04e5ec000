package portal

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a non-2xx portal response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal returned %d: %s", e.Code, e.Body)
}

// IsTransient reports whether err is worth retrying with backoff
// (network failures and 5xx responses).
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	// Non-status errors are transport-level failures.
	return err != nil
}

// IsUnauthorized reports whether err means the session credential expired.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// IsPermanent reports whether err is a 4xx (other than 401) that must not be
// retried.
func IsPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusUnauthorized
}
