package gmail

import (
	"errors"
	"fmt"
)

// ProviderCallError reports a failed Gmail API call.
type ProviderCallError struct {
	Op      string
	Mailbox string
	Err     error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("gmail %s failed: %v", e.Op, e.Err)
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing message, attachment or local file.
type NotFoundError struct {
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found - %s", e.What, e.ID)
}

// ValidationError reports an invalid argument detected before any provider call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsProviderCallError reports whether err wraps a ProviderCallError.
func IsProviderCallError(err error) bool {
	var pce *ProviderCallError
	return errors.As(err, &pce)
}

// NotFoundID returns the id of the NotFoundError wrapped by err, if any.
func NotFoundID(err error) (string, bool) {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return "", false
	}
	return nf.ID, true
}
