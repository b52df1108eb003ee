package google

import (
	"errors"
	"fmt"
)

// ErrConsentRequired is returned when a mailbox needs interactive consent but
// the store has no consent flow configured.
var ErrConsentRequired = errors.New("mailbox has no usable credential and interactive consent is not available")

// ErrInvalidMailbox is returned for identifiers that cannot name a credential file.
var ErrInvalidMailbox = errors.New("invalid mailbox identifier")

// CredentialError reports a failure to obtain or use a mailbox credential.
type CredentialError struct {
	Op      string
	Mailbox string
	Err     error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s for %s: %v", e.Op, e.Mailbox, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// IsCredentialError reports whether err is or wraps a CredentialError.
func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}
