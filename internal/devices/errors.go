package devices

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrNotBound is returned by Device accessors when no working credential
// was bound at construction time.
var ErrNotBound = errors.New("device has no working credential")

// ErrNoValidCredentials is returned when every supplied credential of a
// device fails validation.
var ErrNoValidCredentials = errors.New("no valid credentials")

// ValidationError reports a connection parameter that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CredentialError reports a private key that exists but cannot be used.
type CredentialError struct {
	Path string
	Err  error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential key %s: %v", e.Path, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// PermissionError reports a private key file or key-store directory whose
// permissions are too open to trust.
type PermissionError struct {
	Path string
	Mode fs.FileMode
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permissions %04o for %s are too open", e.Mode, e.Path)
}
