// Package errors defines the error taxonomy shared by the storage, cache and
// session layers. Callers match with errors.Is against the sentinels below.
package errors

import (
	"errors"
	"fmt"
)

// Setup errors indicate invalid input or configuration.
var (
	// ErrConfiguration indicates invalid setup, such as an empty passphrase or a
	// remote without a URL.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrValidation indicates a caller supplied invalid arguments.
	ErrValidation = errors.New("validation failed")
)

// Cryptographic errors indicate that stored data could not be read back.
var (
	// ErrDecryption indicates ciphertext failed to authenticate or decrypt.
	ErrDecryption = errors.New("decryption failed")

	// ErrInvalidPassphrase indicates the supplied passphrase does not match the
	// data stored for the account.
	ErrInvalidPassphrase = errors.New("invalid passphrase")
)

// State errors indicate the caller used the store in a state that does not
// allow the operation.
var (
	// ErrNotFound indicates a mutation referenced an id absent from the cache.
	ErrNotFound = errors.New("not found")

	// ErrLocked indicates access to decrypted data while the session is locked.
	ErrLocked = errors.New("cannot access database while locked")

	// ErrNoRemote indicates a remote operation was requested without a
	// configured remote replica.
	ErrNoRemote = errors.New("no remote sync configured")
)

const decryptHint = "incorrect passphrase or corrupted data"

// DecryptionError wraps a failed decrypt. Error() never includes the cause so
// cipher internals stay out of user-facing messages; Unwrap keeps it for logs.
type DecryptionError struct {
	Reason string
	Cause  error
}

// NewDecryptionError returns a DecryptionError for the given reason and cause.
func NewDecryptionError(reason string, cause error) *DecryptionError {
	return &DecryptionError{Reason: reason, Cause: cause}
}

func (e *DecryptionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", ErrDecryption, decryptHint)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrDecryption, e.Reason, decryptHint)
}

func (e *DecryptionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDecryption}
	}
	return []error{ErrDecryption, e.Cause}
}

type passphraseError struct {
	cause error
}

// InvalidPassphrase remaps an unlock-time failure to ErrInvalidPassphrase.
// The message is exactly "invalid passphrase"; the cause stays reachable
// through errors.As for logging.
func InvalidPassphrase(cause error) error {
	return &passphraseError{cause: cause}
}

func (e *passphraseError) Error() string { return ErrInvalidPassphrase.Error() }

func (e *passphraseError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrInvalidPassphrase}
	}
	return []error{ErrInvalidPassphrase, e.cause}
}

// Configuration returns an ErrConfiguration carrying detail.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validation returns an ErrValidation carrying detail.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
