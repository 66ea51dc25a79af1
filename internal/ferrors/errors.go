package ferrors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the Poseidon client and the export pipeline.
var (
	// ErrInvalidRequest is a caller error. Never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAuthentication means the gateway rejected the project's credentials.
	// Never retried; aborts the whole export.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNoModelsFound means model enumeration returned nothing. The gateway
	// does this for some credential mistakes instead of failing outright.
	ErrNoModelsFound = errors.New("no models found")

	// ErrTransientFetch covers network and rate-limit failures. Retried per chunk.
	ErrTransientFetch = errors.New("transient fetch failure")

	// ErrCanceled means the caller canceled the export. No result is returned.
	ErrCanceled = errors.New("export canceled")
)

// CredentialHint is shown next to authentication and empty-model errors.
const CredentialHint = "check the project's access key, secret key (hyphenated, e.g. xxxx-xxxx-xxxx-xxxx), API gateway and organization id"

// Wrap wraps an error with a message
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// IsCredentialProblem reports whether err should be shown with CredentialHint.
func IsCredentialProblem(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrNoModelsFound)
}
