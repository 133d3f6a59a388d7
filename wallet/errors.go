// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wallet

// ErrorKind identifies a kind of error that can be used to define new errors
// via const SomeError = wallet.ErrorKind("something").
type ErrorKind string

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Well-known error kinds shared between the session core and its
// collaborators.
const (
	// ErrNotConnected is returned when an operation requires a connected
	// wallet service and there is none.
	ErrNotConnected = ErrorKind("wallet service not connected")
	// ErrNotFound is returned by the credential store when no credential has
	// been stored.
	ErrNotFound = ErrorKind("credential not found")
	// ErrCacheExpired is returned when the transient credential cache is
	// absent or past its expiry.
	ErrCacheExpired = ErrorKind("credential cache expired")
	// ErrAuthenticationFailed is returned when the store's authenticator
	// rejects an authenticated credential read.
	ErrAuthenticationFailed = ErrorKind("authentication failed")
	// ErrInvalidMnemonic is returned for a recovery phrase that fails
	// normalization-time validation.
	ErrInvalidMnemonic = ErrorKind("invalid mnemonic")
)

// Error pairs an error with details.
type Error struct {
	wrapped error
	detail  string
}

// Error satisfies the error interface, combining the wrapped error message
// with the details.
func (e Error) Error() string {
	return e.wrapped.Error() + ": " + e.detail
}

// Unwrap returns the wrapped error, allowing errors.Is and errors.As to work.
func (e Error) Unwrap() error {
	return e.wrapped
}

// NewError wraps the provided Error with details in a Error, facilitating the
// use of errors.Is and errors.As via errors.Unwrap.
func NewError(err error, detail string) Error {
	return Error{
		wrapped: err,
		detail:  detail,
	}
}
