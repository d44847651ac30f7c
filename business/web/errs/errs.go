// Package errs carries request scoped error values between the v1 handlers
// and the error middleware.
package errs

import "errors"

// Response is the JSON body every failed API call answers with.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is an error a handler chose to expose to the client together
// with the HTTP status to respond with. Anything else coming out of a
// handler is answered as a plain 500.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps the error with the status the middleware should answer
// with. The wrapped message is sent to the client verbatim.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface using the wrapped error's message.
func (t *Trusted) Error() string {
	return t.Err.Error()
}

// IsTrusted tells whether the error chain contains a trusted error.
func IsTrusted(err error) bool {
	var t *Trusted
	return errors.As(err, &t)
}

// GetTrusted extracts the trusted error from the chain, or nil when there
// is none.
func GetTrusted(err error) *Trusted {
	var t *Trusted
	if !errors.As(err, &t) {
		return nil
	}
	return t
}
