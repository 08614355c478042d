// Package errs provides the error types handlers use to tell the errors
// middleware what the client is allowed to see.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (re *Trusted) Error() string {
	return re.Err.Error()
}

// Unwrap returns the wrapped error.
func (re *Trusted) Unwrap() error {
	return re.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var re *Trusted
	return errors.As(err, &re)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var re *Trusted
	if !errors.As(err, &re) {
		return nil
	}
	return re
}

// =============================================================================

// FromLedger classifies the errors returned by the state package. Errors a
// client can cause become trusted, anything else is returned untouched and
// reported as an internal error.
func FromLedger(err error) error {
	switch {
	case errors.Is(err, mempool.ErrInsufficientFunds),
		errors.Is(err, mempool.ErrInvalidAmount),
		errors.Is(err, mempool.ErrInvalidTx),
		errors.Is(err, chain.ErrInvalidBlock):
		return NewTrusted(err, http.StatusBadRequest)

	case errors.Is(err, mempool.ErrDuplicateTx),
		errors.Is(err, chain.ErrDuplicateBlock),
		errors.Is(err, chain.ErrStaleBlock):
		return NewTrusted(err, http.StatusConflict)

	case errors.Is(err, chain.ErrUnknownParent):
		return NewTrusted(err, http.StatusNotFound)

	case errors.Is(err, chain.ErrIntegrity):
		return NewTrusted(err, http.StatusUnprocessableEntity)
	}

	return err
}
