package checkout

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the checkout engine. Match them with errors.Is.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrMissingCredential   = errors.New("missing credential")
	ErrValidation          = errors.New("validation error")
	ErrNetworkFailure      = errors.New("network failure")
	ErrServerRejection     = errors.New("server rejection")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Error carries a kind, a user-facing message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InsufficientBalanceError is returned by the wallet path when the cached
// balance does not cover the payable amount.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: need %d, have %d", e.Required, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// Shortfall is the amount the user has to top up before retrying.
func (e *InsufficientBalanceError) Shortfall() int64 {
	if e.Required <= e.Available {
		return 0
	}
	return e.Required - e.Available
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// UserMessage returns the text that should be shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ib *InsufficientBalanceError
	if errors.As(err, &ib) {
		return "Insufficient wallet balance. Please top up your wallet to continue."
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "Amount to pay must be greater than zero."
	case errors.Is(err, ErrMissingCredential):
		return "Please log in again to continue."
	case errors.Is(err, ErrNetworkFailure):
		return "Something went wrong. Please try again."
	}
	return err.Error()
}
