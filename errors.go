package marketsdk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUserRejected is returned when the user declines a signing or
	// transaction prompt. UIs should treat it as a quiet condition, not a
	// failure worth alarming messaging.
	ErrUserRejected = errors.New("user rejected request")

	// ErrStepNotFound is returned when a flow expects a transaction or
	// signature step and the generated step list contains neither.
	ErrStepNotFound = errors.New("no transaction or signature step found")

	// ErrConfirmationTimeout is returned when a receipt did not surface
	// within the confirmation deadline. The transaction may still succeed.
	ErrConfirmationTimeout = errors.New("timeout waiting for transaction receipt")

	// ErrFeeConfirmationSuperseded resolves a pending fee-option deferred
	// that was displaced by a newer negotiation.
	ErrFeeConfirmationSuperseded = errors.New("fee option confirmation superseded")

	// ErrWalletNotConnected is returned by helpers that need a connected
	// account.
	ErrWalletNotConnected = errors.New("wallet not connected")
)

// InvalidParamError represents an invalid parameter error with context
type InvalidParamError struct {
	Message string
}

func (e *InvalidParamError) Error() string {
	return e.Message
}

// APIError represents a backend error with HTTP context
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return e.Message
}

// UnsupportedStepError marks a step id outside the closed step set. This is
// a contract violation between SDK and backend, never a recoverable
// condition.
type UnsupportedStepError struct {
	ID StepID
}

func (e *UnsupportedStepError) Error() string {
	return fmt.Sprintf("unsupported step id: %s", e.ID)
}

// SignatureFailedError wraps a non-rejection signing failure with the step
// that produced it.
type SignatureFailedError struct {
	StepID StepID
	Err    error
}

func (e *SignatureFailedError) Error() string {
	return fmt.Sprintf("signature failed for step %s: %v", e.StepID, e.Err)
}

func (e *SignatureFailedError) Unwrap() error {
	return e.Err
}

// ChainSwitchError wraps a failed chain switch with the chain that was
// requested. User rejections are classified before this is constructed.
type ChainSwitchError struct {
	ChainID ChainID
	Err     error
}

func (e *ChainSwitchError) Error() string {
	return fmt.Sprintf("failed to switch to chain %d: %v", e.ChainID, e.Err)
}

func (e *ChainSwitchError) Unwrap() error {
	return e.Err
}

// IsUserRejection reports whether an error originated from the user
// declining a wallet prompt. Wallet implementations that cannot wrap
// ErrUserRejected are matched on their message.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}
