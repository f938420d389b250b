package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the recordship domain.
// These errors can be checked with errors.Is.
var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("recordship: invalid configuration")

	// ErrNotActive is returned when a send is attempted on an inactive sink or client.
	ErrNotActive = errors.New("recordship: not active")

	// ErrAlreadyActive is returned when Enable is called on an enabled sink.
	ErrAlreadyActive = errors.New("recordship: already active")

	// ErrUnsupportedDirection is returned for transaction directions the client cannot serve.
	ErrUnsupportedDirection = errors.New("recordship: unsupported transfer direction")

	// ErrTransactionState is returned when a transaction operation is called out of order.
	ErrTransactionState = errors.New("recordship: invalid transaction state")

	// ErrChecksumMismatch is returned when the peer reports a different CRC than the one sent.
	ErrChecksumMismatch = errors.New("recordship: checksum mismatch")

	// ErrPortNotFound is returned when the remote peer does not know the configured port.
	ErrPortNotFound = errors.New("recordship: port not found")

	// ErrUnauthorized is returned when the remote peer rejects the client.
	ErrUnauthorized = errors.New("recordship: unauthorized")

	// ErrDestinationFull is returned when the remote port cannot accept data right now.
	ErrDestinationFull = errors.New("recordship: destination full")

	// ErrInvalidTransition is returned for a lifecycle change the current state forbids.
	ErrInvalidTransition = errors.New("recordship: invalid lifecycle transition")

	// ErrDrainTimeout is returned when in-flight sends outlive a disable.
	ErrDrainTimeout = errors.New("recordship: timed out waiting for in-flight sends")
)

// InitError is an initialization-class failure raised while activating a sink.
// A sink that failed activation stays inert.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return "initialize record sink: " + e.Err.Error()
}

func (e *InitError) Unwrap() error { return e.Err }

// NewInitError wraps err as an InitError. Returns nil for a nil error.
func NewInitError(err error) error {
	if err == nil {
		return nil
	}
	var ie *InitError
	if errors.As(err, &ie) {
		return err
	}
	return &InitError{Err: err}
}

// TransferError is the single I/O-class failure returned by a send.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("failed to write records using record writer: %v", e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// NewTransferError wraps err as a TransferError. Errors that already carry a
// TransferError are returned unchanged. Returns nil for a nil error.
func NewTransferError(err error) error {
	if err == nil {
		return nil
	}
	var te *TransferError
	if errors.As(err, &te) {
		return err
	}
	return &TransferError{Err: err}
}
