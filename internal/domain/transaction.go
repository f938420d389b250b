package domain

import (
	"fmt"
	"sync"
)

// TransactionState is the state of a send transaction.
type TransactionState int

const (
	TransactionOpen TransactionState = iota
	TransactionDataSent
	TransactionConfirmed
	TransactionCompleted
	TransactionCancelled
	TransactionFailed
)

// String returns a human-readable representation of the state.
func (s TransactionState) String() string {
	switch s {
	case TransactionOpen:
		return "Open"
	case TransactionDataSent:
		return "DataSent"
	case TransactionConfirmed:
		return "Confirmed"
	case TransactionCompleted:
		return "Completed"
	case TransactionCancelled:
		return "Cancelled"
	case TransactionFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal returns true if no further operation is allowed.
func (s TransactionState) Terminal() bool {
	return s == TransactionCompleted || s == TransactionCancelled || s == TransactionFailed
}

// TransactionTracker enforces the order Send* -> Confirm -> Complete.
// Cancel is allowed from any non-terminal state.
type TransactionTracker struct {
	mu    sync.Mutex
	state TransactionState
}

// State returns the current state.
func (t *TransactionTracker) State() TransactionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Advance moves to next if the transition is legal.
func (t *TransactionTracker) Advance(next TransactionState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.state
	ok := false
	switch next {
	case TransactionDataSent:
		ok = cur == TransactionOpen || cur == TransactionDataSent
	case TransactionConfirmed:
		ok = cur == TransactionOpen || cur == TransactionDataSent
	case TransactionCompleted:
		ok = cur == TransactionConfirmed
	case TransactionCancelled, TransactionFailed:
		ok = !cur.Terminal()
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrTransactionState, cur, next)
	}
	t.state = next
	return nil
}
