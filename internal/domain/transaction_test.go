package domain

import (
	"errors"
	"testing"
)

func TestTransactionTracker_HappyPath(t *testing.T) {
	var tr TransactionTracker
	steps := []TransactionState{TransactionDataSent, TransactionDataSent, TransactionConfirmed, TransactionCompleted}
	for _, s := range steps {
		if err := tr.Advance(s); err != nil {
			t.Fatalf("Advance(%s): %v", s, err)
		}
	}
	if !tr.State().Terminal() {
		t.Error("completed transaction should be terminal")
	}
}

func TestTransactionTracker_ConfirmWithoutData(t *testing.T) {
	var tr TransactionTracker
	if err := tr.Advance(TransactionConfirmed); err != nil {
		t.Fatalf("confirm without data: %v", err)
	}
	if err := tr.Advance(TransactionCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestTransactionTracker_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from TransactionState
		to   TransactionState
	}{
		{"complete before confirm", TransactionOpen, TransactionCompleted},
		{"send after confirm", TransactionConfirmed, TransactionDataSent},
		{"confirm twice", TransactionConfirmed, TransactionConfirmed},
		{"cancel after complete", TransactionCompleted, TransactionCancelled},
		{"send after cancel", TransactionCancelled, TransactionDataSent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := TransactionTracker{state: tt.from}
			err := tr.Advance(tt.to)
			if !errors.Is(err, ErrTransactionState) {
				t.Errorf("Advance = %v, want ErrTransactionState", err)
			}
			if tr.State() != tt.from {
				t.Errorf("state changed to %s", tr.State())
			}
		})
	}
}
