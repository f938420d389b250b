package ports

import (
	"context"
	"net/url"

	"github.com/bft-labs/recordship/internal/domain"
)

// TransferSession owns connectivity to the remote peers of one port.
// A session is shared by every send call while the sink is active and must
// be safe for concurrent use.
type TransferSession interface {
	// CreateTransaction opens a transaction in the given direction.
	// Returns (nil, nil) when every peer is currently penalized or unavailable;
	// callers should treat that as a soft decline and retry later.
	CreateTransaction(ctx context.Context, direction domain.TransferDirection) (Transaction, error)

	// Close releases all resources held by the session.
	Close() error
}

// Transaction is one attempt to push a payload to a peer.
// A transaction is not reused: it must reach Complete or Cancel before it is
// discarded.
type Transaction interface {
	// Send transmits a payload with its attributes.
	Send(ctx context.Context, data []byte, attrs map[string]string) error

	// Confirm verifies that the peer received everything that was sent.
	Confirm(ctx context.Context) error

	// Complete finishes the transaction and releases its resources.
	Complete(ctx context.Context) error

	// Cancel abandons the transaction and releases its resources.
	Cancel(ctx context.Context, reason string) error
}

// PeerTransport opens transactions against a single peer using one transport
// mode (RAW socket or HTTP).
//
// OpenTransaction returns domain.ErrDestinationFull or a network error for
// transient conditions; the caller penalizes the peer and moves on.
// domain.ErrPortNotFound and domain.ErrUnauthorized are not transient.
type PeerTransport interface {
	OpenTransaction(ctx context.Context, peer *url.URL, transactionID string) (Transaction, error)

	// Close releases idle connections held by the transport.
	Close() error
}
