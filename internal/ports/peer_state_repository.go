package ports

import (
	"context"

	"github.com/bft-labs/recordship/internal/domain"
)

// PeerStateRepository persists peer status across restarts.
type PeerStateRepository interface {
	// Load retrieves the last saved peer state.
	// Returns an empty state and nil error if no state exists.
	Load(ctx context.Context) (domain.PeerState, error)

	// Save persists the peer state atomically.
	Save(ctx context.Context, state domain.PeerState) error
}
