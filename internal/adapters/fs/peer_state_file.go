package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/recordship/internal/domain"
)

const peerStateFileName = "peers.json"

// PeerStateFileRepository implements ports.PeerStateRepository using a JSON file.
type PeerStateFileRepository struct {
	dir string
}

// NewPeerStateFileRepository creates a repository storing peers.json in dir.
func NewPeerStateFileRepository(dir string) *PeerStateFileRepository {
	return &PeerStateFileRepository{dir: dir}
}

// Load retrieves the last saved peer state from disk.
// Returns an empty state and nil error if no state file exists.
func (r *PeerStateFileRepository) Load(ctx context.Context) (domain.PeerState, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.PeerState{}, nil
		}
		return domain.PeerState{}, fmt.Errorf("read peer state: %w", err)
	}

	var state domain.PeerState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.PeerState{}, fmt.Errorf("decode peer state: %w", err)
	}

	return state, nil
}

// Save persists the peer state atomically (write to temp file, then rename).
func (r *PeerStateFileRepository) Save(ctx context.Context, state domain.PeerState) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := r.Path()
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode peer state: %w", err)
	}

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write peer state: %w", err)
	}

	return os.Rename(tmp, path)
}

// Path returns the full path to the state file.
func (r *PeerStateFileRepository) Path() string {
	return filepath.Join(r.dir, peerStateFileName)
}
