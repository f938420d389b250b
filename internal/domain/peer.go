package domain

import "time"

// PeerStatus is the persisted status of a single transfer peer.
type PeerStatus struct {
	// URL is the peer's base URL.
	URL string `json:"url"`

	// PenalizedUntil is the time before which the peer is skipped.
	PenalizedUntil time.Time `json:"penalized_until,omitempty"`

	// Failures is the number of consecutive failed attempts.
	Failures int `json:"failures"`

	// FlowFilesSent is the number of payloads the peer accepted.
	FlowFilesSent int64 `json:"flowfiles_sent"`

	// LastSuccessAt is the time of the last completed transaction.
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
}

// Penalized returns true if the peer is penalized at now.
func (p PeerStatus) Penalized(now time.Time) bool {
	return now.Before(p.PenalizedUntil)
}

// PeerState is the persisted view of all known peers.
type PeerState struct {
	PortName  string       `json:"port_name"`
	Peers     []PeerStatus `json:"peers"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IsEmpty returns true if no peers have been recorded.
func (s PeerState) IsEmpty() bool {
	return len(s.Peers) == 0
}

// Peer returns the status recorded for url.
func (s PeerState) Peer(url string) (PeerStatus, bool) {
	for _, p := range s.Peers {
		if p.URL == url {
			return p, true
		}
	}
	return PeerStatus{}, false
}
