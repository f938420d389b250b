package sitetosite

import (
	"net/url"
	"sync"
	"time"

	"github.com/bft-labs/recordship/internal/domain"
)

type peer struct {
	url    *url.URL
	status domain.PeerStatus
}

// peerSelector hands out peers round-robin, skipping penalized ones.
type peerSelector struct {
	mu      sync.Mutex
	peers   []*peer
	next    int
	penalty penalty
	now     func() time.Time
}

func newPeerSelector(urls []*url.URL, p penalty) *peerSelector {
	peers := make([]*peer, len(urls))
	for i, u := range urls {
		peers[i] = &peer{url: u, status: domain.PeerStatus{URL: u.String()}}
	}
	return &peerSelector{peers: peers, penalty: p, now: time.Now}
}

// restore applies persisted status to known peers. Unknown URLs are ignored.
func (s *peerSelector) restore(state domain.PeerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		if st, ok := state.Peer(p.status.URL); ok {
			p.status = st
		}
	}
}

// candidates returns the non-penalized peers in round-robin order.
func (s *peerSelector) candidates() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]*url.URL, 0, len(s.peers))
	for i := range s.peers {
		p := s.peers[(s.next+i)%len(s.peers)]
		if !p.status.Penalized(now) {
			out = append(out, p.url)
		}
	}
	s.next = (s.next + 1) % len(s.peers)
	return out
}

// penalize marks u as unavailable and returns the penalty applied.
func (s *peerSelector) penalize(u *url.URL) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.find(u)
	if p == nil {
		return 0
	}
	p.status.Failures++
	d := s.penalty.duration(p.status.Failures)
	p.status.PenalizedUntil = s.now().Add(d)
	return d
}

// succeeded clears the failure streak of u and counts a delivered payload.
func (s *peerSelector) succeeded(u *url.URL, flowFiles int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.find(u)
	if p == nil {
		return
	}
	p.status.Failures = 0
	p.status.PenalizedUntil = time.Time{}
	p.status.FlowFilesSent += int64(flowFiles)
	p.status.LastSuccessAt = s.now()
}

func (s *peerSelector) snapshot(portName string) domain.PeerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.PeerState{PortName: portName, UpdatedAt: s.now()}
	for _, p := range s.peers {
		st.Peers = append(st.Peers, p.status)
	}
	return st
}

func (s *peerSelector) find(u *url.URL) *peer {
	key := u.String()
	for _, p := range s.peers {
		if p.status.URL == key {
			return p
		}
	}
	return nil
}
