package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/beamcast/beamcast/pkg/protocol"
)

// Registry owns every live session of one room participant, keyed by remote
// peer. It is the only place transports are created, so a peer can never hold
// two at once.
type Registry struct {
	config webrtc.Configuration

	mu       sync.RWMutex
	sessions map[protocol.PeerID]*Session
}

func NewRegistry(config webrtc.Configuration) *Registry {
	return &Registry{
		config:   config,
		sessions: make(map[protocol.PeerID]*Session),
	}
}

// GetOrCreate returns the peer's session, creating the transport only when
// none exists. The second return reports whether this call created it.
func (r *Registry) GetOrCreate(peer protocol.PeerID) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[peer]; ok {
		return s, false, nil
	}

	pc, err := webrtc.NewPeerConnection(r.config)
	if err != nil {
		return nil, false, fmt.Errorf("create transport for %s: %w", peer, err)
	}
	s := newSession(peer, pc)
	r.sessions[peer] = s
	return s, true, nil
}

func (r *Registry) Get(peer protocol.PeerID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[peer]
	return s, ok
}

// Remove drops and closes the peer's session. Unknown peers are a no-op.
func (r *Registry) Remove(peer protocol.PeerID) {
	r.mu.Lock()
	s, ok := r.sessions[peer]
	if ok {
		delete(r.sessions, peer)
	}
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Clear closes every session before returning.
func (r *Registry) Clear() {
	r.mu.Lock()
	dropped := make([]*Session, 0, len(r.sessions))
	for peer, s := range r.sessions {
		dropped = append(dropped, s)
		delete(r.sessions, peer)
	}
	r.mu.Unlock()

	for _, s := range dropped {
		s.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Connected counts sessions that completed negotiation.
func (r *Registry) Connected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.State() == StateConnected {
			n++
		}
	}
	return n
}

// Peers lists the registered peer IDs in stable order.
func (r *Registry) Peers() []protocol.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]protocol.PeerID, 0, len(r.sessions))
	for peer := range r.sessions {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}
