package session

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/beamcast/beamcast/pkg/protocol"
)

// State tracks where a session is in its one offer/answer exchange.
type State int

const (
	StateIdle State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one media relationship with one remote peer: its transport, the
// negotiation state, and candidates that arrived ahead of the remote
// description.
type Session struct {
	peer protocol.PeerID
	pc   *webrtc.PeerConnection

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	closeOnce sync.Once
}

func newSession(peer protocol.PeerID, pc *webrtc.PeerConnection) *Session {
	return &Session{peer: peer, pc: pc}
}

func (s *Session) Peer() protocol.PeerID { return s.peer }

func (s *Session) PC() *webrtc.PeerConnection { return s.pc }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ApplyRemoteDescription installs the remote description and flushes any
// candidates buffered before it arrived. A buffered candidate the transport
// rejects is logged and skipped; the session stands.
func (s *Session) ApplyRemoteDescription(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description from %s: %w", s.peer, err)
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.remoteSet = true
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			log.Printf("session %s: buffered candidate rejected: %v", s.peer, err)
		}
	}
	return nil
}

// AddCandidate applies a remote candidate, or buffers it when the remote
// description has not arrived yet.
func (s *Session) AddCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.pc.AddICECandidate(c)
}

// PendingCandidates reports how many candidates wait for the remote
// description.
func (s *Session) PendingCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close releases the transport. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.pc.Close(); err != nil {
			log.Printf("session %s: close: %v", s.peer, err)
		}
	})
}
