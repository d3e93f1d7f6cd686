// Package protocol defines the signaling messages exchanged between the host
// and viewers of a room, and the filtering rules every transport applies on
// receive.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// PeerID identifies a participant for the lifetime of its process.
type PeerID string

// Kind discriminates the signal union.
type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindHostStarted  Kind = "host-started"
	KindHostStopped  Kind = "host-stopped"
	KindViewerReady  Kind = "viewer-ready"
	KindControl      Kind = "control"
)

// Action names a playback control command carried by a control signal.
type Action string

const (
	ActionPlay    Action = "play"
	ActionPause   Action = "pause"
	ActionSeek    Action = "seek"
	ActionSync    Action = "sync"
	ActionFileURL Action = "file-url"
)

// ControlPayload carries the arguments of a control action. Seek and sync use
// Time (seconds), file-url uses URL. Receivers ignore fields their action does
// not define.
type ControlPayload struct {
	Time float64 `json:"time"`
	URL  string  `json:"url,omitempty"`
}

// Signal is one signaling message. From is always set. To empty means
// broadcast to the whole room. The remaining fields depend on Kind: offer and
// answer carry SDP, ice-candidate carries Candidate, control carries Action
// and usually Payload. The presence signals carry nothing extra.
type Signal struct {
	Kind      Kind                       `json:"kind"`
	From      PeerID                     `json:"from"`
	To        PeerID                     `json:"to,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Action    Action                     `json:"action,omitempty"`
	Payload   *ControlPayload            `json:"payload,omitempty"`
}

// Accepts reports whether a received signal is for us. Our own signals echoed
// back by the fabric are dropped, as are signals addressed to another peer.
func Accepts(self PeerID, s Signal) bool {
	if s.From == self {
		return false
	}
	if s.To != "" && s.To != self {
		return false
	}
	return true
}

// Broadcast reports whether the signal is room-wide rather than addressed.
func (s Signal) Broadcast() bool {
	return s.To == ""
}

func Encode(s Signal) ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a wire message. It rejects frames that cannot be routed:
// unparseable JSON, a missing kind, or a missing sender.
func Decode(data []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	if s.Kind == "" {
		return Signal{}, fmt.Errorf("decode signal: missing kind")
	}
	if s.From == "" {
		return Signal{}, fmt.Errorf("decode signal: missing from")
	}
	return s, nil
}

func Offer(from, to PeerID, sdp webrtc.SessionDescription) Signal {
	return Signal{Kind: KindOffer, From: from, To: to, SDP: &sdp}
}

func Answer(from, to PeerID, sdp webrtc.SessionDescription) Signal {
	return Signal{Kind: KindAnswer, From: from, To: to, SDP: &sdp}
}

func Candidate(from, to PeerID, c webrtc.ICECandidateInit) Signal {
	return Signal{Kind: KindICECandidate, From: from, To: to, Candidate: &c}
}

func HostStarted(from PeerID) Signal {
	return Signal{Kind: KindHostStarted, From: from}
}

func HostStopped(from PeerID) Signal {
	return Signal{Kind: KindHostStopped, From: from}
}

func ViewerReady(from PeerID) Signal {
	return Signal{Kind: KindViewerReady, From: from}
}

// Control builds a playback control signal. Pass to as "" for a room-wide
// command, and a nil payload for actions that take no arguments.
func Control(from, to PeerID, action Action, payload *ControlPayload) Signal {
	return Signal{Kind: KindControl, From: from, To: to, Action: action, Payload: payload}
}
