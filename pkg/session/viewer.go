package session

import (
	"context"
	"log"

	"github.com/pion/webrtc/v3"

	"github.com/beamcast/beamcast/pkg/bus"
	"github.com/beamcast/beamcast/pkg/media"
	"github.com/beamcast/beamcast/pkg/playback"
	"github.com/beamcast/beamcast/pkg/protocol"
)

// Viewer runs the watching side of a room: it announces readiness, answers
// the host's offers, and applies playback control. A viewer talks to one
// host at a time and handles its signals in arrival order.
type Viewer struct {
	self protocol.PeerID
	bus  bus.Bus
	reg  *Registry
	pipe *media.Pipeline
	recv *playback.Receiver
}

func NewViewer(self protocol.PeerID, b bus.Bus, reg *Registry, pipe *media.Pipeline, recv *playback.Receiver) *Viewer {
	return &Viewer{self: self, bus: b, reg: reg, pipe: pipe, recv: recv}
}

// Run announces this viewer and consumes the bus until the context ends or
// the bus closes.
func (v *Viewer) Run(ctx context.Context) {
	v.announce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-v.bus.Messages():
			if !ok {
				return
			}
			v.dispatch(ctx, s)
		}
	}
}

func (v *Viewer) dispatch(ctx context.Context, s protocol.Signal) {
	switch s.Kind {
	case protocol.KindOffer:
		v.handleOffer(ctx, s)
	case protocol.KindICECandidate:
		v.handleCandidate(s)
	case protocol.KindHostStarted:
		// The host (re)started after we joined; announce again so it
		// knows to include us.
		v.announce(ctx)
	case protocol.KindHostStopped:
		v.handleHostStopped()
	case protocol.KindControl:
		if err := v.recv.Apply(s.Action, s.Payload); err != nil {
			log.Printf("control from %s: %v", s.From, err)
		}
	}
}

func (v *Viewer) announce(ctx context.Context) {
	if err := v.bus.Publish(ctx, protocol.ViewerReady(v.self)); err != nil {
		log.Printf("announce ready: %v", err)
	}
}

// handleOffer answers a fresh offer. The host only offers over a brand new
// transport, so an incoming offer always supersedes whatever session we hold
// for that peer.
func (v *Viewer) handleOffer(ctx context.Context, sig protocol.Signal) {
	if sig.SDP == nil {
		log.Printf("offer from %s missing sdp", sig.From)
		return
	}

	if _, ok := v.reg.Get(sig.From); ok {
		log.Printf("new offer from %s supersedes current session", sig.From)
		v.reg.Remove(sig.From)
		v.pipe.DetachRenderer()
	}

	s, _, err := v.reg.GetOrCreate(sig.From)
	if err != nil {
		log.Printf("transport for %s: %v", sig.From, err)
		return
	}

	pc := s.PC()
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := v.bus.Publish(ctx, protocol.Candidate(v.self, sig.From, c.ToJSON())); err != nil {
			log.Printf("candidate to %s: %v", sig.From, err)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("incoming %s track %s from %s", track.Kind(), track.ID(), sig.From)
		v.pipe.HandleRemoteTrack(pc, track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("host %s transport: %s", sig.From, state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.setState(StateConnected)
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			v.reg.Remove(sig.From)
		}
	})

	if err := s.ApplyRemoteDescription(*sig.SDP); err != nil {
		log.Printf("offer from %s rejected: %v", sig.From, err)
		v.reg.Remove(sig.From)
		return
	}
	s.setState(StateOfferReceived)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Printf("answer for %s: %v", sig.From, err)
		v.reg.Remove(sig.From)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Printf("answer for %s: %v", sig.From, err)
		v.reg.Remove(sig.From)
		return
	}
	s.setState(StateAnswerSent)

	if err := v.bus.Publish(ctx, protocol.Answer(v.self, sig.From, answer)); err != nil {
		log.Printf("publish answer to %s: %v", sig.From, err)
	}
	log.Printf("answered offer from %s", sig.From)
}

func (v *Viewer) handleCandidate(sig protocol.Signal) {
	s, ok := v.reg.Get(sig.From)
	if !ok {
		// Candidate for a session we don't hold; either the offer is
		// still in flight on a slower path or this is stale.
		return
	}
	if sig.Candidate == nil {
		log.Printf("candidate from %s missing body", sig.From)
		return
	}
	if err := s.AddCandidate(*sig.Candidate); err != nil {
		log.Printf("candidate from %s rejected: %v", sig.From, err)
	}
}

func (v *Viewer) handleHostStopped() {
	v.reg.Clear()
	v.pipe.DetachRenderer()
	v.recv.Reset()
	log.Printf("host stopped sharing")
}

// PlaybackState exposes the shadowed transport for display.
func (v *Viewer) PlaybackState() playback.State {
	return v.recv.State()
}

// Connected reports whether the media transport to the host is up.
func (v *Viewer) Connected() bool {
	return v.reg.Connected() > 0
}
