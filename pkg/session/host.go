package session

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/beamcast/beamcast/pkg/bus"
	"github.com/beamcast/beamcast/pkg/media"
	"github.com/beamcast/beamcast/pkg/playback"
	"github.com/beamcast/beamcast/pkg/protocol"
)

// Host runs the sharing side of a room: it answers viewer announcements with
// offers in screen mode, with a playback state burst in file mode, and owns
// the broadcast lifecycle.
type Host struct {
	self protocol.PeerID
	bus  bus.Bus
	reg  *Registry
	pipe *media.Pipeline
	sync *playback.Broadcaster

	mu   sync.Mutex
	mode media.Mode
}

func NewHost(self protocol.PeerID, b bus.Bus, reg *Registry, pipe *media.Pipeline, sync *playback.Broadcaster) *Host {
	return &Host{self: self, bus: b, reg: reg, pipe: pipe, sync: sync}
}

// Run consumes the bus until the context ends or the bus closes. Signals
// that only make sense for viewers fall through the switch.
func (h *Host) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-h.bus.Messages():
			if !ok {
				return
			}
			h.dispatch(ctx, s)
		}
	}
}

func (h *Host) dispatch(ctx context.Context, s protocol.Signal) {
	switch s.Kind {
	case protocol.KindViewerReady:
		// Negotiation can be slow; don't hold up the dispatch loop.
		go h.handleViewerReady(ctx, s.From)
	case protocol.KindAnswer:
		h.handleAnswer(s)
	case protocol.KindICECandidate:
		h.handleCandidate(s)
	}
}

func (h *Host) handleViewerReady(ctx context.Context, peer protocol.PeerID) {
	switch h.Mode() {
	case media.ModeFile:
		// File broadcasts negotiate no transport; the viewer just needs
		// the playback state.
		h.sync.HandleViewerReady(ctx, peer)
		return
	case media.ModeScreen:
	default:
		// Not sharing. The viewer will announce again on host-started.
		return
	}

	if s, ok := h.reg.Get(peer); ok {
		if s.State() == StateConnected {
			log.Printf("viewer %s already connected, ignoring announce", peer)
			return
		}
		// Half-open exchange; start over on a fresh transport.
		log.Printf("viewer %s re-announced in state %s, renegotiating", peer, s.State())
		h.reg.Remove(peer)
	}

	if err := h.negotiate(ctx, peer); err != nil {
		log.Printf("negotiation with %s failed: %v", peer, err)
		h.reg.Remove(peer)
	}
}

func (h *Host) negotiate(ctx context.Context, peer protocol.PeerID) error {
	s, created, err := h.reg.GetOrCreate(peer)
	if err != nil {
		return err
	}
	if !created {
		// Another announce from the same viewer won the race; let that
		// exchange finish.
		return nil
	}

	pc := s.PC()
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := h.bus.Publish(ctx, protocol.Candidate(h.self, peer, c.ToJSON())); err != nil {
			log.Printf("candidate to %s: %v", peer, err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("viewer %s transport: %s", peer, state)
		switch state {
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			h.reg.Remove(peer)
		}
	})

	if err := h.pipe.AttachTo(pc); err != nil {
		return fmt.Errorf("attach media for %s: %w", peer, err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer for %s: %w", peer, err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description for %s: %w", peer, err)
	}

	s.setState(StateOfferSent)
	if err := h.bus.Publish(ctx, protocol.Offer(h.self, peer, offer)); err != nil {
		return fmt.Errorf("publish offer to %s: %w", peer, err)
	}
	log.Printf("offer sent to %s", peer)
	return nil
}

func (h *Host) handleAnswer(sig protocol.Signal) {
	s, ok := h.reg.Get(sig.From)
	if !ok {
		// Stale answer from a peer we never offered to.
		return
	}
	if sig.SDP == nil {
		log.Printf("answer from %s missing sdp", sig.From)
		return
	}
	if st := s.State(); st != StateOfferSent {
		log.Printf("ignoring answer from %s in state %s", sig.From, st)
		return
	}
	if err := s.ApplyRemoteDescription(*sig.SDP); err != nil {
		log.Printf("answer from %s rejected: %v", sig.From, err)
		return
	}
	s.setState(StateConnected)
	log.Printf("viewer %s negotiated", sig.From)
}

func (h *Host) handleCandidate(sig protocol.Signal) {
	s, ok := h.reg.Get(sig.From)
	if !ok {
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

// StartCapture switches the broadcast to a live capture source. Whatever was
// broadcast before is fully stopped first, so viewers see a clean restart. A
// capture denial surfaces and leaves the host idle.
func (h *Host) StartCapture(ctx context.Context, provider media.CaptureProvider, c media.CaptureConstraints) error {
	h.Stop(ctx)

	if _, err := h.pipe.StartCapture(ctx, provider, c); err != nil {
		return err
	}
	h.setMode(media.ModeScreen)

	h.announceStarted(ctx)
	return nil
}

// StartFile publishes the file through the uploader and broadcasts its URL
// with synchronized playback, paused at the start.
func (h *Host) StartFile(ctx context.Context, path string, up media.Uploader) error {
	h.Stop(ctx)

	url, err := up.Upload(ctx, path)
	if err != nil {
		return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}
	h.pipe.StartFile(url)
	h.setMode(media.ModeFile)

	h.announceStarted(ctx)
	h.sync.Start(ctx, url)
	return nil
}

// Stop tears the active broadcast down: playback heartbeat, then the media
// source, then every peer session, then the room-wide stop announcement.
// Each step runs regardless of earlier failures. Stopping when idle is a
// no-op and announces nothing.
func (h *Host) Stop(ctx context.Context) {
	h.mu.Lock()
	mode := h.mode
	h.mode = media.ModeNone
	h.mu.Unlock()
	if mode == media.ModeNone {
		return
	}

	if mode == media.ModeFile {
		h.sync.Stop()
	}
	if err := h.pipe.Release(); err != nil {
		log.Printf("release media: %v", err)
	}
	h.reg.Clear()
	if err := h.bus.Publish(ctx, protocol.HostStopped(h.self)); err != nil {
		log.Printf("announce stop: %v", err)
	}
	log.Printf("stopped %s broadcast", mode)
}

func (h *Host) Play(ctx context.Context) {
	if h.Mode() == media.ModeFile {
		h.sync.Play(ctx)
	}
}

func (h *Host) Pause(ctx context.Context) {
	if h.Mode() == media.ModeFile {
		h.sync.Pause(ctx)
	}
}

func (h *Host) SeekTo(ctx context.Context, seconds float64) {
	if h.Mode() == media.ModeFile {
		h.sync.SeekTo(ctx, seconds)
	}
}

// SeekBy nudges playback relative to the current position.
func (h *Host) SeekBy(ctx context.Context, delta float64) {
	if h.Mode() == media.ModeFile {
		h.sync.SeekTo(ctx, h.sync.State().Position+delta)
	}
}

func (h *Host) Mode() media.Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

func (h *Host) setMode(m media.Mode) {
	h.mu.Lock()
	h.mode = m
	h.mu.Unlock()
}

// Viewers reports connected viewer transports in screen mode. File mode has
// no transports, so room membership is not observable from here.
func (h *Host) Viewers() int {
	return h.reg.Connected()
}

// PlaybackState exposes the authoritative transport for display.
func (h *Host) PlaybackState() playback.State {
	return h.sync.State()
}

func (h *Host) announceStarted(ctx context.Context) {
	if err := h.bus.Publish(ctx, protocol.HostStarted(h.self)); err != nil {
		log.Printf("announce start: %v", err)
	}
}
