package playback

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/beamcast/beamcast/pkg/bus"
	"github.com/beamcast/beamcast/pkg/protocol"
)

const (
	// DefaultSyncInterval is how often the host reaffirms its position
	// while playing.
	DefaultSyncInterval = 5 * time.Second

	// DriftTolerance is how far, in seconds, a viewer may run from the
	// host's position before snapping back.
	DriftTolerance = 0.3
)

// Broadcaster is the host side of the sync protocol. It applies transport
// commands to the authoritative player first and then announces them; while
// playing it also heartbeats the current position so late drift corrects
// itself. Publish failures are logged and left to the next heartbeat.
type Broadcaster struct {
	self     protocol.PeerID
	bus      bus.Bus
	player   Player
	interval time.Duration

	mu     sync.Mutex
	url    string
	cancel context.CancelFunc
}

func NewBroadcaster(self protocol.PeerID, b bus.Bus, player Player) *Broadcaster {
	return &Broadcaster{self: self, bus: b, player: player, interval: DefaultSyncInterval}
}

// SetInterval adjusts the heartbeat period. Takes effect on the next Start.
func (b *Broadcaster) SetInterval(d time.Duration) {
	if d > 0 {
		b.interval = d
	}
}

// Start makes url the broadcast source, announces it to the room and begins
// the heartbeat. Playback starts paused at zero; the host presses play.
func (b *Broadcaster) Start(ctx context.Context, url string) {
	b.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.url = url
	b.cancel = cancel
	b.mu.Unlock()

	b.player.SetSource(url)
	b.publish(ctx, protocol.Control(b.self, "", protocol.ActionFileURL, &protocol.ControlPayload{URL: url}))
	go b.heartbeat(runCtx)
}

// Stop cancels the heartbeat. Idempotent.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.url = ""
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Active reports whether a broadcast is running.
func (b *Broadcaster) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url != ""
}

func (b *Broadcaster) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A paused room needs no correction; positions are frozen.
			if !b.player.Playing() {
				continue
			}
			pos := b.player.Position()
			b.publish(ctx, protocol.Control(b.self, "", protocol.ActionSync, &protocol.ControlPayload{Time: pos}))
		}
	}
}

func (b *Broadcaster) Play(ctx context.Context) {
	if !b.Active() {
		return
	}
	b.player.Play()
	b.publish(ctx, protocol.Control(b.self, "", protocol.ActionPlay, nil))
}

func (b *Broadcaster) Pause(ctx context.Context) {
	if !b.Active() {
		return
	}
	b.player.Pause()
	b.publish(ctx, protocol.Control(b.self, "", protocol.ActionPause, nil))
}

func (b *Broadcaster) SeekTo(ctx context.Context, seconds float64) {
	if !b.Active() {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	b.player.SeekTo(seconds)
	b.publish(ctx, protocol.Control(b.self, "", protocol.ActionSeek, &protocol.ControlPayload{Time: seconds}))
}

// HandleViewerReady catches a late joiner up over unicast: the source, the
// current position, then play if the room is playing. The sequence rides one
// sender-to-one-recipient ordering, so it arrives as sent.
func (b *Broadcaster) HandleViewerReady(ctx context.Context, peer protocol.PeerID) {
	b.mu.Lock()
	url := b.url
	b.mu.Unlock()
	if url == "" {
		return
	}

	b.publish(ctx, protocol.Control(b.self, peer, protocol.ActionFileURL, &protocol.ControlPayload{URL: url}))
	b.publish(ctx, protocol.Control(b.self, peer, protocol.ActionSeek, &protocol.ControlPayload{Time: b.player.Position()}))
	if b.player.Playing() {
		b.publish(ctx, protocol.Control(b.self, peer, protocol.ActionPlay, nil))
	}
}

// State exposes the authoritative transport for display.
func (b *Broadcaster) State() State {
	return State{Position: b.player.Position(), Paused: !b.player.Playing()}
}

func (b *Broadcaster) publish(ctx context.Context, s protocol.Signal) {
	if err := b.bus.Publish(ctx, s); err != nil {
		log.Printf("playback %s: %v", s.Action, err)
	}
}
