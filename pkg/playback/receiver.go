package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/beamcast/beamcast/pkg/protocol"
)

// Receiver is the viewer side of the sync protocol. It applies the host's
// transport commands to the local player.
type Receiver struct {
	player Player

	mu     sync.Mutex
	synced bool
}

func NewReceiver(player Player) *Receiver {
	return &Receiver{player: player}
}

// Apply executes one control action. Unknown actions and commands missing
// their arguments come back as errors; the caller logs them and moves on.
func (r *Receiver) Apply(action protocol.Action, p *protocol.ControlPayload) error {
	switch action {
	case protocol.ActionFileURL:
		if p == nil || p.URL == "" {
			return fmt.Errorf("file-url without url")
		}
		r.player.SetSource(p.URL)
		r.setSynced(false)

	case protocol.ActionPlay:
		r.player.Play()

	case protocol.ActionPause:
		r.player.Pause()

	case protocol.ActionSeek:
		if p == nil {
			return fmt.Errorf("seek without position")
		}
		r.player.SeekTo(p.Time)
		r.setSynced(true)

	case protocol.ActionSync:
		if p == nil {
			return fmt.Errorf("sync without position")
		}
		r.applySync(p.Time)

	default:
		return fmt.Errorf("unknown control action %q", action)
	}
	return nil
}

// applySync snaps to the host's position when needed. The first heartbeat
// after a source change aligns unconditionally; after that a correction only
// happens while playing and only past the drift tolerance, so minor network
// jitter never causes seek thrash.
func (r *Receiver) applySync(hostPos float64) {
	r.mu.Lock()
	synced := r.synced
	r.synced = true
	r.mu.Unlock()

	if !synced {
		r.player.SeekTo(hostPos)
		return
	}
	if !r.player.Playing() {
		return
	}
	if math.Abs(r.player.Position()-hostPos) > DriftTolerance {
		r.player.SeekTo(hostPos)
	}
}

// Reset returns the receiver to its pre-broadcast state, keeping the player
// paused until a new source arrives.
func (r *Receiver) Reset() {
	r.player.Pause()
	r.player.SetSource("")
	r.setSynced(false)
}

// State exposes the shadowed transport for display.
func (r *Receiver) State() State {
	return State{Position: r.player.Position(), Paused: !r.player.Playing()}
}

func (r *Receiver) setSynced(v bool) {
	r.mu.Lock()
	r.synced = v
	r.mu.Unlock()
}
