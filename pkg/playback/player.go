// Package playback keeps file-broadcast playback in step across a room. The
// host drives an authoritative player and announces transport changes over
// the signaling bus; viewers shadow that state on their own player and snap
// back when they drift.
package playback

import (
	"sync"
	"time"
)

// State is a point-in-time transport snapshot.
type State struct {
	Position float64
	Paused   bool
}

// Player is the playback surface the protocol drives. The host side uses the
// virtual Clock; an embedding application can supply a real media player.
type Player interface {
	SetSource(url string)
	Play()
	Pause()
	SeekTo(seconds float64)
	Position() float64
	Playing() bool
}

// Clock is a virtual player: position advances with the wall clock while
// playing. It is the host's authoritative transport and the watch mode's
// local shadow.
type Clock struct {
	mu      sync.Mutex
	url     string
	base    float64
	started time.Time
	playing bool
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) SetSource(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = url
	c.base = 0
	c.playing = false
}

func (c *Clock) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.started = time.Now()
	c.playing = true
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.base += time.Since(c.started).Seconds()
	c.playing = false
}

func (c *Clock) SeekTo(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	c.base = seconds
	if c.playing {
		c.started = time.Now()
	}
}

func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return c.base + time.Since(c.started).Seconds()
	}
	return c.base
}

func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := c.base
	if c.playing {
		pos += time.Since(c.started).Seconds()
	}
	return State{Position: pos, Paused: !c.playing}
}
