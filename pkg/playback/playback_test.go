package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/beamcast/beamcast/pkg/bus"
	"github.com/beamcast/beamcast/pkg/protocol"
)

// scriptedPlayer records the calls the protocol makes and reports whatever
// transport state a test sets.
type scriptedPlayer struct {
	mu       sync.Mutex
	url      string
	playing  bool
	position float64
	seeks    []float64
}

func (p *scriptedPlayer) SetSource(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *scriptedPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
}

func (p *scriptedPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *scriptedPlayer) SeekTo(s float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = s
	p.seeks = append(p.seeks, s)
}

func (p *scriptedPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *scriptedPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *scriptedPlayer) seekCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seeks)
}

func (p *scriptedPlayer) set(position float64, playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = position
	p.playing = playing
}

func recv(t *testing.T, b bus.Bus) protocol.Signal {
	t.Helper()
	select {
	case s, ok := <-b.Messages():
		if !ok {
			t.Fatal("bus channel closed")
		}
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
	}
	return protocol.Signal{}
}

func TestClockTransport(t *testing.T) {
	c := NewClock()
	c.SetSource("http://relay/media/movie.ivf")

	if c.Playing() {
		t.Error("fresh source should start paused")
	}
	if pos := c.Position(); pos != 0 {
		t.Errorf("fresh position = %v, want 0", pos)
	}

	c.SeekTo(30)
	if pos := c.Position(); pos != 30 {
		t.Errorf("position after seek = %v, want 30", pos)
	}

	c.Play()
	time.Sleep(100 * time.Millisecond)
	if pos := c.Position(); pos < 30.05 || pos > 31 {
		t.Errorf("position after 100ms of playback = %v", pos)
	}

	c.Pause()
	frozen := c.Position()
	time.Sleep(50 * time.Millisecond)
	if pos := c.Position(); pos != frozen {
		t.Errorf("paused position moved: %v -> %v", frozen, pos)
	}

	c.SeekTo(-5)
	if pos := c.Position(); pos != 0 {
		t.Errorf("negative seek should clamp to 0, got %v", pos)
	}
}

func TestReceiverDriftCorrection(t *testing.T) {
	cases := []struct {
		name     string
		position float64
		playing  bool
		hostPos  float64
		wantSnap bool
	}{
		{"within tolerance", 10.2, true, 10.0, false},
		{"beyond tolerance", 10.5, true, 10.0, true},
		{"exactly at tolerance", 10.3, true, 10.0, false},
		{"paused never snaps", 50.0, false, 10.0, false},
		{"ahead of host", 9.0, true, 10.0, true},
	}

	for _, tc := range cases {
		player := &scriptedPlayer{}
		r := NewReceiver(player)

		// Bring the receiver into the steady synced state first.
		if err := r.Apply(protocol.ActionFileURL, &protocol.ControlPayload{URL: "u"}); err != nil {
			t.Fatalf("%s: file-url: %v", tc.name, err)
		}
		if err := r.Apply(protocol.ActionSeek, &protocol.ControlPayload{Time: 0}); err != nil {
			t.Fatalf("%s: seek: %v", tc.name, err)
		}
		baseline := player.seekCount()
		player.set(tc.position, tc.playing)

		if err := r.Apply(protocol.ActionSync, &protocol.ControlPayload{Time: tc.hostPos}); err != nil {
			t.Fatalf("%s: sync: %v", tc.name, err)
		}

		snapped := player.seekCount() > baseline
		if snapped != tc.wantSnap {
			t.Errorf("%s: snapped = %v, want %v", tc.name, snapped, tc.wantSnap)
		}
		if tc.wantSnap && player.Position() != tc.hostPos {
			t.Errorf("%s: position = %v, want %v", tc.name, player.Position(), tc.hostPos)
		}
	}
}

func TestReceiverFirstSyncSnapsUnconditionally(t *testing.T) {
	player := &scriptedPlayer{}
	r := NewReceiver(player)

	if err := r.Apply(protocol.ActionFileURL, &protocol.ControlPayload{URL: "u"}); err != nil {
		t.Fatalf("file-url: %v", err)
	}
	// Tiny drift, paused: a steady-state sync would ignore this. The first
	// one after a source change must still align.
	player.set(0.1, false)
	if err := r.Apply(protocol.ActionSync, &protocol.ControlPayload{Time: 0.2}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if player.seekCount() != 1 || player.Position() != 0.2 {
		t.Errorf("first sync did not align: seeks=%d pos=%v", player.seekCount(), player.Position())
	}

	// A new source resets the alignment state.
	if err := r.Apply(protocol.ActionFileURL, &protocol.ControlPayload{URL: "v"}); err != nil {
		t.Fatalf("file-url: %v", err)
	}
	player.set(0.0, false)
	if err := r.Apply(protocol.ActionSync, &protocol.ControlPayload{Time: 0.1}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if player.seekCount() != 2 {
		t.Error("sync after source change should align again")
	}
}

func TestReceiverRejectsMalformed(t *testing.T) {
	r := NewReceiver(&scriptedPlayer{})

	if err := r.Apply(protocol.ActionSeek, nil); err == nil {
		t.Error("seek without payload should error")
	}
	if err := r.Apply(protocol.ActionSync, nil); err == nil {
		t.Error("sync without payload should error")
	}
	if err := r.Apply(protocol.ActionFileURL, &protocol.ControlPayload{}); err == nil {
		t.Error("file-url without url should error")
	}
	if err := r.Apply("rewind", nil); err == nil {
		t.Error("unknown action should error")
	}
}

func TestReceiverPlayBeforeSource(t *testing.T) {
	player := &scriptedPlayer{}
	r := NewReceiver(player)

	if err := r.Apply(protocol.ActionPlay, nil); err != nil {
		t.Fatalf("play without source: %v", err)
	}
	if !player.Playing() {
		t.Error("play should pass through even before a source is known")
	}
}

func TestBroadcasterLateJoinBurst(t *testing.T) {
	hub := bus.NewHub()
	hostBus := hub.Join("host")
	viewerBus := hub.Join("viewer-9")

	player := &scriptedPlayer{}
	b := NewBroadcaster("host", hostBus, player)
	b.Start(context.Background(), "http://relay/media/movie.ivf")
	defer b.Stop()

	// Drain the room-wide source announcement from Start.
	if s := recv(t, viewerBus); s.Action != protocol.ActionFileURL || s.To != "" {
		t.Fatalf("expected broadcast file-url first, got %+v", s)
	}

	player.set(42.0, true)
	b.HandleViewerReady(context.Background(), "viewer-9")

	first := recv(t, viewerBus)
	if first.Action != protocol.ActionFileURL || first.To != "viewer-9" {
		t.Errorf("burst[0] = %+v, want addressed file-url", first)
	}
	if first.Payload == nil || first.Payload.URL != "http://relay/media/movie.ivf" {
		t.Errorf("burst[0] payload = %+v", first.Payload)
	}

	second := recv(t, viewerBus)
	if second.Action != protocol.ActionSeek || second.To != "viewer-9" {
		t.Errorf("burst[1] = %+v, want addressed seek", second)
	}
	if second.Payload == nil || second.Payload.Time != 42.0 {
		t.Errorf("burst[1] payload = %+v", second.Payload)
	}

	third := recv(t, viewerBus)
	if third.Action != protocol.ActionPlay || third.To != "viewer-9" {
		t.Errorf("burst[2] = %+v, want addressed play", third)
	}
}

func TestBroadcasterLateJoinPausedOmitsPlay(t *testing.T) {
	hub := bus.NewHub()
	hostBus := hub.Join("host")
	viewerBus := hub.Join("viewer-9")

	player := &scriptedPlayer{}
	b := NewBroadcaster("host", hostBus, player)
	b.Start(context.Background(), "http://relay/media/movie.ivf")
	defer b.Stop()
	recv(t, viewerBus) // broadcast file-url

	player.set(17.5, false)
	b.HandleViewerReady(context.Background(), "viewer-9")

	if s := recv(t, viewerBus); s.Action != protocol.ActionFileURL {
		t.Errorf("burst[0] = %s", s.Action)
	}
	if s := recv(t, viewerBus); s.Action != protocol.ActionSeek || s.Payload.Time != 17.5 {
		t.Errorf("burst[1] = %+v", s)
	}
	select {
	case s := <-viewerBus.Messages():
		t.Errorf("paused burst should end after seek, got %s", s.Action)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcasterIgnoresViewerReadyWhenInactive(t *testing.T) {
	hub := bus.NewHub()
	hostBus := hub.Join("host")
	viewerBus := hub.Join("viewer-9")

	b := NewBroadcaster("host", hostBus, &scriptedPlayer{})
	b.HandleViewerReady(context.Background(), "viewer-9")
	b.Play(context.Background())
	b.SeekTo(context.Background(), 10)

	select {
	case s := <-viewerBus.Messages():
		t.Errorf("inactive broadcaster published %s", s.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcasterHeartbeatOnlyWhilePlaying(t *testing.T) {
	hub := bus.NewHub()
	hostBus := hub.Join("host")
	viewerBus := hub.Join("viewer-1")

	player := &scriptedPlayer{}
	b := NewBroadcaster("host", hostBus, player)
	b.SetInterval(20 * time.Millisecond)
	b.Start(context.Background(), "http://relay/media/movie.ivf")
	defer b.Stop()
	recv(t, viewerBus) // broadcast file-url

	// Paused: several intervals pass with no heartbeat.
	time.Sleep(100 * time.Millisecond)
	select {
	case s := <-viewerBus.Messages():
		t.Fatalf("heartbeat while paused: %+v", s)
	default:
	}

	player.set(3.0, true)
	deadline := time.After(time.Second)
	for {
		var s protocol.Signal
		select {
		case s = <-viewerBus.Messages():
		case <-deadline:
			t.Fatal("no heartbeat while playing")
		}
		if s.Action == protocol.ActionSync {
			if s.Payload == nil || s.Payload.Time != 3.0 {
				t.Errorf("heartbeat payload = %+v", s.Payload)
			}
			break
		}
	}

	// Stop cancels the heartbeat.
	b.Stop()
	time.Sleep(60 * time.Millisecond)
	drained := false
	for !drained {
		select {
		case <-viewerBus.Messages():
		default:
			drained = true
		}
	}
	time.Sleep(60 * time.Millisecond)
	select {
	case s := <-viewerBus.Messages():
		t.Errorf("heartbeat after stop: %+v", s)
	default:
	}
}

func TestBroadcasterCommandsApplyLocallyThenAnnounce(t *testing.T) {
	hub := bus.NewHub()
	hostBus := hub.Join("host")
	viewerBus := hub.Join("viewer-1")

	player := &scriptedPlayer{}
	b := NewBroadcaster("host", hostBus, player)
	b.Start(context.Background(), "u")
	defer b.Stop()
	recv(t, viewerBus) // file-url

	b.Play(context.Background())
	if !player.Playing() {
		t.Error("play should hit the local player")
	}
	if s := recv(t, viewerBus); s.Action != protocol.ActionPlay || s.To != "" {
		t.Errorf("play announcement = %+v", s)
	}

	b.SeekTo(context.Background(), 42)
	if player.Position() != 42 {
		t.Error("seek should hit the local player")
	}
	if s := recv(t, viewerBus); s.Action != protocol.ActionSeek || s.Payload.Time != 42 {
		t.Errorf("seek announcement = %+v", s)
	}

	b.Pause(context.Background())
	if player.Playing() {
		t.Error("pause should hit the local player")
	}
	if s := recv(t, viewerBus); s.Action != protocol.ActionPause {
		t.Errorf("pause announcement = %+v", s)
	}
}
