package session

import (
	"context"
	"testing"
	"time"

	"github.com/beamcast/beamcast/pkg/media"
	"github.com/beamcast/beamcast/pkg/playback"

	"github.com/beamcast/beamcast/pkg/bus"
)

// The tests in this file run a host engine and a viewer engine against the
// same in-memory hub and assert on observable state only, the way the two
// processes would behave across a real signaling server.

func TestScreenShareEndToEnd(t *testing.T) {
	hub := bus.NewHub()
	h := newTestHost(hub)
	clock := playback.NewClock()
	v := newTestViewer(hub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	go v.Run(ctx)

	// The viewer may announce before the host starts sharing. The
	// host-started broadcast makes it announce again, so ordering between
	// the two engines must not matter.
	if err := h.StartCapture(ctx, &media.StaticProvider{}, media.CaptureConstraints{}); err != nil {
		t.Fatalf("start capture: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		s, ok := h.reg.Get("viewer-1")
		return ok && s.State() == StateConnected
	}, "host never completed negotiation")
	waitFor(t, 3*time.Second, func() bool {
		s, ok := v.reg.Get("host")
		return ok && s.State() >= StateAnswerSent
	}, "viewer never answered")

	if got := h.Viewers(); got != 1 {
		t.Errorf("Viewers() = %d, want 1", got)
	}

	h.Stop(ctx)
	waitFor(t, 2*time.Second, func() bool { return v.reg.Len() == 0 },
		"viewer kept its session after host-stopped")
	if h.Mode() != media.ModeNone {
		t.Errorf("host mode = %q after stop", h.Mode())
	}
}

func TestFileBroadcastEndToEnd(t *testing.T) {
	hub := bus.NewHub()
	h := newTestHost(hub)
	clock := playback.NewClock()
	v := newTestViewer(hub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	go v.Run(ctx)

	up := &fakeUploader{url: "http://relay/media/movie.ivf"}
	if err := h.StartFile(ctx, "movie.ivf", up); err != nil {
		t.Fatalf("start file: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return clock.Source() == up.url },
		"viewer never learned the file url")
	if v.reg.Len() != 0 {
		t.Errorf("file mode opened %d transports on the viewer", v.reg.Len())
	}

	h.Play(ctx)
	waitFor(t, 2*time.Second, func() bool { return clock.Playing() }, "play not mirrored")

	h.SeekTo(ctx, 42)
	waitFor(t, 2*time.Second, func() bool {
		pos := clock.Position()
		return pos >= 42 && pos < 43
	}, "seek not mirrored")

	h.Pause(ctx)
	waitFor(t, 2*time.Second, func() bool { return !clock.Playing() }, "pause not mirrored")

	h.Stop(ctx)
	waitFor(t, 2*time.Second, func() bool { return clock.Source() == "" },
		"viewer playback survived host-stopped")
}

func TestModeSwitchEndToEnd(t *testing.T) {
	hub := bus.NewHub()
	h := newTestHost(hub)
	clock := playback.NewClock()
	v := newTestViewer(hub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	go v.Run(ctx)

	if err := h.StartCapture(ctx, &media.StaticProvider{}, media.CaptureConstraints{}); err != nil {
		t.Fatalf("start capture: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		s, ok := h.reg.Get("viewer-1")
		return ok && s.State() == StateConnected
	}, "screen share never established")

	// Switching to file mode tears the transports down on both sides and
	// replaces them with state broadcasts.
	up := &fakeUploader{url: "http://relay/media/movie.ivf"}
	if err := h.StartFile(ctx, "movie.ivf", up); err != nil {
		t.Fatalf("switch to file: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return clock.Source() == up.url },
		"viewer missed the file announcement")
	waitFor(t, 2*time.Second, func() bool { return v.reg.Len() == 0 },
		"viewer transport survived the mode switch")
	if h.reg.Len() != 0 {
		t.Errorf("host kept %d transports in file mode", h.reg.Len())
	}
	if h.Mode() != media.ModeFile {
		t.Errorf("host mode = %q, want file", h.Mode())
	}
}
