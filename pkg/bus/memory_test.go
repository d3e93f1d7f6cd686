package bus

import (
	"context"
	"testing"
	"time"

	"github.com/beamcast/beamcast/pkg/protocol"
)

func recv(t *testing.T, b Bus) protocol.Signal {
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

func assertEmpty(t *testing.T, b Bus) {
	t.Helper()
	select {
	case s := <-b.Messages():
		t.Fatalf("unexpected signal: %+v", s)
	default:
	}
}

func TestHubExcludesSender(t *testing.T) {
	hub := NewHub()
	host := hub.Join("host")
	viewer := hub.Join("viewer-1")

	if err := host.Publish(context.Background(), protocol.HostStarted("host")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if s := recv(t, viewer); s.Kind != protocol.KindHostStarted {
		t.Errorf("viewer got %s, want host-started", s.Kind)
	}
	assertEmpty(t, host)
}

func TestHubAddressedDelivery(t *testing.T) {
	hub := NewHub()
	host := hub.Join("host")
	v1 := hub.Join("viewer-1")
	v2 := hub.Join("viewer-2")

	sig := protocol.Control("host", "viewer-1", protocol.ActionPlay, nil)
	if err := host.Publish(context.Background(), sig); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recv(t, v1)
	if got.To != "viewer-1" || got.Action != protocol.ActionPlay {
		t.Errorf("viewer-1 got %+v", got)
	}
	assertEmpty(t, v2)
	assertEmpty(t, host)
}

func TestHubPreservesSenderOrder(t *testing.T) {
	hub := NewHub()
	host := hub.Join("host")
	viewer := hub.Join("viewer-1")

	actions := []protocol.Action{protocol.ActionFileURL, protocol.ActionSeek, protocol.ActionPlay}
	for _, a := range actions {
		payload := &protocol.ControlPayload{Time: 42, URL: "http://example/clip.ivf"}
		if err := host.Publish(context.Background(), protocol.Control("host", "viewer-1", a, payload)); err != nil {
			t.Fatalf("publish %s: %v", a, err)
		}
	}

	for i, want := range actions {
		if got := recv(t, viewer); got.Action != want {
			t.Errorf("signal %d: got %s, want %s", i, got.Action, want)
		}
	}
}

func TestHubInterleavedSenders(t *testing.T) {
	hub := NewHub()
	host := hub.Join("host")
	v1 := hub.Join("viewer-1")
	v2 := hub.Join("viewer-2")

	if err := v1.Publish(context.Background(), protocol.ViewerReady("viewer-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := v2.Publish(context.Background(), protocol.ViewerReady("viewer-2")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	seen := map[protocol.PeerID]bool{}
	for i := 0; i < 2; i++ {
		seen[recv(t, host).From] = true
	}
	if !seen["viewer-1"] || !seen["viewer-2"] {
		t.Errorf("host missed a sender: %v", seen)
	}

	// Each viewer sees the other's announcement but not its own.
	if s := recv(t, v1); s.From != "viewer-2" {
		t.Errorf("viewer-1 got announcement from %s", s.From)
	}
	if s := recv(t, v2); s.From != "viewer-1" {
		t.Errorf("viewer-2 got announcement from %s", s.From)
	}
}

func TestMemoryBusClose(t *testing.T) {
	hub := NewHub()
	host := hub.Join("host")
	viewer := hub.Join("viewer-1")

	if err := viewer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if hub.Len() != 1 {
		t.Errorf("hub members = %d after leave, want 1", hub.Len())
	}
	if _, ok := <-viewer.Messages(); ok {
		t.Error("channel still open after close")
	}
	if err := viewer.Publish(context.Background(), protocol.ViewerReady("viewer-1")); err == nil {
		t.Error("publish after close should fail")
	}

	// Host keeps working with the member gone.
	if err := host.Publish(context.Background(), protocol.HostStopped("host")); err != nil {
		t.Fatalf("publish after peer left: %v", err)
	}
}

func TestHubRejoinReplaces(t *testing.T) {
	hub := NewHub()
	first := hub.Join("viewer-1")
	second := hub.Join("viewer-1")
	host := hub.Join("host")

	if _, ok := <-first.Messages(); ok {
		t.Error("stale subscription should have been closed")
	}
	if err := host.Publish(context.Background(), protocol.HostStarted("host")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if s := recv(t, second); s.Kind != protocol.KindHostStarted {
		t.Errorf("replacement subscription got %s", s.Kind)
	}
}
