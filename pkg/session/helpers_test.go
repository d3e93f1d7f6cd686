package session

import (
	"testing"
	"time"

	"github.com/beamcast/beamcast/pkg/bus"
	"github.com/beamcast/beamcast/pkg/protocol"
)

// recvKind reads signals until one of the wanted kind arrives, skipping
// whatever else the engine emits along the way (usually trickled candidates).
// Relative order of the kinds a test asserts in sequence is preserved.
func recvKind(t *testing.T, b bus.Bus, kind protocol.Kind) protocol.Signal {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-b.Messages():
			if !ok {
				t.Fatalf("bus closed while waiting for %s", kind)
			}
			if s.Kind == kind {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

// expectNoKind drains the bus for the window and fails if the kind shows up.
func expectNoKind(t *testing.T, b bus.Bus, kind protocol.Kind, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case s, ok := <-b.Messages():
			if !ok {
				return
			}
			if s.Kind == kind {
				t.Fatalf("unexpected %s: %+v", kind, s)
			}
		case <-deadline:
			return
		}
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
