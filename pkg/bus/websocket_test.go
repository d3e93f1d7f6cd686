package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/beamcast/beamcast/pkg/protocol"
)

// fanout upgrades every connection and relays each frame to every connection,
// the sender included. The client-side filter has to do all the work.
type fanout struct {
	mu    sync.Mutex
	conns []*websocket.Conn
	paths []string
}

func (f *fanout) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.paths = append(f.paths, r.URL.Path+"?"+r.URL.RawQuery)
	f.mu.Unlock()

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.mu.Lock()
			for _, c := range f.conns {
				c.WriteMessage(websocket.TextMessage, data)
			}
			f.mu.Unlock()
		}
	}()
}

func TestWSBusFiltersOwnEcho(t *testing.T) {
	f := &fanout{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	// http scheme gets translated to ws.
	host, err := Dial(context.Background(), srv.URL, "BRAVE-FOX-42", "host")
	if err != nil {
		t.Fatalf("dial host: %v", err)
	}
	defer host.Close()
	viewer, err := Dial(context.Background(), srv.URL, "BRAVE-FOX-42", "viewer-1")
	if err != nil {
		t.Fatalf("dial viewer: %v", err)
	}
	defer viewer.Close()

	if err := host.Publish(context.Background(), protocol.HostStarted("host")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if s := recv(t, viewer); s.Kind != protocol.KindHostStarted {
		t.Errorf("viewer got %s, want host-started", s.Kind)
	}

	// The fanout echoed the frame back to the host connection too. Frames on
	// one connection arrive in order, so once the host sees the viewer's
	// announcement it must already have processed, and swallowed, its own echo.
	if err := viewer.Publish(context.Background(), protocol.ViewerReady("viewer-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if s := recv(t, host); s.Kind != protocol.KindViewerReady {
		t.Errorf("host got %s, want viewer-ready", s.Kind)
	}
	assertEmpty(t, host)

	f.mu.Lock()
	path := f.paths[0]
	f.mu.Unlock()
	if path != "/ws/BRAVE-FOX-42?peer=host" {
		t.Errorf("dial used path %q", path)
	}
}

func TestWSBusDropsAddressedToOther(t *testing.T) {
	f := &fanout{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	host, err := Dial(context.Background(), srv.URL, "R", "host")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer host.Close()
	v1, err := Dial(context.Background(), srv.URL, "R", "viewer-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer v1.Close()

	sig := protocol.Control("host", "viewer-2", protocol.ActionPause, nil)
	if err := host.Publish(context.Background(), sig); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Give the frame time to make the round trip before checking silence.
	if err := host.Publish(context.Background(), protocol.HostStopped("host")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if s := recv(t, v1); s.Kind != protocol.KindHostStopped {
		t.Errorf("viewer-1 got %s; the addressed pause should have been dropped", s.Kind)
	}
}

func TestDialRejectsUnknownScheme(t *testing.T) {
	if _, err := Dial(context.Background(), "ftp://example.com", "R", "host"); err == nil {
		t.Error("expected scheme error")
	}
}

func TestWSBusClose(t *testing.T) {
	f := &fanout{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	b, err := Dial(context.Background(), srv.URL, "R", "host")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-b.Messages(); ok {
		t.Error("messages channel still open after close")
	}
	if err := b.Publish(context.Background(), protocol.ViewerReady("host")); err == nil {
		t.Error("publish after close should fail")
	}
}
