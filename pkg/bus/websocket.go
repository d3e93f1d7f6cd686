package bus

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/beamcast/beamcast/pkg/protocol"
)

// WSBus connects to a relay server's websocket endpoint. The relay fans
// signals out to the rest of the room; the read loop applies the receive
// filter so addressed traffic for other peers never surfaces.
type WSBus struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	self    protocol.PeerID
	msgChan chan protocol.Signal
	done    chan struct{}

	closeMu sync.Mutex
	closed  bool
}

// Dial connects to the relay at server (an http, https, ws or wss URL) and
// joins the given room as self.
func Dial(ctx context.Context, server, room string, self protocol.PeerID) (*WSBus, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("dial signaling: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("dial signaling: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + url.PathEscape(room)
	u.RawQuery = url.Values{"peer": {string(self)}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling: %w", err)
	}

	b := &WSBus{
		conn:    conn,
		self:    self,
		msgChan: make(chan protocol.Signal, 64),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *WSBus) readLoop() {
	defer close(b.msgChan)

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.closeMu.Lock()
			wasClosed := b.closed
			b.closeMu.Unlock()
			if !wasClosed {
				log.Printf("signaling read error: %v", err)
			}
			return
		}

		s, err := protocol.Decode(data)
		if err != nil {
			log.Printf("signaling: dropping malformed message: %v", err)
			continue
		}
		if !protocol.Accepts(b.self, s) {
			continue
		}

		select {
		case b.msgChan <- s:
		case <-b.done:
			return
		}
	}
}

func (b *WSBus) Publish(ctx context.Context, s protocol.Signal) error {
	b.closeMu.Lock()
	closed := b.closed
	b.closeMu.Unlock()
	if closed {
		return fmt.Errorf("publish: bus closed")
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if err := b.conn.WriteJSON(s); err != nil {
		return fmt.Errorf("publish %s: %w", s.Kind, err)
	}
	return nil
}

func (b *WSBus) Messages() <-chan protocol.Signal {
	return b.msgChan
}

func (b *WSBus) Close() error {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return b.conn.Close()
}
