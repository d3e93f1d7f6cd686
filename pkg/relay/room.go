package relay

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beamcast/beamcast/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // SDP offers run tens of KB
	sendBuffer     = 256
)

// Client is one websocket connection inside a room.
type Client struct {
	id   protocol.PeerID
	room *Room
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

// Room routes signals between the clients that joined under one code.
type Room struct {
	code   string
	server *Server

	mu    sync.RWMutex
	peers map[protocol.PeerID]*Client
}

func newRoom(code string, srv *Server) *Room {
	return &Room{code: code, server: srv, peers: make(map[protocol.PeerID]*Client)}
}

// add registers the client, returning any previous connection that claimed
// the same peer ID. A reconnecting peer replaces its old entry.
func (r *Room) add(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.peers[c.id]
	r.peers[c.id] = c
	return old
}

// remove drops the client if it is still the registered connection for its
// peer ID, then retires the room when nobody is left.
func (r *Room) remove(c *Client) {
	r.mu.Lock()
	if r.peers[c.id] == c {
		delete(r.peers, c.id)
	}
	empty := len(r.peers) == 0
	r.mu.Unlock()

	if empty {
		r.server.retireRoom(r)
	}
}

// Peers lists the peer IDs currently connected.
func (r *Room) Peers() []protocol.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]protocol.PeerID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// route delivers an encoded signal: addressed signals go to that peer only,
// the rest go to every room member except the sender.
func (r *Room) route(from *Client, s protocol.Signal, data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s.To != "" {
		target, ok := r.peers[s.To]
		if !ok {
			log.Printf("relay: room %s has no peer %s for %s from %s", r.code, s.To, s.Kind, s.From)
			return
		}
		target.enqueue(data)
		return
	}
	for id, peer := range r.peers {
		if id == from.id {
			continue
		}
		peer.enqueue(data)
	}
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Printf("relay: dropping frame for %s, send buffer full", c.id)
	}
}

// shutdown closes the send channel once, which makes writePump close the
// connection and readPump unwind.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Client) readPump() {
	defer func() {
		c.room.remove(c)
		c.shutdown()
		c.conn.Close()
		log.Printf("relay: peer %s left room %s", c.id, c.room.code)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("relay: read from %s: %v", c.id, err)
			}
			return
		}

		s, err := protocol.Decode(data)
		if err != nil {
			log.Printf("relay: unroutable frame from %s: %v", c.id, err)
			continue
		}

		// The sender field always reflects the connection that carried the
		// frame, whatever the payload claimed.
		if s.From != c.id {
			log.Printf("relay: rewriting from=%s to %s", s.From, c.id)
			s.From = c.id
			data, err = protocol.Encode(s)
			if err != nil {
				continue
			}
		}

		c.room.route(c, s, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("relay: write to %s: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
