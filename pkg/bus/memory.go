package bus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/beamcast/beamcast/pkg/protocol"
)

// Hub is an in-process signaling fabric. It backs the --local mode and lets
// tests drive the full protocol without a network. Signals pass through the
// wire codec so members see exactly what a remote fabric would deliver.
type Hub struct {
	mu      sync.RWMutex
	members map[protocol.PeerID]*MemoryBus
}

func NewHub() *Hub {
	return &Hub{members: make(map[protocol.PeerID]*MemoryBus)}
}

// Join subscribes a peer to the hub and returns its bus. Joining twice with
// the same ID replaces the earlier subscription.
func (h *Hub) Join(self protocol.PeerID) *MemoryBus {
	b := &MemoryBus{
		hub:  h,
		self: self,
		ch:   make(chan protocol.Signal, 64),
	}

	h.mu.Lock()
	if prev, ok := h.members[self]; ok {
		prev.detach()
	}
	h.members[self] = b
	h.mu.Unlock()
	return b
}

// Len reports the number of subscribed members.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

func (h *Hub) dispatch(from protocol.PeerID, data []byte) {
	s, err := protocol.Decode(data)
	if err != nil {
		log.Printf("hub: dropping malformed signal from %s: %v", from, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, m := range h.members {
		if id == from {
			continue
		}
		if !protocol.Accepts(id, s) {
			continue
		}
		select {
		case m.ch <- s:
		default:
			log.Printf("hub: %s receive buffer full, dropping %s", id, s.Kind)
		}
	}
}

func (h *Hub) leave(b *MemoryBus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[b.self] == b {
		delete(h.members, b.self)
	}
}

// MemoryBus is one member's connection to a Hub.
type MemoryBus struct {
	hub  *Hub
	self protocol.PeerID

	mu     sync.Mutex
	ch     chan protocol.Signal
	closed bool
}

func (b *MemoryBus) Publish(ctx context.Context, s protocol.Signal) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("publish: bus closed")
	}

	data, err := protocol.Encode(s)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	b.hub.dispatch(b.self, data)
	return nil
}

func (b *MemoryBus) Messages() <-chan protocol.Signal {
	return b.ch
}

func (b *MemoryBus) Close() error {
	b.hub.leave(b)
	b.detach()
	return nil
}

// detach closes the receive channel once the hub can no longer reach it.
// Callers must have removed b from the hub member map first; leave blocks
// until in-flight dispatches holding the read lock have drained.
func (b *MemoryBus) detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
