package bus

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/beamcast/beamcast/pkg/protocol"
)

// roomChannel names the pub/sub channel a room's signals travel on.
func roomChannel(room string) string {
	return "beamcast:room:" + room
}

// RedisBus carries a room's signaling over a Redis pub/sub channel, for
// deployments that already run Redis instead of the relay server. Redis
// delivers published messages back to the publisher, so the receive filter
// does the echo suppression here.
type RedisBus struct {
	rdb     *redis.Client
	pubsub  *redis.PubSub
	channel string
	self    protocol.PeerID
	msgChan chan protocol.Signal
}

// NewRedis subscribes to the room's channel on an existing client. The client
// is not owned by the bus; Close tears down only the subscription.
func NewRedis(ctx context.Context, rdb *redis.Client, room string, self protocol.PeerID) (*RedisBus, error) {
	pubsub := rdb.Subscribe(ctx, roomChannel(room))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe room %s: %w", room, err)
	}

	b := &RedisBus{
		rdb:     rdb,
		pubsub:  pubsub,
		channel: roomChannel(room),
		self:    self,
		msgChan: make(chan protocol.Signal, 64),
	}
	go b.readLoop()
	return b, nil
}

func (b *RedisBus) readLoop() {
	defer close(b.msgChan)

	for msg := range b.pubsub.Channel() {
		s, err := protocol.Decode([]byte(msg.Payload))
		if err != nil {
			log.Printf("redis signaling: dropping malformed message: %v", err)
			continue
		}
		if !protocol.Accepts(b.self, s) {
			continue
		}
		b.msgChan <- s
	}
}

func (b *RedisBus) Publish(ctx context.Context, s protocol.Signal) error {
	data, err := protocol.Encode(s)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", s.Kind, err)
	}
	return nil
}

func (b *RedisBus) Messages() <-chan protocol.Signal {
	return b.msgChan
}

func (b *RedisBus) Close() error {
	return b.pubsub.Close()
}
