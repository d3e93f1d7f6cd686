// Package bus provides the signaling fabric a room rides on. A Bus delivers
// every signal published by other members of the room, already decoded and
// filtered: our own echoes and signals addressed to someone else never reach
// Messages. Delivery is at-least-once and unordered across senders; signals
// from one sender to one recipient arrive in publish order.
package bus

import (
	"context"

	"github.com/beamcast/beamcast/pkg/protocol"
)

// Bus is a room-scoped signaling connection.
type Bus interface {
	// Publish sends a signal to the room. Addressing is carried inside the
	// signal itself; the fabric may still fan it out and rely on receivers
	// to filter.
	Publish(ctx context.Context, s protocol.Signal) error

	// Messages returns the receive channel. It is closed when the bus
	// disconnects or is closed.
	Messages() <-chan protocol.Signal

	Close() error
}
