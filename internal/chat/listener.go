package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// ErrListenerClosed is returned by Receive once the subscription has been
// torn down.
var ErrListenerClosed = errors.New("listener closed")

// Notifications is a single-consumer source of live messages for one
// subscribed user. It carries no backlog; older messages come from History.
type Notifications interface {
	// Receive blocks until the next message for the subscribed user, the
	// context is canceled, or the listener is closed.
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// listener is the Redis-backed Notifications implementation.
// A stalled consumer can shed live notifications (Redis drops slow
// subscribers); the rows stay durable and replay via History.
type listener struct {
	pubsub *redis.PubSub
}

func (l *listener) Receive(ctx context.Context) (*Message, error) {
	for {
		m, err := l.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrListenerClosed, err)
		}
		msg := &Message{}
		if err := json.Unmarshal([]byte(m.Payload), msg); err != nil {
			log.Printf("dropping undecodable notification on %s: %v", m.Channel, err)
			continue
		}
		return msg, nil
	}
}

func (l *listener) Close() error {
	return l.pubsub.Close()
}
