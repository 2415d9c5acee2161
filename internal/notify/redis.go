package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/event"
)

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes every session event to the session channel and to the all-sessions channel.
type RedisPublisher struct {
	redis  Redis
	prefix string
}

func NewRedisPublisher(r Redis, prefix string) *RedisPublisher {
	return &RedisPublisher{
		redis:  r,
		prefix: prefix,
	}
}

// Register subscribes the publisher to every session event on the bus.
func (p *RedisPublisher) Register(bus *event.Bus) {
	bus.SubscribeAll(domain.EventNames, func(ctx context.Context, e event.Event) error {
		se, ok := sessionEvent(e)
		if !ok {
			return nil
		}
		return p.Publish(ctx, se)
	})
}

func (p *RedisPublisher) Publish(ctx context.Context, e domain.SessionEvent) error {
	b, err := marshalMessage(e)
	if err != nil {
		return err
	}

	var eg errgroup.Group
	for _, ch := range []string{SessionChannel(p.prefix, e.SessionID), AllChannel(p.prefix)} {
		eg.Go(func() error {
			return p.redis.Publish(ctx, ch, b).Err()
		})
	}

	return eg.Wait()
}

// SessionChannel returns the pubsub channel of a session.
func SessionChannel(prefix, sessionID string) string {
	return fmt.Sprintf("%s:session:%s", prefix, sessionID)
}

// AllChannel returns the pubsub channel carrying the events of every session.
func AllChannel(prefix string) string {
	return fmt.Sprintf("%s:sessions", prefix)
}
