package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay publishes events on a Redis channel and feeds events received
// from that channel into the local bus, so every instance delivers to its own
// connections.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   *Bus
	logger  *zap.SugaredLogger
}

func NewRedisRelay(rdb *redis.Client, channel string, local *Bus, logger *zap.SugaredLogger) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		logger:  logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel, err)
	}
	return nil
}

// Run forwards relayed events to the local bus until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	r.logger.Infow("fanout relay starting", "channel", r.channel)
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warnw("relay receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		ev, err := DecodeEvent([]byte(msg.Payload))
		if err != nil {
			r.logger.Warnw("dropping malformed relayed event", "error", err)
			continue
		}
		r.local.Deliver(ev)
	}
}

// DecodeEvent parses a relayed envelope.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if _, err := ParseRoom(string(ev.Room)); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	return ev, nil
}
