package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "dialer:events:"

// RedisBus distributes events across processes via Redis pub/sub, keyed by
// rep. Redis pub/sub is fire-and-forget, which matches the distributor
// contract: missed events are recovered by subscribers re-fetching state.
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{rdb: rdb, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+ev.RepID, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, repID string) (<-chan Event, func(), error) {
	sub := b.rdb.Subscribe(ctx, channelPrefix+repID)
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan Event, 64)
	done := make(chan struct{})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Close()
			close(done)
		})
	}

	go func() {
		defer close(out)
		src := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("event decode failed", "rep_id", repID, "err", err)
					continue
				}
				select {
				case out <- ev:
				default:
					// subscriber too slow; drop
				}
			}
		}
	}()

	return out, cancel, nil
}
