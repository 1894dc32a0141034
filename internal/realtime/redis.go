package realtime

import (
	"context"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "rt:"

// RedisBus publishes signals through Redis pub/sub so that every instance sees
// writes made by any other; local subscribers are served by an embedded LocalBus.
type RedisBus struct {
	rdb   *redis.Client
	local *LocalBus
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb, local: NewLocalBus()}
}

func (b *RedisBus) Publish(ctx context.Context, t Topic) error {
	return b.rdb.Publish(ctx, channelPrefix+string(t), "1").Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, t Topic) (<-chan struct{}, error) {
	return b.local.Subscribe(ctx, t)
}

// Run relays Redis messages to local subscribers until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	ps := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	log.Printf("[realtime] relaying %s* from redis", channelPrefix)
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			_ = b.local.Publish(ctx, Topic(strings.TrimPrefix(m.Channel, channelPrefix)))
		}
	}
}
