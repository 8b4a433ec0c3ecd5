package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge shares change events between service instances through a Redis Stream.
// Events are delivered to the local hub immediately and appended to the stream;
// events read back from the stream that this instance published are skipped.
type RedisBridge struct {
	client *redis.Client
	stream string
	hub    *Hub
	origin string
	maxLen int64
	block  time.Duration
	log    *zap.Logger
}

// NewRedisBridge creates a bridge between hub and stream
func NewRedisBridge(client *redis.Client, stream string, hub *Hub, log *zap.Logger) *RedisBridge {
	return &RedisBridge{
		client: client,
		stream: stream,
		hub:    hub,
		origin: uuid.NewString(),
		maxLen: 10000,
		block:  5 * time.Second,
		log:    log,
	}
}

// Publish implements Publisher
func (b *RedisBridge) Publish(ctx context.Context, ev Event) {
	ev.Origin = b.origin
	b.hub.Publish(ctx, ev)

	data, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("failed to marshal change event", zap.Error(err))
		return
	}

	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": ev.CommitTimestamp.Unix(),
		},
	}).Err(); err != nil {
		b.log.Error("failed to publish change event to stream",
			zap.String("stream", b.stream),
			zap.String("table", ev.Table),
			zap.Error(err),
		)
	}
}

// Run consumes the stream into the hub until ctx is cancelled
func (b *RedisBridge) Run(ctx context.Context) error {
	lastID, err := b.tail(ctx)
	if err != nil {
		return err
	}

	for {
		streams, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{b.stream, lastID},
			Count:   100,
			Block:   b.block,
		}).Result()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			b.log.Error("failed to read change stream", zap.String("stream", b.stream), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				lastID = msg.ID
				b.deliver(ctx, msg)
			}
		}
	}
}

func (b *RedisBridge) deliver(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		b.log.Warn("change stream message without data", zap.String("id", msg.ID))
		return
	}

	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		b.log.Warn("undecodable change stream message", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	if ev.Origin == b.origin {
		return
	}

	b.hub.Publish(ctx, ev)
}

// tail returns the id of the newest entry so reading starts after it
func (b *RedisBridge) tail(ctx context.Context) (string, error) {
	msgs, err := b.client.XRevRangeN(ctx, b.stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}
