package mq

import (
	"context"
	"fmt"
	"log"

	"dailyvote-bot/cache"
)

const defaultRedisMaxLen = 1000

// RedisMQ pushes events onto a capped redis list. Consumers pop from the
// right end, so the list is FIFO.
type RedisMQ struct {
	client cache.RedisClient
	queue  string
	maxLen int64
}

// NewRedisMQ creates a publisher writing to queue.
func NewRedisMQ(client cache.RedisClient, queue string, maxLen int64) *RedisMQ {
	if maxLen <= 0 {
		maxLen = defaultRedisMaxLen
	}
	return &RedisMQ{client: client, queue: queue, maxLen: maxLen}
}

// Publish appends an event and trims the list to maxLen.
func (r *RedisMQ) Publish(ctx context.Context, eventType string, payload interface{}) error {
	ev, body, err := newEvent(eventType, payload)
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, r.queue, string(body)).Err(); err != nil {
		return fmt.Errorf("push event to redis: %w", err)
	}
	// oldest events fall off the tail once nobody consumes them
	if err := r.client.LTrim(ctx, r.queue, 0, r.maxLen-1).Err(); err != nil {
		log.Printf("mq: trim %s failed: %v", r.queue, err)
	}
	log.Printf("mq: published %s event %s", eventType, ev.ID)
	return nil
}

// Close is a no-op; the redis client is owned by the caller.
func (r *RedisMQ) Close() {}
