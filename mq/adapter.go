// Package mq publishes poll lifecycle events to a message queue.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"dailyvote-bot/cache"

	"github.com/google/uuid"
)

// Queue drivers.
const (
	DriverNone     = "none"
	DriverRedis    = "redis"
	DriverRocketMQ = "rocketmq"
)

// Event is the envelope of every published message.
type Event struct {
	ID        string          `json:"id"` // consumers use it for deduplication
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func newEvent(eventType string, payload interface{}) (Event, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Payload:   raw,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return Event{}, nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return ev, body, nil
}

// Publisher sends lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
	Close()
}

// Options select and configure the queue backend.
type Options struct {
	Driver     string
	Topic      string
	NameServer string // rocketmq only
	MaxLen     int64  // redis only, 0 keeps the default
}

// NewPublisher builds the publisher for opts.Driver. The redis driver needs
// redisClient; when it is nil the bot keeps running without events.
func NewPublisher(opts Options, redisClient cache.RedisClient) (Publisher, error) {
	switch opts.Driver {
	case "", DriverNone:
		log.Println("mq: lifecycle events disabled")
		return NoopPublisher{}, nil
	case DriverRedis:
		if redisClient == nil {
			log.Println("mq: redis driver selected but redis is unavailable, events disabled")
			return NoopPublisher{}, nil
		}
		log.Printf("mq: publishing lifecycle events to redis list %s", opts.Topic)
		return NewRedisMQ(redisClient, opts.Topic, opts.MaxLen), nil
	case DriverRocketMQ:
		return NewRocketPublisher(opts.NameServer, opts.Topic)
	default:
		return nil, fmt.Errorf("unknown mq driver %q", opts.Driver)
	}
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Close does nothing.
func (NoopPublisher) Close() {}
