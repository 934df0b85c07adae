package mq

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

const producerGroup = "daily_vote_producer"

type rocketProducer interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
	Shutdown() error
}

// RocketPublisher sends events to a RocketMQ topic, tagged with the event type.
type RocketPublisher struct {
	producer rocketProducer
	topic    string
}

// NewRocketPublisher starts a producer against nameServer.
func NewRocketPublisher(nameServer, topic string) (*RocketPublisher, error) {
	log.Printf("mq: connecting to RocketMQ at %s", nameServer)

	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{nameServer}),
		producer.WithGroupName(producerGroup),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer: %w", err)
	}

	log.Println("mq: RocketMQ producer started")
	return newRocketPublisher(p, topic), nil
}

func newRocketPublisher(p rocketProducer, topic string) *RocketPublisher {
	return &RocketPublisher{producer: p, topic: topic}
}

// Publish sends one event synchronously.
func (r *RocketPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	ev, body, err := newEvent(eventType, payload)
	if err != nil {
		return err
	}

	msg := primitive.NewMessage(r.topic, body)
	msg.WithTag(eventType)
	msg.WithKeys([]string{ev.ID})

	res, err := r.producer.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("send %s to rocketmq: %w", eventType, err)
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send %s to rocketmq: status %d", eventType, res.Status)
	}
	log.Printf("mq: published %s event %s, msgID %s", eventType, ev.ID, res.MsgID)
	return nil
}

// Close shuts the producer down.
func (r *RocketPublisher) Close() {
	if err := r.producer.Shutdown(); err != nil {
		log.Printf("mq: shutdown RocketMQ producer: %v", err)
		return
	}
	log.Println("mq: RocketMQ producer closed")
}
