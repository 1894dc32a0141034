package kafka

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	k "github.com/segmentio/kafka-go"
)

// Handler processes one message. A returned error is logged and the message
// is skipped: the next successful commit moves the group offset past it.
type Handler func(ctx context.Context, key, value []byte) error

// fetchBackoff is the pause after a failed fetch.
const fetchBackoff = time.Second

type messageReader interface {
	FetchMessage(ctx context.Context) (k.Message, error)
	CommitMessages(ctx context.Context, msgs ...k.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	backoff time.Duration
}

func NewConsumer(brokers, groupID, topic string) *Consumer {
	return &Consumer{backoff: fetchBackoff, reader: k.NewReader(k.ReaderConfig{
		Brokers:        strings.Split(brokers, ","),
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		StartOffset:    k.LastOffset,
		CommitInterval: time.Second,
	})}
}

func (c *Consumer) Close() error { return c.reader.Close() }

func (c *Consumer) Run(ctx context.Context, h Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Printf("[Kafka] fetch: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		if err := h(ctx, m.Key, m.Value); err != nil {
			log.Printf("[Kafka] handle key=%s offset=%d: %v (skipped)", string(m.Key), m.Offset, err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("[Kafka] commit: %v", err)
		}
	}
}
