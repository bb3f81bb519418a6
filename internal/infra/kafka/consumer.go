// Package kafka implements the task queue on Kafka consumer groups.
package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cuervolu/cortex-engine/internal/ports"
)

const defaultGroupID = "cortex-workers"

// Config describes how to connect to a Kafka cluster for consuming tasks.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

var _ ports.TaskConsumer = (*Consumer)(nil)

// Consumer is one member of the worker consumer group. Offsets are committed
// only when a delivery is acknowledged.
type Consumer struct {
	reader messageReader
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewConsumer builds a new Consumer from the provided configuration.
func NewConsumer(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic must be provided")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = defaultGroupID
	}

	readerConfig := kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	}

	if readerConfig.MinBytes == 0 {
		readerConfig.MinBytes = 1
	}
	if readerConfig.MaxBytes == 0 {
		readerConfig.MaxBytes = 10 * 1024 * 1024
	}
	if readerConfig.MaxWait == 0 {
		readerConfig.MaxWait = time.Second
	}

	return newConsumer(kafkago.NewReader(readerConfig)), nil
}

func newConsumer(reader messageReader) *Consumer {
	return &Consumer{reader: reader}
}

// NextTask blocks until the next task message is available or the context is cancelled.
//
// A message that cannot be decoded is still returned as a delivery with Err
// set, so the caller can record a failure and acknowledge it.
func (c *Consumer) NextTask(ctx context.Context) (ports.Delivery, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return ports.Delivery{}, err
	}

	task, decodeErr := decodeTaskMessage(msg)
	return ports.Delivery{
		Task: task,
		Err:  decodeErr,
		Ack: func(ctx context.Context) error {
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("commit message: %w", err)
			}
			return nil
		},
	}, nil
}

// Close releases the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
