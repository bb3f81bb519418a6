package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// TopicConfig describes the task topic to create at startup.
type TopicConfig struct {
	Brokers           []string
	Topic             string
	Partitions        int
	ReplicationFactor int
}

type adminConn interface {
	Controller() (kafkago.Broker, error)
	CreateTopics(topics ...kafkago.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafkago.Partition, error)
	SetDeadline(t time.Time) error
	Close() error
}

type dialFunc func(ctx context.Context, addr string) (adminConn, error)

func dialAdmin(ctx context.Context, addr string) (adminConn, error) {
	conn, err := kafkago.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// EnsureTopic creates the topic with cfg.Partitions partitions when it does
// not exist yet and returns the partition count the topic ends up with. An
// existing topic is left as is, so the count may be lower than requested.
func EnsureTopic(ctx context.Context, cfg TopicConfig) (int, error) {
	return ensureTopic(ctx, dialAdmin, cfg)
}

func ensureTopic(ctx context.Context, dial dialFunc, cfg TopicConfig) (int, error) {
	if len(cfg.Brokers) == 0 {
		return 0, fmt.Errorf("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return 0, fmt.Errorf("topic must be provided")
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}

	conn, err := dial(ctx, cfg.Brokers[0])
	if err != nil {
		return 0, fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()
	setDeadline(ctx, conn)

	controller, err := conn.Controller()
	if err != nil {
		return 0, fmt.Errorf("controller: %w", err)
	}

	ctrlConn, err := dial(ctx, net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return 0, fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()
	setDeadline(ctx, ctrlConn)

	err = ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
	})
	if err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
		return 0, fmt.Errorf("create topic %s: %w", cfg.Topic, err)
	}

	partitions, err := conn.ReadPartitions(cfg.Topic)
	if err != nil {
		return 0, fmt.Errorf("read partitions of %s: %w", cfg.Topic, err)
	}
	return len(partitions), nil
}

func setDeadline(ctx context.Context, conn adminConn) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
}
