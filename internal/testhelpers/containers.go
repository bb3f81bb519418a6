//go:build integration

package testhelpers

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	kafkaImage    = "confluentinc/confluent-local:7.7.0"
	redisImage    = "redis:7-alpine"
	postgresImage = "postgres:16-alpine"
)

// StartKafka runs a single-node Kafka and returns a ready broker address.
// The test is skipped when Docker is unavailable.
func StartKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := kafkatc.Run(ctx, kafkaImage)
	if err != nil {
		t.Skipf("kafka container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to obtain broker addresses: %v", err)
	}
	if len(brokers) == 0 {
		t.Fatal("no brokers returned by kafka container")
	}
	if err := WaitForKafkaBroker(ctx, brokers[0]); err != nil {
		t.Fatalf("wait for kafka broker: %v", err)
	}
	return brokers[0]
}

// StartRedis runs Redis and returns its host:port address.
func StartRedis(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tcredis.Run(ctx, redisImage)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url %q: %v", uri, err)
	}
	return opts.Addr
}

// StartPostgres runs PostgreSQL and returns a DSN usable with lib/pq.
func StartPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("cortex"),
		tcpostgres.WithUsername("cortex"),
		tcpostgres.WithPassword("cortex"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return dsn
}
