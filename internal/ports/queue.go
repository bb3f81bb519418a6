package ports

import (
	"context"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

// TaskPublisher enqueues tasks for asynchronous execution.
type TaskPublisher interface {
	PublishTask(ctx context.Context, task execution.Task) error
	Close() error
}

// Delivery is one message taken from the task queue.
//
// Err is set when the message could not be decoded; Task.ID is still filled
// when the message carried an identifier. Ack must be called once the
// delivery has been fully handled.
type Delivery struct {
	Task execution.Task
	Err  error
	Ack  func(ctx context.Context) error
}

// TaskConsumer takes tasks off the queue with competing-consumer semantics.
type TaskConsumer interface {
	NextTask(ctx context.Context) (Delivery, error)
	Close() error
}
