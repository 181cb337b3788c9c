package taskqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task is one unit of background work.
type Task struct {
	ID      uuid.UUID
	Topic   string
	Payload json.RawMessage

	// Attempt is 1 on the first execution.
	Attempt    int
	EnqueuedAt time.Time
}

func NewTask(topic string, payload any) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}
	return Task{ID: uuid.New(), Topic: topic, Payload: raw, EnqueuedAt: time.Now()}, nil
}

// Dispatcher executes a task.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

type DispatcherFunc func(ctx context.Context, task Task) error

func (f DispatcherFunc) Dispatch(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// Enqueuer schedules a task for asynchronous execution. A returned error means
// the task was not scheduled.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}
