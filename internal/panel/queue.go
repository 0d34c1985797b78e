package panel

import (
	"context"
	"sync"
)

// StateChannel is the websocket channel carrying State updates.
const StateChannel = "panel.state"

// DefaultQueueSize is the task buffer used when NewQueue gets zero.
const DefaultQueueSize = 64

// Task mutates the panel model on the main goroutine.
type Task func(m *Model)

// Broadcaster pushes state to connected clients. *api.Hub implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the queue.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Queue carries tasks from any goroutine to the single consumer running
// Run.
type Queue struct {
	model       *Model
	broadcaster Broadcaster
	logger      Logger

	tasks     chan Task
	closed    chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue applying tasks to model. broadcaster and logger
// may be nil.
func NewQueue(model *Model, size int, broadcaster Broadcaster, logger Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Queue{
		model:       model,
		broadcaster: broadcaster,
		logger:      logger,
		tasks:       make(chan Task, size),
		closed:      make(chan struct{}),
	}
}

// Model returns the model the queue writes to.
func (q *Queue) Model() *Model {
	return q.model
}

// Post enqueues a task. It blocks while the buffer is full and returns
// false once the queue is closed.
func (q *Queue) Post(t Task) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.tasks <- t:
		return true
	case <-q.closed:
		return false
	}
}

// Notify posts a notice task.
func (q *Queue) Notify(level, message string) bool {
	return q.Post(func(m *Model) { m.Notify(level, message) })
}

// Run applies tasks until ctx is cancelled or the queue is closed. Tasks
// already buffered are coalesced into one broadcast.
func (q *Queue) Run(ctx context.Context) error {
	q.publish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			return nil
		case t := <-q.tasks:
			before := q.model.revision()
			q.apply(t)
			q.drain()
			if q.model.revision() != before {
				q.publish()
			}
		}
	}
}

// Close stops Run and rejects further posts.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

func (q *Queue) drain() {
	for {
		select {
		case t := <-q.tasks:
			q.apply(t)
		default:
			return
		}
	}
}

func (q *Queue) apply(t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panel task panicked", "panic", r)
		}
	}()
	t(q.model)
}

func (q *Queue) publish() {
	if q.broadcaster == nil {
		return
	}
	q.broadcaster.Broadcast(StateChannel, q.model.Snapshot())
}
