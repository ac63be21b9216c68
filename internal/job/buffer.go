package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopforge/catalogsearch/internal/domain"
)

const (
	// defaultDebounce is how long the buffer waits after the last task
	// before flushing. Bursts of catalog events within this window
	// coalesce into one dispatch.
	defaultDebounce = 50 * time.Millisecond

	// defaultMaxHold caps how long a task can sit in the buffer under a
	// steady stream of events that keeps resetting the debounce window.
	defaultMaxHold = 1 * time.Second

	dispatchTimeout = 30 * time.Second
)

// Dispatcher receives the reduced task batches the buffer flushes.
type Dispatcher interface {
	Dispatch(ctx context.Context, tasks []domain.Task) error
}

// Buffer accumulates maintenance tasks and flushes them, reduced, after a
// quiet period. Add never blocks on the dispatcher.
type Buffer struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	debounce   time.Duration
	maxHold    time.Duration

	mu         sync.Mutex
	pending    []domain.Task
	quiesce    *time.Timer
	deadline   *time.Timer
	closed     bool
	flushGroup sync.WaitGroup

	// dispatchMu serializes flushes end to end. Batches are taken from
	// pending in the order flushes acquire it, so a slow publish of batch
	// N can never be overtaken by batch N+1 on the wire.
	dispatchMu sync.Mutex
}

// BufferOption customizes buffer timing.
type BufferOption func(*Buffer)

// WithDebounce overrides the quiet-period window.
func WithDebounce(d time.Duration) BufferOption {
	return func(b *Buffer) { b.debounce = d }
}

// WithMaxHold overrides the maximum buffering time.
func WithMaxHold(d time.Duration) BufferOption {
	return func(b *Buffer) { b.maxHold = d }
}

func NewBuffer(dispatcher Dispatcher, logger *slog.Logger, opts ...BufferOption) *Buffer {
	b := &Buffer{
		dispatcher: dispatcher,
		logger:     logger,
		debounce:   defaultDebounce,
		maxHold:    defaultMaxHold,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add buffers a task. The flush timer restarts on every add; the hold timer
// starts when the buffer transitions from empty to non-empty and is not
// reset by later adds.
func (b *Buffer) Add(task domain.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Warn("task dropped, buffer closed", "task_type", string(task.Type))
		return
	}

	first := len(b.pending) == 0
	b.pending = append(b.pending, task)

	if b.quiesce == nil {
		b.quiesce = time.AfterFunc(b.debounce, b.flushAsync)
	} else {
		b.quiesce.Reset(b.debounce)
	}
	if first {
		if b.deadline == nil {
			b.deadline = time.AfterFunc(b.maxHold, b.flushAsync)
		} else {
			b.deadline.Reset(b.maxHold)
		}
	}
}

func (b *Buffer) flushAsync() {
	b.flushGroup.Add(1)
	go func() {
		defer b.flushGroup.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		b.Flush(ctx)
	}()
}

// Flush dispatches whatever is currently buffered, reduced. It is safe to
// call at any time; an empty buffer is a no-op. Flushes run one at a time
// so dispatched batches reach the queue in flush order.
func (b *Buffer) Flush(ctx context.Context) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.Lock()
	tasks := b.pending
	b.pending = nil
	if b.quiesce != nil {
		b.quiesce.Stop()
	}
	if b.deadline != nil {
		b.deadline.Stop()
	}
	b.mu.Unlock()

	if len(tasks) == 0 {
		return
	}

	reduced := Reduce(tasks)
	if err := b.dispatcher.Dispatch(ctx, reduced); err != nil {
		b.logger.Error("dispatch buffered tasks failed, requeueing",
			"error", err,
			"buffered", len(tasks),
			"dispatched", len(reduced),
		)
		b.requeue(reduced)
		return
	}
	b.logger.Debug("dispatched buffered tasks",
		"buffered", len(tasks),
		"dispatched", len(reduced),
	)
}

// requeue puts a failed batch back at the front of the buffer so the next
// flush retries it ahead of anything added meanwhile. A closed buffer has no
// next flush; its batch is dropped with an error log.
func (b *Buffer) requeue(tasks []domain.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Error("dropping tasks, dispatch failed on closed buffer",
			"dropped", len(tasks),
		)
		return
	}

	b.pending = append(tasks, b.pending...)
	if b.quiesce == nil {
		b.quiesce = time.AfterFunc(b.debounce, b.flushAsync)
	} else {
		b.quiesce.Reset(b.debounce)
	}
	if b.deadline == nil {
		b.deadline = time.AfterFunc(b.maxHold, b.flushAsync)
	} else {
		b.deadline.Reset(b.maxHold)
	}
}

// Close flushes remaining tasks and stops accepting new ones.
func (b *Buffer) Close(ctx context.Context) {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.Flush(ctx)
	b.flushGroup.Wait()
}
