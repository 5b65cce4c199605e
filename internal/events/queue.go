package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is an in-memory Publisher/Consumer built on a buffered channel with
// a fixed worker pool. It is safe for concurrent use and suits
// single-instance deployments; multi-instance deployments should swap in a
// distributed queue behind the same interfaces.
type Queue struct {
	events    chan Event
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	workers   int
	closed    bool
}

// NewQueue creates an in-memory event queue. bufferSize bounds how many
// events may be pending before Publish blocks; workers bounds concurrent
// handler invocations.
func NewQueue(bufferSize, workers int) *Queue {
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		events:    make(chan Event, bufferSize),
		closeChan: make(chan struct{}),
		workers:   workers,
	}
}

// Publish implements the Publisher interface. Missing IDs and timestamps
// are filled in here so callers can publish bare events.
func (q *Queue) Publish(ctx context.Context, ev Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	select {
	case q.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			// Publishes are rejected once closeChan is closed, so the
			// buffer only shrinks from here. Drain it before exiting so
			// Stop does not drop accepted events.
			for {
				select {
				case ev := <-q.events:
					_ = handler(ctx, ev)
				default:
					return
				}
			}
		case ev := <-q.events:
			// Handler errors are the handler's responsibility to log;
			// the queue does not retry. The engine's idempotence makes
			// dropped deliveries safe to re-trigger.
			_ = handler(ctx, ev)
		}
	}
}

// Stop implements the Consumer interface. It rejects further publishes,
// drains buffered events, and waits for in-flight handlers, bounded by ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ Publisher = (*Queue)(nil)
	_ Consumer  = (*Queue)(nil)
)
