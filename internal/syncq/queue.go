// Package syncq serializes note saves and deletes against a remote store.
//
// A Queue runs at most one worker goroutine. The worker pops tasks in FIFO
// order, executes the bound operation, and on failure waits out a backoff
// before appending the task to the tail again. Status transitions are
// published per note id to subscribers and to global observers.
package syncq

import (
	"context"
	"errors"
	"fmt"
	"notesync/internal/domain"
	"notesync/pkg/backoff"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
)

var (
	// ErrNoOperation is reported when a task was enqueued without an operation.
	// It is never retried.
	ErrNoOperation = errors.New("syncq: no operation bound to task")

	ErrOperationPanicked = errors.New("syncq: operation panicked")
)

type SaveFunc func(ctx context.Context, ownerID string, n domain.Note) error

type DeleteFunc func(ctx context.Context, ownerID, targetID string) error

type item struct {
	task domain.Task
	save SaveFunc
	del  DeleteFunc
}

type subscriber struct {
	id uint64
	fn func(domain.Status)
}

type Queue struct {
	maxAttempts int
	backoff     backoff.Func
	retryable   func(error) bool
	observers   []Observer
	log         zerolog.Logger
	ctx         context.Context

	mu      sync.Mutex
	items   []*item
	running bool
	idle    chan struct{}

	subMu   sync.RWMutex
	subs    map[string][]subscriber
	nextSub uint64
}

func New(opts ...Option) *Queue {
	idle := make(chan struct{})
	close(idle)

	q := &Queue{
		maxAttempts: DefaultMaxAttempts,
		backoff:     backoff.Doubling(DefaultBaseDelay),
		log:         log.Logger.With().Str("component", "syncq").Logger(),
		ctx:         context.Background(),
		idle:        idle,
		subs:        make(map[string][]subscriber),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueSave queues a save of n under ownerID and returns without waiting.
// The note is snapshotted; later changes by the caller are not seen.
func (q *Queue) EnqueueSave(ownerID string, n domain.Note, op SaveFunc) {
	n.Tags = slices.Clone(n.Tags)
	q.enqueue(&item{
		task: domain.Task{Kind: domain.KindSave, OwnerID: ownerID, TargetID: n.ID, Note: n},
		save: op,
	})
}

// EnqueueDelete queues a delete of targetID under ownerID and returns
// without waiting.
func (q *Queue) EnqueueDelete(ownerID, targetID string, op DeleteFunc) {
	q.enqueue(&item{
		task: domain.Task{Kind: domain.KindDelete, OwnerID: ownerID, TargetID: targetID},
		del:  op,
	})
}

// Subscribe registers fn for status transitions of targetID. fn is called
// synchronously on the emitting goroutine. The returned function removes
// this registration and may be called any number of times.
func (q *Queue) Subscribe(targetID string, fn func(domain.Status)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	q.subMu.Lock()
	q.nextSub++
	id := q.nextSub
	q.subs[targetID] = append(q.subs[targetID], subscriber{id: id, fn: fn})
	q.subMu.Unlock()

	return func() { q.unsubscribe(targetID, id) }
}

// Len returns the number of tasks waiting to be popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain blocks until the queue is empty and the worker is idle.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.running && len(q.items) == 0 {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) unsubscribe(targetID string, id uint64) {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	subs := q.subs[targetID]
	i := slices.IndexFunc(subs, func(s subscriber) bool { return s.id == id })
	if i < 0 {
		return
	}
	subs = slices.Delete(subs, i, i+1)
	if len(subs) == 0 {
		delete(q.subs, targetID)
		return
	}
	q.subs[targetID] = subs
}

func (q *Queue) enqueue(it *item) {
	// pending goes out before the worker can see the task
	q.emit(it, domain.StatusPending, nil)

	q.mu.Lock()
	q.items = append(q.items, it)
	start := !q.running
	if start {
		q.running = true
		q.idle = make(chan struct{})
	}
	idle := q.idle
	q.mu.Unlock()

	if start {
		go q.run(idle)
	}
}

func (q *Queue) run(idle chan struct{}) {
	q.log.Debug().Msg("worker started")
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			close(idle)
			q.mu.Unlock()
			q.log.Debug().Msg("worker idle")
			return
		}
		it := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		q.process(it)
	}
}

func (q *Queue) process(it *item) {
	q.emit(it, domain.StatusSyncing, nil)

	err := q.execute(it)
	if err == nil {
		q.emit(it, domain.StatusSynced, nil)
		return
	}

	it.task.Attempts++
	if it.task.Attempts < q.maxAttempts && q.shouldRetry(err) {
		q.emit(it, domain.StatusRetrying, err)
		q.wait(q.backoff(it.task.Attempts))

		q.mu.Lock()
		q.items = append(q.items, it)
		q.mu.Unlock()
		return
	}

	q.emit(it, domain.StatusError, err)
}

func (q *Queue) execute(it *item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().
				Str("target", it.task.TargetID).
				Str("stack", string(debug.Stack())).
				Msgf("operation panicked: %v", r)
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()

	t := it.task
	switch t.Kind {
	case domain.KindSave:
		if it.save == nil {
			return ErrNoOperation
		}
		n := t.Note
		n.Tags = slices.Clone(n.Tags)
		return it.save(q.ctx, t.OwnerID, n)
	case domain.KindDelete:
		if it.del == nil {
			return ErrNoOperation
		}
		return it.del(q.ctx, t.OwnerID, t.TargetID)
	default:
		return fmt.Errorf("syncq: unknown task kind %q", t.Kind)
	}
}

func (q *Queue) shouldRetry(err error) bool {
	if errors.Is(err, ErrNoOperation) {
		return false
	}
	return q.retryable == nil || q.retryable(err)
}

func (q *Queue) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.ctx.Done():
	}
}

func (q *Queue) emit(it *item, s domain.Status, err error) {
	t := it.task
	ev := q.log.Debug()
	if s == domain.StatusError {
		ev = q.log.Warn()
	}
	ev.Str("owner", t.OwnerID).
		Str("target", t.TargetID).
		Str("kind", string(t.Kind)).
		Int("attempt", t.Attempts).
		Err(err).
		Msgf("note %s", s)

	q.subMu.RLock()
	subs := slices.Clone(q.subs[t.TargetID])
	q.subMu.RUnlock()

	for _, sub := range subs {
		q.deliver(t.TargetID, func() { sub.fn(s) })
	}

	if len(q.observers) == 0 {
		return
	}
	e := domain.StatusEvent{
		OwnerID:  t.OwnerID,
		TargetID: t.TargetID,
		Kind:     t.Kind,
		Status:   s,
		Attempt:  t.Attempts,
		Err:      err,
		At:       time.Now(),
	}
	for _, o := range q.observers {
		q.deliver(t.TargetID, func() { o(e) })
	}
}

// deliver isolates the worker from a panicking callback.
func (q *Queue) deliver(targetID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Str("target", targetID).Msgf("status callback panicked: %v", r)
		}
	}()
	fn()
}
