package syncq

import (
	"context"
	"notesync/internal/domain"
	"notesync/pkg/backoff"

	"github.com/rs/zerolog"
)

// Observer receives every status transition for every target.
// It runs on the emitting goroutine and must not block.
type Observer func(domain.StatusEvent)

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts sets how many failed executions a task may accumulate
// before it is reported as error. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n >= 1 {
			q.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay policy applied between a failure and requeue.
func WithBackoff(f backoff.Func) Option {
	return func(q *Queue) {
		if f != nil {
			q.backoff = f
		}
	}
}

// WithRetryable installs an error classifier. Failures for which it returns
// false go straight to error. Without it every failure is retried.
func WithRetryable(f func(error) bool) Option {
	return func(q *Queue) {
		q.retryable = f
	}
}

// WithObserver adds a global status tap.
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.observers = append(q.observers, o)
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) {
		q.log = l
	}
}

// WithContext sets the context passed to operations and used for backoff
// waits. Once it is done, backoff waits end immediately.
func WithContext(ctx context.Context) Option {
	return func(q *Queue) {
		if ctx != nil {
			q.ctx = ctx
		}
	}
}
