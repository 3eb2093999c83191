package syncq

import (
	"context"
	"errors"
	"notesync/internal/domain"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errFail = errors.New("fail")

type recorder struct {
	mu       sync.Mutex
	statuses []domain.Status
}

func (r *recorder) record(s domain.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) get() []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Status(nil), r.statuses...)
}

func fastQueue(opts ...Option) *Queue {
	base := []Option{WithBackoff(func(int) time.Duration { return time.Millisecond })}
	return New(append(base, opts...)...)
}

func drain(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
}

func okSave(context.Context, string, domain.Note) error { return nil }

func failSave(context.Context, string, domain.Note) error { return errFail }

func TestQueue_DefaultPolicy(t *testing.T) {
	q := New()
	require.Equal(t, DefaultMaxAttempts, q.maxAttempts)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, d := range want {
		require.Equal(t, d, q.backoff(i+1))
	}
}

func TestQueue_SuccessEmitsPendingSyncingSynced(t *testing.T) {
	q := fastQueue()
	rec := &recorder{}
	unsub := q.Subscribe("note2", rec.record)
	defer unsub()

	q.EnqueueSave("user1", domain.Note{ID: "note2", Title: "t"}, okSave)
	drain(t, q)

	require.Equal(t, []domain.Status{domain.StatusPending, domain.StatusSyncing, domain.StatusSynced}, rec.get())
}

func TestQueue_ExhaustedRetriesEndInError(t *testing.T) {
	var attempts []int
	var calls atomic.Int32
	q := New(WithBackoff(func(attempt int) time.Duration {
		attempts = append(attempts, attempt)
		return time.Millisecond
	}))
	rec := &recorder{}
	defer q.Subscribe("note1", rec.record)()

	q.EnqueueSave("user1", domain.Note{ID: "note1"}, func(context.Context, string, domain.Note) error {
		calls.Add(1)
		return errFail
	})
	drain(t, q)

	want := []domain.Status{domain.StatusPending}
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		want = append(want, domain.StatusSyncing, domain.StatusRetrying)
	}
	want = append(want, domain.StatusSyncing, domain.StatusError)

	require.Equal(t, want, rec.get())
	require.EqualValues(t, DefaultMaxAttempts, calls.Load())
	require.Equal(t, []int{1, 2, 3, 4}, attempts)
}

func TestQueue_EnqueueDoesNotWaitForOperation(t *testing.T) {
	q := fastQueue()
	rec := &recorder{}
	defer q.Subscribe("n", rec.record)()

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		q.EnqueueSave("u", domain.Note{ID: "n"}, func(context.Context, string, domain.Note) error {
			close(started)
			<-release
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EnqueueSave blocked on the operation")
	}
	require.Equal(t, domain.StatusPending, rec.get()[0])

	<-started
	close(release)
	drain(t, q)
	require.Equal(t, domain.StatusSynced, rec.get()[len(rec.get())-1])
}

func TestQueue_FailingTargetDoesNotBlockOthers(t *testing.T) {
	q := fastQueue()
	r3, r4 := &recorder{}, &recorder{}
	defer q.Subscribe("note3", r3.record)()
	defer q.Subscribe("note4", r4.record)()

	q.EnqueueSave("user1", domain.Note{ID: "note3"}, failSave)
	q.EnqueueSave("user1", domain.Note{ID: "note4"}, okSave)
	drain(t, q)

	require.Equal(t, domain.StatusError, r3.get()[len(r3.get())-1])
	require.NotContains(t, r3.get(), domain.StatusSynced)
	require.Equal(t, []domain.Status{domain.StatusPending, domain.StatusSyncing, domain.StatusSynced}, r4.get())
}

func TestQueue_UnsubscribeStopsOnlyThatCallback(t *testing.T) {
	q := fastQueue()
	first, second := &recorder{}, &recorder{}
	unsubFirst := q.Subscribe("n", first.record)
	defer q.Subscribe("n", second.record)()

	unsubFirst()
	unsubFirst()

	q.EnqueueSave("u", domain.Note{ID: "n"}, okSave)
	drain(t, q)

	require.Empty(t, first.get())
	require.Len(t, second.get(), 3)
}

func TestQueue_UnsubscribeFromInsideCallback(t *testing.T) {
	q := fastQueue()
	rec := &recorder{}
	var unsub func()
	unsub = q.Subscribe("n", func(s domain.Status) {
		rec.record(s)
		if s == domain.StatusSyncing {
			unsub()
		}
	})

	q.EnqueueSave("u", domain.Note{ID: "n"}, okSave)
	drain(t, q)

	require.Equal(t, []domain.Status{domain.StatusPending, domain.StatusSyncing}, rec.get())
}

func TestQueue_SubscribersAreScopedToTarget(t *testing.T) {
	q := fastQueue()
	rec := &recorder{}
	defer q.Subscribe("other", rec.record)()

	q.EnqueueSave("u", domain.Note{ID: "n"}, okSave)
	drain(t, q)

	require.Empty(t, rec.get())
}

func TestQueue_RetryIsAppendedToTail(t *testing.T) {
	var mu sync.Mutex
	var order []string
	log := func(id string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, id)
	}

	q := fastQueue()
	var failedOnce atomic.Bool
	flaky := func(_ context.Context, _ string, n domain.Note) error {
		log(n.ID)
		if failedOnce.CompareAndSwap(false, true) {
			return errFail
		}
		return nil
	}
	plain := func(_ context.Context, _ string, n domain.Note) error {
		log(n.ID)
		return nil
	}

	q.EnqueueSave("u", domain.Note{ID: "a"}, flaky)
	q.EnqueueSave("u", domain.Note{ID: "b"}, plain)
	q.EnqueueSave("u", domain.Note{ID: "c"}, plain)
	drain(t, q)

	require.Equal(t, []string{"a", "b", "c", "a"}, order)
}

func TestQueue_TaskEnqueuedDuringBackoffRunsBeforeRetry(t *testing.T) {
	inBackoff := make(chan struct{})
	var once sync.Once
	q := New(WithBackoff(func(int) time.Duration {
		once.Do(func() { close(inBackoff) })
		return 50 * time.Millisecond
	}))

	var mu sync.Mutex
	var order []string
	var failedOnce atomic.Bool
	op := func(_ context.Context, _ string, n domain.Note) error {
		mu.Lock()
		order = append(order, n.ID)
		mu.Unlock()
		if n.ID == "a" && failedOnce.CompareAndSwap(false, true) {
			return errFail
		}
		return nil
	}

	q.EnqueueSave("u", domain.Note{ID: "a"}, op)
	<-inBackoff
	q.EnqueueSave("u", domain.Note{ID: "b"}, op)
	drain(t, q)

	require.Equal(t, []string{"a", "b", "a"}, order)
}

func TestQueue_DeletePassesOwnerAndTarget(t *testing.T) {
	q := fastQueue()
	rec := &recorder{}
	defer q.Subscribe("n9", rec.record)()

	var gotOwner, gotTarget string
	q.EnqueueDelete("owner-1", "n9", func(_ context.Context, ownerID, targetID string) error {
		gotOwner, gotTarget = ownerID, targetID
		return nil
	})
	drain(t, q)

	require.Equal(t, "owner-1", gotOwner)
	require.Equal(t, "n9", gotTarget)
	require.Equal(t, []domain.Status{domain.StatusPending, domain.StatusSyncing, domain.StatusSynced}, rec.get())
}

func TestQueue_SaveReceivesSnapshot(t *testing.T) {
	q := fastQueue()
	release := make(chan struct{})
	got := make(chan domain.Note, 1)

	note := domain.Note{ID: "n", Title: "before", Tags: []string{"x"}}
	q.EnqueueSave("u", note, func(_ context.Context, _ string, n domain.Note) error {
		<-release
		got <- n
		return nil
	})
	note.Title = "after"
	note.Tags[0] = "y"
	close(release)
	drain(t, q)

	n := <-got
	require.Equal(t, "before", n.Title)
	require.Equal(t, []string{"x"}, n.Tags)
}

func TestQueue_RetryableHookSkipsPermanentErrors(t *testing.T) {
	errPermanent := errors.New("validation")
	q := fastQueue(WithRetryable(func(err error) bool { return !errors.Is(err, errPermanent) }))
	rec := &recorder{}
	defer q.Subscribe("n", rec.record)()

	var calls atomic.Int32
	q.EnqueueSave("u", domain.Note{ID: "n"}, func(context.Context, string, domain.Note) error {
		calls.Add(1)
		return errPermanent
	})
	drain(t, q)

	require.Equal(t, []domain.Status{domain.StatusPending, domain.StatusSyncing, domain.StatusError}, rec.get())
	require.EqualValues(t, 1, calls.Load())
}

func TestQueue_NilOperationFailsWithoutRetry(t *testing.T) {
	var events []domain.StatusEvent
	q := fastQueue(WithObserver(func(e domain.StatusEvent) { events = append(events, e) }))

	q.EnqueueDelete("u", "n", nil)
	drain(t, q)

	require.Len(t, events, 3)
	require.Equal(t, domain.StatusError, events[2].Status)
	require.ErrorIs(t, events[2].Err, ErrNoOperation)
}

func TestQueue_PanickingOperationCountsAsFailure(t *testing.T) {
	q := fastQueue(WithMaxAttempts(2))
	rec := &recorder{}
	defer q.Subscribe("n", rec.record)()

	q.EnqueueSave("u", domain.Note{ID: "n"}, func(context.Context, string, domain.Note) error {
		panic("boom")
	})
	drain(t, q)

	require.Equal(t, []domain.Status{
		domain.StatusPending, domain.StatusSyncing, domain.StatusRetrying, domain.StatusSyncing, domain.StatusError,
	}, rec.get())
}

func TestQueue_PanickingSubscriberDoesNotStopWorker(t *testing.T) {
	q := fastQueue()
	rec := &recorder{}
	defer q.Subscribe("n", func(domain.Status) { panic("bad subscriber") })()
	defer q.Subscribe("n", rec.record)()

	q.EnqueueSave("u", domain.Note{ID: "n"}, okSave)
	drain(t, q)

	require.Equal(t, []domain.Status{domain.StatusPending, domain.StatusSyncing, domain.StatusSynced}, rec.get())
}

func TestQueue_ObserverSeesAttemptsAndKind(t *testing.T) {
	var mu sync.Mutex
	var events []domain.StatusEvent
	q := fastQueue(WithMaxAttempts(3), WithObserver(func(e domain.StatusEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	q.EnqueueDelete("u", "n", func(context.Context, string, string) error { return errFail })
	drain(t, q)

	mu.Lock()
	defer mu.Unlock()
	last := events[len(events)-1]
	require.Equal(t, domain.StatusError, last.Status)
	require.Equal(t, domain.KindDelete, last.Kind)
	require.Equal(t, 3, last.Attempt)
	require.ErrorIs(t, last.Err, errFail)
	require.Equal(t, "u", last.OwnerID)
}

func TestQueue_RunsOneOperationAtATime(t *testing.T) {
	q := fastQueue()
	var inFlight, maxInFlight atomic.Int32
	op := func(context.Context, string, domain.Note) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				q.EnqueueSave("u", domain.Note{ID: "n"}, op)
			}
		}()
	}
	wg.Wait()
	drain(t, q)

	require.EqualValues(t, 1, maxInFlight.Load())
	require.Zero(t, q.Len())
}

func TestQueue_RestartsAfterIdle(t *testing.T) {
	q := fastQueue()
	rec := &recorder{}
	defer q.Subscribe("n", rec.record)()

	q.EnqueueSave("u", domain.Note{ID: "n"}, okSave)
	drain(t, q)
	q.EnqueueSave("u", domain.Note{ID: "n"}, okSave)
	drain(t, q)

	require.Equal(t, []domain.Status{
		domain.StatusPending, domain.StatusSyncing, domain.StatusSynced,
		domain.StatusPending, domain.StatusSyncing, domain.StatusSynced,
	}, rec.get())
}

func TestQueue_DrainHonoursContext(t *testing.T) {
	q := fastQueue()
	release := make(chan struct{})
	defer close(release)
	q.EnqueueSave("u", domain.Note{ID: "n"}, func(context.Context, string, domain.Note) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Drain(ctx), context.DeadlineExceeded)
}

func TestQueue_CancelledContextCutsBackoffShort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := New(WithContext(ctx), WithBackoff(func(int) time.Duration { return time.Hour }))
	rec := &recorder{}
	defer q.Subscribe("n", rec.record)()

	q.EnqueueSave("u", domain.Note{ID: "n"}, failSave)
	drain(t, q)

	require.Equal(t, domain.StatusError, rec.get()[len(rec.get())-1])
}
