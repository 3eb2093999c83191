package usecase

import (
	"context"
	"notesync/internal/domain"
	"notesync/internal/ports"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// JournalSink forwards queue status events to a StatusJournal off the
// queue's worker goroutine. Events are dropped when the buffer is full.
type JournalSink struct {
	J       ports.StatusJournal
	events  chan domain.StatusEvent
	dropped atomic.Int64
}

func NewJournalSink(j ports.StatusJournal, buffer int) *JournalSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &JournalSink{J: j, events: make(chan domain.StatusEvent, buffer)}
}

// Observe is a syncq.Observer.
func (s *JournalSink) Observe(e domain.StatusEvent) {
	select {
	case s.events <- e:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warn().Int64("dropped", n).Msg("journal buffer full, dropping status events")
		}
	}
}

func (s *JournalSink) Dropped() int64 { return s.dropped.Load() }

// Run writes buffered events until ctx is done, then flushes what is left
// with a short grace period.
func (s *JournalSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case e := <-s.events:
			s.write(ctx, e)
		}
	}
}

func (s *JournalSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case e := <-s.events:
			s.write(ctx, e)
		default:
			return
		}
	}
}

func (s *JournalSink) write(ctx context.Context, e domain.StatusEvent) {
	if err := s.J.Record(ctx, e); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("target", e.TargetID).Msg("failed to journal status")
	}
}
