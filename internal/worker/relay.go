package worker

import (
	"context"
	"fmt"
	"notesync/internal/domain"
	"notesync/internal/ports"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// From is the journal position to start at: "0" replays everything,
	// "$" only follows new entries.
	From string
	// Target limits output to one note id when set.
	Target       string
	Retention    time.Duration
	TrimSchedule string
}

// Relay follows the status journal, logs every transition and
// periodically trims old entries.
type Relay struct {
	J   ports.StatusJournal
	Cfg Config
}

func (r Relay) Run(ctx context.Context) error {
	c := cron.New()
	if r.Cfg.TrimSchedule != "" && r.Cfg.Retention > 0 {
		if _, err := c.AddFunc(r.Cfg.TrimSchedule, func() { r.trim(ctx) }); err != nil {
			return fmt.Errorf("invalid trim schedule %q: %w", r.Cfg.TrimSchedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	log.Ctx(ctx).Info().Str("from", r.Cfg.From).Str("target", r.Cfg.Target).Msg("tailing status journal")
	return r.J.Tail(ctx, r.Cfg.From, func(e domain.JournalEntry) error {
		if r.Cfg.Target != "" && e.TargetID != r.Cfg.Target {
			return nil
		}
		logEntry(ctx, e)
		return nil
	})
}

func (r Relay) trim(ctx context.Context) {
	n, err := r.J.Trim(ctx, r.Cfg.Retention)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("journal trim failed")
		return
	}
	log.Ctx(ctx).Debug().Int64("removed", n).Msg("journal trimmed")
}

func logEntry(ctx context.Context, e domain.JournalEntry) {
	ev := log.Ctx(ctx).Info()
	if e.Status == domain.StatusError {
		ev = log.Ctx(ctx).Warn().Str("error", e.Error)
	}
	ev.Str("id", e.ID).
		Str("owner", e.OwnerID).
		Str("target", e.TargetID).
		Str("kind", string(e.Kind)).
		Int("attempt", e.Attempt).
		Time("at", e.At).
		Msgf("note %s", e.Status)
}
