package redisq

import (
	"context"
	"errors"
	"fmt"
	"notesync/internal/config"
	"notesync/internal/domain"
	"notesync/internal/ports"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ ports.StatusJournal = (*Journal)(nil)

// Journal appends status transitions to a Redis stream.
type Journal struct {
	C     *Client
	Cfg   config.Journal
	Block time.Duration
}

func NewJournal(c *Client, cfg config.Journal) *Journal {
	return &Journal{C: c, Cfg: cfg, Block: 5 * time.Second}
}

func (j *Journal) Record(ctx context.Context, e domain.StatusEvent) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	values := map[string]any{
		"owner":   e.OwnerID,
		"target":  e.TargetID,
		"kind":    string(e.Kind),
		"status":  string(e.Status),
		"attempt": e.Attempt,
		"at":      at.UnixMilli(),
	}
	if e.Err != nil {
		values["error"] = e.Err.Error()
	}

	args := &redis.XAddArgs{Stream: j.Cfg.StreamKey, Values: values}
	if j.Cfg.MaxLen > 0 {
		args.MaxLen = j.Cfg.MaxLen
		args.Approx = true
	}
	if err := j.C.Rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("journal %s/%s: %w", e.TargetID, e.Status, err)
	}
	return nil
}

// Tail calls fn for every entry after from ("0" for the beginning, "$" for
// new entries only) until ctx is done or fn returns an error.
func (j *Journal) Tail(ctx context.Context, from string, fn func(domain.JournalEntry) error) error {
	from, err := j.resolve(ctx, from)
	if err != nil {
		return err
	}
	for {
		res, err := j.C.Rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{j.Cfg.StreamKey, from},
			Count:   100,
			Block:   j.Block,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("tail journal: %w", err)
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				from = msg.ID
				e, err := parseEntry(msg)
				if err != nil {
					log.Ctx(ctx).Warn().Err(err).Str("id", msg.ID).Msg("skipping journal entry")
					continue
				}
				if err := fn(e); err != nil {
					return err
				}
			}
		}
	}
}

// resolve pins "$" (or empty) to the current last entry id so entries
// written between two blocking reads are not missed.
func (j *Journal) resolve(ctx context.Context, from string) (string, error) {
	if from != "" && from != "$" {
		return from, nil
	}
	last, err := j.C.Rdb.XRevRangeN(ctx, j.Cfg.StreamKey, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("read journal head: %w", err)
	}
	if len(last) == 0 {
		return "0-0", nil
	}
	return last[0].ID, nil
}

// Trim drops entries older than olderThan and returns how many were removed.
func (j *Journal) Trim(ctx context.Context, olderThan time.Duration) (int64, error) {
	minID := strconv.FormatInt(time.Now().Add(-olderThan).UnixMilli(), 10)
	n, err := j.C.Rdb.XTrimMinID(ctx, j.Cfg.StreamKey, minID).Result()
	if err != nil {
		return 0, fmt.Errorf("trim journal: %w", err)
	}
	return n, nil
}

func parseEntry(msg redis.XMessage) (domain.JournalEntry, error) {
	str := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}
	status, err := domain.ParseStatus(str("status"))
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("status %q: %w", str("status"), err)
	}
	attempt, _ := strconv.Atoi(str("attempt"))
	ms, _ := strconv.ParseInt(str("at"), 10, 64)

	return domain.JournalEntry{
		ID:       msg.ID,
		OwnerID:  str("owner"),
		TargetID: str("target"),
		Kind:     domain.TaskKind(str("kind")),
		Status:   status,
		Attempt:  attempt,
		Error:    str("error"),
		At:       time.UnixMilli(ms),
	}, nil
}
