package redisq

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"notesync/internal/domain"
	"notesync/internal/ports"
	"slices"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

var _ ports.NoteStore = (*Client)(nil)

// SaveNote overwrites the stored note. The last write wins.
func (c *Client) SaveNote(ctx context.Context, ownerID string, n domain.Note) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode note %s: %w", n.ID, err)
	}
	if err := c.Rdb.HSet(ctx, c.notesKey(ownerID), n.ID, b).Err(); err != nil {
		return fmt.Errorf("save note %s: %w", n.ID, err)
	}
	return nil
}

// DeleteNote removes the note. Deleting a missing note is not an error.
func (c *Client) DeleteNote(ctx context.Context, ownerID, noteID string) error {
	if err := c.Rdb.HDel(ctx, c.notesKey(ownerID), noteID).Err(); err != nil {
		return fmt.Errorf("delete note %s: %w", noteID, err)
	}
	return nil
}

// ListNotes returns all notes of ownerID, newest first. Undecodable
// entries are skipped.
func (c *Client) ListNotes(ctx context.Context, ownerID string) ([]domain.Note, error) {
	h, err := c.Rdb.HGetAll(ctx, c.notesKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	notes := make([]domain.Note, 0, len(h))
	for field, raw := range h {
		var n domain.Note
		if err := sonic.UnmarshalString(raw, &n); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("owner", ownerID).Str("note", field).Msg("skipping undecodable note")
			continue
		}
		if n.ID == "" {
			n.ID = field
		}
		notes = append(notes, n)
	}

	slices.SortFunc(notes, func(a, b domain.Note) int {
		if d := cmp.Compare(b.UpdatedAt, a.UpdatedAt); d != 0 {
			return d
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return notes, nil
}
