package usecase

import (
	"context"
	"errors"
	"fmt"
	"notesync/internal/domain"
	"notesync/internal/ports"
	"notesync/internal/syncq"
	"strings"
	"time"
)

var (
	ErrOwnerRequired  = errors.New("owner id is required")
	ErrNoteIDRequired = errors.New("note id is required")
)

// Notes routes note mutations through the sync queue to the remote store.
type Notes struct {
	Q     *syncq.Queue
	Store ports.NoteStore
	Now   func() time.Time
}

func (s Notes) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Save normalizes n, stamps UpdatedAt and queues it. The returned note is
// the snapshot that will be written.
func (s Notes) Save(ctx context.Context, ownerID string, n domain.Note) (domain.Note, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Note{}, ErrOwnerRequired
	}
	now := s.now()
	n = n.Normalize(now)
	n.UpdatedAt = now.UnixMilli()

	s.Q.EnqueueSave(ownerID, n, s.Store.SaveNote)
	return n, nil
}

// SaveBulk queues every note in order and returns the snapshots.
func (s Notes) SaveBulk(ctx context.Context, ownerID string, notes []domain.Note) ([]domain.Note, error) {
	out := make([]domain.Note, 0, len(notes))
	for _, n := range notes {
		saved, err := s.Save(ctx, ownerID, n)
		if err != nil {
			return out, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (s Notes) Delete(ctx context.Context, ownerID, noteID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrOwnerRequired
	}
	if strings.TrimSpace(noteID) == "" {
		return ErrNoteIDRequired
	}
	s.Q.EnqueueDelete(ownerID, noteID, s.Store.DeleteNote)
	return nil
}

// List fetches the owner's notes from the remote store, newest first,
// with defaults applied.
func (s Notes) List(ctx context.Context, ownerID string) ([]domain.Note, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrOwnerRequired
	}
	notes, err := s.Store.ListNotes(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list notes for %s: %w", ownerID, err)
	}
	now := s.now()
	for i := range notes {
		notes[i] = notes[i].Normalize(now)
	}
	return notes, nil
}

// Watch subscribes fn to status transitions of noteID.
func (s Notes) Watch(noteID string, fn func(domain.Status)) (unsubscribe func()) {
	return s.Q.Subscribe(noteID, fn)
}
