package ports

import (
	"context"
	"notesync/internal/domain"
	"time"
)

// NoteStore is the remote document store notes are synchronized to.
type NoteStore interface {
	SaveNote(ctx context.Context, ownerID string, n domain.Note) error
	DeleteNote(ctx context.Context, ownerID, noteID string) error
	// ListNotes returns the owner's notes ordered by UpdatedAt, newest first.
	ListNotes(ctx context.Context, ownerID string) ([]domain.Note, error)
}

// StatusJournal keeps a trimmed, replayable log of sync status transitions.
type StatusJournal interface {
	Record(ctx context.Context, e domain.StatusEvent) error
	Tail(ctx context.Context, from string, fn func(domain.JournalEntry) error) error
	Trim(ctx context.Context, olderThan time.Duration) (int64, error)
}
