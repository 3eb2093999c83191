package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTitle      = "Untitled"
	DefaultNoteStatus = "todo"
	DefaultCategory   = "notes"
	DefaultRecurrence = "none"
)

// Note is the entity synchronized to the remote store. Timestamps are unix
// milliseconds; zero means unset.
type Note struct {
	ID             string   `json:"id"`
	Title          string   `json:"title" validate:"max=200"`
	Content        string   `json:"content"`
	Tags           []string `json:"tags" validate:"max=50,dive,max=64"`
	ColorClass     string   `json:"colorClass,omitempty"`
	Status         string   `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	Category       string   `json:"category" validate:"omitempty,max=64"`
	DueAt          int64    `json:"dueAt,omitempty" validate:"gte=0"`
	RemindAt       int64    `json:"remindAt,omitempty" validate:"gte=0"`
	Recurrence     string   `json:"recurrence" validate:"omitempty,oneof=none daily weekly monthly"`
	LastNotifiedAt int64    `json:"lastNotifiedAt,omitempty" validate:"gte=0"`
	UpdatedAt      int64    `json:"updatedAt" validate:"gte=0"`
}

// Normalize returns a copy of n with defaults filled in. A missing id is
// generated and a missing updatedAt is set to now.
func (n Note) Normalize(now time.Time) Note {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if n.Tags == nil {
		n.Tags = []string{}
	} else {
		n.Tags = append([]string(nil), n.Tags...)
	}
	if n.Status == "" {
		n.Status = DefaultNoteStatus
	}
	if n.Category == "" {
		n.Category = DefaultCategory
	}
	if n.Recurrence == "" {
		n.Recurrence = DefaultRecurrence
	}
	if n.UpdatedAt == 0 {
		n.UpdatedAt = now.UnixMilli()
	}
	return n
}
