package domain

import "errors"

var ErrUnknownStatus = errors.New("unknown sync status")

// Status is the ephemeral sync state broadcast for a note id.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSyncing  Status = "syncing"
	StatusRetrying Status = "retrying"
	StatusSynced   Status = "synced"
	StatusError    Status = "error"
)

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further processing follows s for a task.
func (s Status) IsTerminal() bool {
	return s == StatusSynced || s == StatusError
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusSyncing, StatusRetrying, StatusSynced, StatusError:
		return Status(s), nil
	default:
		return "", ErrUnknownStatus
	}
}

type TaskKind string

const (
	KindSave   TaskKind = "save"
	KindDelete TaskKind = "delete"
)

// Task is a queued save or delete. Only Attempts changes after creation.
type Task struct {
	Kind     TaskKind
	OwnerID  string
	TargetID string
	Note     Note // snapshot for KindSave, zero for KindDelete
	Attempts int
}
