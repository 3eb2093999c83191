package domain

import "time"

// StatusEvent describes one status transition of one task.
type StatusEvent struct {
	OwnerID  string
	TargetID string
	Kind     TaskKind
	Status   Status
	// Attempt is the number of failed executions so far.
	Attempt int
	Err     error
	At      time.Time
}

// JournalEntry is a StatusEvent read back from the journal.
type JournalEntry struct {
	ID       string
	OwnerID  string
	TargetID string
	Kind     TaskKind
	Status   Status
	Attempt  int
	Error    string
	At       time.Time
}
