package domain

import (
	"time"
)

// Lock owners accepted by the edit lock table.
const (
	LockedByAgent = "agent"
	LockedByUser  = "user"
)

// EditLock is an advisory per-task lock coordinating human and AI edits.
type EditLock struct {
	TaskID          int64     `json:"task_id"`
	LockedBy        string    `json:"locked_by"`
	LockedAt        time.Time `json:"locked_at"`
	OriginalContent *string   `json:"original_content,omitempty"`
}

// IsStale returns true if the lock is older than timeout at the given instant.
func (l *EditLock) IsStale(now time.Time, timeout time.Duration) bool {
	return l.LockedAt.Add(timeout).Before(now)
}

// LockStatus reports whether a task is locked and by whom.
type LockStatus struct {
	IsLocked bool    `json:"is_locked"`
	LockedBy *string `json:"locked_by"`
}

// ValidLockOwner returns true for the two accepted lock owners.
func ValidLockOwner(lockedBy string) bool {
	return lockedBy == LockedByAgent || lockedBy == LockedByUser
}
