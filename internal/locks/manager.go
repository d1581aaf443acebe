// Package locks coordinates human and AI edits of a task through advisory
// per-task locks.
package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/ashureev/orcascore/internal/metrics"
	"github.com/ashureev/orcascore/internal/store"
)

var (
	// ErrInvalidLockedBy is returned when the owner is not "agent" or "user".
	ErrInvalidLockedBy = errors.New("locked_by must be 'agent' or 'user'")

	// ErrNegativeTimeout is returned by CleanupStale for timeouts below zero.
	ErrNegativeTimeout = errors.New("timeout_minutes must not be negative")
)

// Manager implements the edit lock operations over a LockStore.
type Manager struct {
	store   store.LockStore
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithMetrics records acquisitions and cleanups.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a lock manager.
func NewManager(s store.LockStore, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire locks taskID for lockedBy. It returns false, without error, when
// the task is already locked by anyone.
func (m *Manager) Acquire(ctx context.Context, taskID int64, lockedBy string, originalContent *string) (bool, error) {
	if !domain.ValidLockOwner(lockedBy) {
		return false, ErrInvalidLockedBy
	}

	acquired, err := m.store.InsertLock(ctx, &domain.EditLock{
		TaskID:          taskID,
		LockedBy:        lockedBy,
		LockedAt:        m.now(),
		OriginalContent: originalContent,
	})
	if err != nil {
		return false, fmt.Errorf("acquire lock for task %d: %w", taskID, err)
	}

	m.metrics.LockAcquire(lockedBy, acquired)
	m.logger.Debug("Edit lock acquire", "task_id", taskID, "locked_by", lockedBy, "acquired", acquired)
	return acquired, nil
}

// Release removes the lock on taskID. Releasing an unlocked task is a no-op.
func (m *Manager) Release(ctx context.Context, taskID int64) error {
	if err := m.store.DeleteLock(ctx, taskID); err != nil {
		return fmt.Errorf("release lock for task %d: %w", taskID, err)
	}
	return nil
}

// Check reports whether taskID is locked and by whom.
func (m *Manager) Check(ctx context.Context, taskID int64) (domain.LockStatus, error) {
	lock, err := m.store.GetLock(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LockStatus{}, nil
	}
	if err != nil {
		return domain.LockStatus{}, fmt.Errorf("check lock for task %d: %w", taskID, err)
	}
	owner := lock.LockedBy
	return domain.LockStatus{IsLocked: true, LockedBy: &owner}, nil
}

// OriginalContent returns the snapshot stored when the lock was taken, or ""
// if the task is unlocked or no snapshot was supplied.
func (m *Manager) OriginalContent(ctx context.Context, taskID int64) (string, error) {
	lock, err := m.store.GetLock(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get original content for task %d: %w", taskID, err)
	}
	if lock.OriginalContent == nil {
		return "", nil
	}
	return *lock.OriginalContent, nil
}

// ForceReleaseAll removes every lock and returns how many were removed.
func (m *Manager) ForceReleaseAll(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteAllLocks(ctx)
	if err != nil {
		return 0, fmt.Errorf("force release all locks: %w", err)
	}
	if n > 0 {
		m.logger.Warn("Force released all edit locks", "count", n)
	}
	return n, nil
}

// maxTimeoutMinutes is the largest minute count a time.Duration can hold.
const maxTimeoutMinutes = int64(math.MaxInt64 / time.Minute)

// CleanupStale removes locks held longer than timeoutMinutes. Timeouts beyond
// the Duration range are clamped, which still spans centuries.
func (m *Manager) CleanupStale(ctx context.Context, timeoutMinutes int) (int64, error) {
	if timeoutMinutes < 0 {
		return 0, ErrNegativeTimeout
	}
	timeout := time.Duration(math.MaxInt64)
	if int64(timeoutMinutes) <= maxTimeoutMinutes {
		timeout = time.Duration(timeoutMinutes) * time.Minute
	}
	return m.CleanupOlderThan(ctx, timeout)
}

// CleanupOlderThan removes locks whose age exceeds timeout.
func (m *Manager) CleanupOlderThan(ctx context.Context, timeout time.Duration) (int64, error) {
	if timeout < 0 {
		return 0, ErrNegativeTimeout
	}
	n, err := m.store.DeleteLocksBefore(ctx, m.now().Add(-timeout))
	if err != nil {
		return 0, fmt.Errorf("cleanup stale locks: %w", err)
	}
	m.metrics.StaleLocksRemoved(n)
	return n, nil
}
