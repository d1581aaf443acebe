package locks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/orcascore/internal/shared"
)

// Default sweep settings.
const (
	DefaultSweepInterval = 60 * time.Second
	DefaultStaleTimeout  = 5 * time.Minute
)

const (
	sweepMaxRetries = 3
	sweepBaseDelay  = 100 * time.Millisecond
)

// Sweeper periodically removes stale locks until stopped.
type Sweeper struct {
	mgr      *Manager
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartSweeper sweeps once immediately, then every interval, until ctx is
// done or Stop is called.
func StartSweeper(ctx context.Context, mgr *Manager, interval, timeout time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout < 0 {
		timeout = DefaultStaleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Sweeper{
		mgr:      mgr,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("Lock sweeper started", "interval", s.interval, "timeout", s.timeout)

	s.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("Lock sweeper shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	var removed int64
	err := shared.RetryOnConflict(ctx, "lock sweep", sweepMaxRetries, sweepBaseDelay, func() error {
		n, err := s.mgr.CleanupOlderThan(ctx, s.timeout)
		removed = n
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Lock sweeper failed to remove stale locks", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("Lock sweeper removed stale locks", "count", removed)
	}
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the loop has exited.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}
