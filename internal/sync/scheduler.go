package sync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/loja-mae/fieldsync/internal/errors"
)

// SchedulerImpl triggers the manager periodically and immediately on
// start. Overlap protection is delegated to the manager's in-flight
// guard.
type SchedulerImpl struct {
	manager Manager
	logger  *logrus.Logger

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

// NewScheduler creates a new background sync scheduler
func NewScheduler(manager Manager, logger *logrus.Logger) *SchedulerImpl {
	return &SchedulerImpl{
		manager: manager,
		logger:  logger,
	}
}

// StartBackgroundSync runs one immediate pass, then re-triggers on the
// given interval. Calling it while running replaces the previous timer.
func (s *SchedulerImpl) StartBackgroundSync(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	s.ticker = ticker
	s.done = done

	s.logger.WithField("interval", interval).Info("Background sync started")

	go func() {
		s.trigger(ctx)
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-done:
				ticker.Stop()
				return
			case <-ticker.C:
				s.trigger(ctx)
			}
		}
	}()
}

// StopBackgroundSync cancels the timer; safe to call when not running.
func (s *SchedulerImpl) StopBackgroundSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLocked() {
		s.logger.Info("Background sync stopped")
	}
}

func (s *SchedulerImpl) stopLocked() bool {
	if s.ticker == nil {
		return false
	}
	s.ticker.Stop()
	close(s.done)
	s.ticker = nil
	s.done = nil
	return true
}

func (s *SchedulerImpl) trigger(ctx context.Context) {
	if _, err := s.manager.TriggerSync(ctx, false); err != nil {
		if apperrors.IsSyncInProgress(err) {
			return
		}
		s.logger.WithError(err).Warn("Scheduled sync pass failed")
	}
}
