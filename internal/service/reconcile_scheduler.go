package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// StartReconcileScheduler rebuilds the wishlists index every interval. It
// blocks until the context is cancelled, so it should be launched in a
// separate goroutine.
func (s *Service) StartReconcileScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.WithField("interval", interval).Info("Reconcile scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reconcile scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduledReconcile(ctx)
		}
	}
}

func (s *Service) runScheduledReconcile(ctx context.Context) {
	report, err := s.Reconcile(ctx)
	if errors.Is(err, ErrReconcileRunning) {
		s.logger.Debug("Skipping scheduled reconciliation, one is already running")
		return
	}
	if report == nil {
		s.logger.WithError(err).Error("Scheduled reconciliation failed")
		return
	}
	if report.Rewritten {
		s.logger.WithFields(logrus.Fields{
			"added":   report.Added,
			"dropped": report.Dropped,
		}).Info("Scheduled reconciliation repaired the index")
	}
}
