package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type tokenPurger interface {
	Purge(ctx context.Context) (int64, error)
}

// HousekeepingService periodically deletes refresh tokens that expired
// longer ago than the retention period.
type HousekeepingService struct {
	purger   tokenPurger
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHousekeepingService creates the worker. It does nothing until Start.
func NewHousekeepingService(purger tokenPurger, logger *zap.Logger, interval time.Duration) *HousekeepingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		purger:   purger,
		logger:   logger,
		interval: interval,
		timeout:  time.Minute,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a purge immediately and then every interval.
func (s *HousekeepingService) Start() {
	go s.run()
	s.logger.Info("housekeeping started", zap.Duration("interval", s.interval))
}

// Stop waits for an in-flight purge to finish. Start must have been called.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	s.logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce()
	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs a single purge.
func (s *HousekeepingService) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.purger.Purge(ctx)
	if err != nil {
		s.logger.Error("refresh token purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("purged expired refresh tokens", zap.Int64("count", n))
	}
}
