package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ContractExpirer is the slice of contract persistence the sweeper uses.
type ContractExpirer interface {
	ExpireOverdue(asOf time.Time) ([]string, error)
}

// ExpirationSweeper periodically flips active contracts whose end date
// has passed to expired. Independent of the document pipeline.
type ExpirationSweeper struct {
	contracts ContractExpirer
	logger    *zap.Logger

	sweepInterval time.Duration

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewExpirationSweeper creates a sweeper with the given interval.
func NewExpirationSweeper(contracts ContractExpirer, interval time.Duration, logger *zap.Logger) *ExpirationSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirationSweeper{
		contracts:     contracts,
		logger:        logger,
		sweepInterval: interval,
	}
}

// Start begins the sweep loop.
func (s *ExpirationSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("expiration sweeper is already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.isRunning = true

	s.logger.Info("ExpirationSweeper started",
		zap.Duration("sweep_interval", s.sweepInterval))

	go s.sweepLoop()
	return nil
}

// Stop halts the sweep loop.
func (s *ExpirationSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("ExpirationSweeper stopped")
}

// Name identifies the worker in manager logs.
func (s *ExpirationSweeper) Name() string {
	return "expiration_sweeper"
}

func (s *ExpirationSweeper) sweepLoop() {
	// Sweep once on startup so restarts don't postpone overdue flips.
	s.sweep()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *ExpirationSweeper) sweep() {
	expired, err := s.contracts.ExpireOverdue(time.Now().UTC())
	if err != nil {
		s.logger.Error("Expiration sweep failed", zap.Error(err))
		return
	}
	if len(expired) > 0 {
		s.logger.Info("Expired overdue contracts",
			zap.Int("count", len(expired)),
			zap.Strings("contract_ids", expired))
	}
}
