package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type requestExpirer interface {
	ExpireDue(ctx context.Context, includePending bool, batchSize int) (int, error)
}

// ExpirySweeper periodically expires class requests past their expiry
// date.
type ExpirySweeper struct {
	requests       requestExpirer
	interval       time.Duration
	batchSize      int
	includePending bool
	logger         *zap.Logger
}

// NewExpirySweeper constructs the sweeper.
func NewExpirySweeper(requests requestExpirer, interval time.Duration, batchSize int, includePending bool, logger *zap.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweeper{
		requests:       requests,
		interval:       interval,
		batchSize:      batchSize,
		includePending: includePending,
		logger:         logger,
	}
}

// Run sweeps once immediately and then on every tick until the context
// is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	if _, err := s.requests.ExpireDue(ctx, s.includePending, s.batchSize); err != nil {
		s.logger.Sugar().Errorw("expiry sweep failed", "error", err)
	}
}
