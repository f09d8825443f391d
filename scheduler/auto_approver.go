package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper is the work the auto-approver runs on each tick.
type Sweeper interface {
	AutoApproveDue(ctx context.Context, now time.Time) (int, error)
}

// AutoApprover periodically approves payment requests left unanswered past
// the auto-approval window.
type AutoApprover struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewAutoApprover(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *AutoApprover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoApprover{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.Named("auto_approver"),
		now:      time.Now,
	}
}

// Start sweeps once immediately, then on every interval until ctx is done.
func (a *AutoApprover) Start(ctx context.Context) {
	a.logger.Info("starting payment auto-approver", zap.Duration("interval", a.interval))
	a.RunOnce(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("payment auto-approver stopped")
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of approvals.
func (a *AutoApprover) RunOnce(ctx context.Context) int {
	n, err := a.sweeper.AutoApproveDue(ctx, a.now())
	if err != nil {
		a.logger.Error("auto-approval sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		a.logger.Info("auto-approved payment requests", zap.Int("count", n))
	}
	return n
}
