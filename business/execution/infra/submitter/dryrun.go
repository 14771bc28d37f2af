package submitter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

// Reporter receives outcome reports.
type Reporter interface {
	ReportOutcome(ctx context.Context, id string, o domain.Outcome) (domain.Execution, error)
}

// DryRun confirms every submission at its simulated amounts after a delay, without
// touching any chain.
type DryRun struct {
	delay    time.Duration
	reporter atomic.Pointer[Reporter]
	logger   logger.LoggerInterface
}

// NewDryRun creates a dry-run submitter. Attach the coordinator with SetReporter.
func NewDryRun(delay time.Duration, log logger.LoggerInterface) *DryRun {
	return &DryRun{delay: delay, logger: log}
}

// SetReporter sets where outcomes are reported.
func (d *DryRun) SetReporter(r Reporter) {
	d.reporter.Store(&r)
}

// Submit accepts s and reports its outcome in the background.
func (d *DryRun) Submit(ctx context.Context, s domain.Submission) (string, error) {
	correlationID := "dryrun-" + s.ExecutionID
	rp := d.reporter.Load()
	if rp == nil {
		d.logger.Warn(ctx, "dry-run submitter has no reporter, outcome will time out", "execution_id", s.ExecutionID)
		return correlationID, nil
	}

	go func() {
		ctx := context.WithoutCancel(ctx)
		if d.delay > 0 {
			time.Sleep(d.delay)
		}
		_, err := (*rp).ReportOutcome(ctx, s.ExecutionID, domain.Outcome{
			Success:   true,
			AmountOut: s.SimulatedAmountOut,
			TxHash:    correlationID,
		})
		if err != nil {
			d.logger.Warn(ctx, "dry-run outcome rejected", "execution_id", s.ExecutionID, "error", err)
		}
	}()
	return correlationID, nil
}
