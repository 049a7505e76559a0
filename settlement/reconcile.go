package settlement

import (
	"context"
	"time"

	"github.com/klaytn/kale-pool/metrics"
)

// staleExitCutoffSeconds bounds how long an ExitSplit may sit at
// status=processing before the reconciliation sweep re-drives its payout
// job, covering a process crash between InitiateExit and a completed
// payout.
const staleExitCutoffSeconds = 600 // 10 minutes

// ReconciliationInterval is how often RunReconciliation should be invoked
// by the owning cmd/pool-settlement loop.
const ReconciliationInterval = 5 * time.Minute

// RunReconciliation re-drives every ExitSplit stuck at status=processing
// past staleExitCutoffSeconds, so a crashed payout worker does not strand a
// farmer's exit indefinitely.
func (e *Engine) RunReconciliation(ctx context.Context) {
	metrics.ReconciliationRunsCounter.Inc(1)
	stale, err := e.store.ListStaleProcessingExits(ctx, staleExitCutoffSeconds, 100)
	if err != nil {
		logger.Error("failed to list stale processing exits", "err", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	logger.Info("reconciliation sweep re-driving stale exits", "count", len(stale))
	for _, exit := range stale {
		e.RunPayout(ctx, exit.ID)
	}
}

// RunReconciliationLoop invokes RunReconciliation on ReconciliationInterval until ctx is
// cancelled.
func (e *Engine) RunReconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(ReconciliationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunReconciliation(ctx)
		}
	}
}
