package settlement

import (
	"context"
	"time"
)

// BalanceRecheckInterval governs how often RunBalanceRecheck should be
// invoked; farmers marked NeedsBalanceRecheck (set on an insufficient-funds
// plant attempt) are re-queried against the chain so a farmer who tops up
// their custodial wallet becomes eligible again without manual
// intervention.
const BalanceRecheckInterval = 2 * time.Minute

// RunBalanceRecheck re-queries chain funding status for every farmer
// flagged NeedsBalanceRecheck, clearing the flag and refreshing
// current_balance/is_funded once the chain confirms sufficient funds.
func (e *Engine) RunBalanceRecheck(ctx context.Context) {
	farmers, err := e.store.ListFarmersNeedingBalanceRecheck(ctx, 100)
	if err != nil {
		logger.Error("failed to list farmers needing balance recheck", "err", err)
		return
	}
	for _, f := range farmers {
		status, err := e.chain.CheckFunding(ctx, f.CustodialPublicKey)
		if err != nil {
			logger.Warn("balance recheck failed for farmer", "farmer", f.ID, "err", err)
			continue
		}
		f.CurrentBalance = status.Balance
		f.IsFunded = status.IsFunded
		if status.IsFunded {
			f.NeedsBalanceRecheck = false
		}
		if err := e.store.UpdateFarmer(ctx, f); err != nil {
			logger.Warn("failed to persist balance recheck result", "farmer", f.ID, "err", err)
		}
	}
}

// RunBalanceRecheckLoop invokes RunBalanceRecheck on BalanceRecheckInterval
// until ctx is cancelled.
func (e *Engine) RunBalanceRecheckLoop(ctx context.Context) {
	ticker := time.NewTicker(BalanceRecheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunBalanceRecheck(ctx)
		}
	}
}
