package settlement

import (
	"context"
	"time"

	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/metrics"
	"github.com/klaytn/kale-pool/models"
)

// payoutLeg is one of the three transfers a payout job performs.
type payoutLeg struct {
	name         string
	amount       int64
	dest         string
	txHash       *string
	auditPaid    string
	auditRetried string
}

// RunPayout runs the payout job: three independent transfers from the
// farmer's custodial wallet, each retried up to MaxRetry with exponential
// backoff, skipping any leg whose tx hash is already recorded so a replayed
// call is idempotent.
func (e *Engine) RunPayout(ctx context.Context, exitID models.ID) {
	exit, err := e.store.GetExitSplit(ctx, exitID)
	if err != nil {
		logger.Error("failed to load exit split for payout", "exit", exitID, "err", err)
		return
	}
	if exit.Status != models.ExitProcessing {
		return
	}

	secret, err := e.secretFor(ctx, exit.FarmerID)
	if err != nil {
		logger.Error("failed to load farmer secret for payout", "exit", exitID, "err", err)
		e.failExit(ctx, exit, "could not load farmer secret: "+err.Error())
		return
	}

	legs := []*payoutLeg{
		{name: "farmer", amount: exit.FarmerShare, dest: exit.FarmerExternalWallet, txHash: &exit.FarmerTxHash, auditPaid: models.AuditFarmerPaid, auditRetried: models.AuditFarmerRetried},
		{name: "pooler", amount: exit.PoolerShare, dest: exit.PoolerWallet, txHash: &exit.PoolerTxHash, auditPaid: models.AuditPoolerPaid, auditRetried: models.AuditPoolerRetried},
		{name: "platform", amount: exit.PlatformFee, dest: exit.PlatformWallet, txHash: &exit.PlatformTxHash, auditPaid: models.AuditPlatformPaid, auditRetried: models.AuditPlatformRetried},
	}

	anyPermanentFailure := false
	for _, leg := range legs {
		if *leg.txHash != "" {
			continue // already paid, idempotent skip
		}
		if leg.amount == 0 {
			*leg.txHash = "zero_amount_skipped"
			continue
		}
		txHash, ok := e.payLegWithRetry(ctx, exit, secret, leg)
		if !ok {
			anyPermanentFailure = true
			continue
		}
		*leg.txHash = txHash
		if err := e.store.UpdateExitSplit(ctx, exit); err != nil {
			logger.Warn("failed to persist leg payout", "exit", exitID, "leg", leg.name, "err", err)
		}
		_ = e.store.AppendAudit(ctx, &models.ExitAuditLog{
			ID:          models.NewID(),
			ExitSplitID: exit.ID,
			Action:      leg.auditPaid,
			PerformedBy: "settlement",
			PerformedAt: time.Now(),
		})
	}

	if exit.AllLegsPaid() {
		now := time.Now()
		exit.Status = models.ExitCompleted
		exit.CompletedAt = &now
		_ = e.store.UpdateExitSplit(ctx, exit)
		_ = e.store.AppendAudit(ctx, &models.ExitAuditLog{
			ID:          models.NewID(),
			ExitSplitID: exit.ID,
			Action:      models.AuditCompleted,
			NewStatus:   string(models.ExitCompleted),
			PerformedBy: "settlement",
			PerformedAt: time.Now(),
		})
		metrics.ExitsPaidCounter.Inc(1)
		e.completeContract(ctx, exit)
		bus := e.bus
		if bus != nil {
			bus.Publish(event.ExitSettled, event.ExitSettledPayload{FarmerID: exit.FarmerID.String(), ExitSplitID: exit.ID.String()})
		}
		return
	}

	if anyPermanentFailure {
		metrics.ExitsFailedCounter.Inc(1)
		e.failExit(ctx, exit, "one or more payout legs permanently failed; successful legs are not reversed")
	}
}

// payLegWithRetry retries one transfer up to MAX_RETRY times with
// exponential backoff (base 30s, cap 5min), returning ok=false once retries
// are exhausted. Each retry increments exit.RetryCount and is recorded as
// its own audit row, so the audit trail shows exactly which leg stalled.
func (e *Engine) payLegWithRetry(ctx context.Context, exit *models.ExitSplit, secret string, leg *payoutLeg) (string, bool) {
	delay := e.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetry; attempt++ {
		if attempt > 0 {
			metrics.ExitPayoutLegRetryCounter.Inc(1)
			exit.RetryCount++
			if err := e.store.UpdateExitSplit(ctx, exit); err != nil {
				logger.Warn("failed to persist retry count", "exit", exit.ID, "leg", leg.name, "err", err)
			}
			_ = e.store.AppendAudit(ctx, &models.ExitAuditLog{
				ID:          models.NewID(),
				ExitSplitID: exit.ID,
				Action:      leg.auditRetried,
				PerformedBy: "settlement",
				PerformedAt: time.Now(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", false
			}
			delay *= 2
			if delay > e.cfg.RetryCapDelay {
				delay = e.cfg.RetryCapDelay
			}
		}
		txHash, err := e.chain.Transfer(ctx, secret, leg.dest, leg.amount)
		if err == nil {
			return txHash, true
		}
		lastErr = err
		logger.Warn("payout leg attempt failed", "exit", exit.ID, "leg", leg.name, "attempt", attempt, "err", err)
	}
	logger.Error("payout leg permanently failed", "exit", exit.ID, "leg", leg.name, "err", lastErr)
	return "", false
}

func (e *Engine) failExit(ctx context.Context, exit *models.ExitSplit, reason string) {
	exit.Status = models.ExitFailed
	exit.ExitReason = reason
	_ = e.store.UpdateExitSplit(ctx, exit)
	_ = e.store.AppendAudit(ctx, &models.ExitAuditLog{
		ID:          models.NewID(),
		ExitSplitID: exit.ID,
		Action:      models.AuditFailed,
		NewStatus:   string(models.ExitFailed),
		Details:     []byte(reason),
		PerformedBy: "settlement",
		PerformedAt: time.Now(),
	})
}

// completeContract finalizes the contract once its exit has been fully
// paid out (contract lifecycle: exiting -> completed).
func (e *Engine) completeContract(ctx context.Context, exit *models.ExitSplit) {
	contract, err := e.store.GetContract(ctx, exit.ContractID)
	if err != nil {
		logger.Warn("failed to load contract to complete after exit payout", "exit", exit.ID, "err", err)
		return
	}
	contract.Status = models.ContractComplete
	_ = e.store.UpdateContract(ctx, contract)
}
