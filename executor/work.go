package executor

import (
	"context"
	"time"

	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/secretkey"
	"github.com/klaytn/kale-pool/metrics"
	"github.com/klaytn/kale-pool/models"
)

// workTask is one scheduled work attempt, queued so nonce-search subprocesses
// for a single Executor instance never run concurrently: the search is
// CPU/GPU bound and mutually exclusive within one process; horizontal
// scaling happens by partitioning farmers across Executor instances.
type workTask struct {
	blockIndex int64
	entropy    string
	farmerID   models.ID
	workTime   time.Time
}

// runWorkLoop drains e.workQueue one task at a time for the life of the
// process.
func (e *Executor) runWorkLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-e.workQueue:
			e.executeWork(ctx, task)
		}
	}
}

// executeWork aborts if the deadline has already passed, otherwise runs the
// nonce search with up to NonceMaxRetries recoveries at an increased nonce
// budget, submits on-chain, and records a Work row.
func (e *Executor) executeWork(ctx context.Context, task workTask) {
	deadline := task.workTime.Add(e.cfg.WorkDeadlineS)
	if time.Now().After(deadline) {
		logger.Warn("work deadline already passed, aborting", "block", task.blockIndex, "farmer", task.farmerID)
		e.recordWork(ctx, task, models.Work{
			BlockIndex:           task.blockIndex,
			FarmerID:             task.farmerID,
			Status:               models.OpFailed,
			CompensationRequired: true,
			ErrorMessage:         "work deadline exceeded before execution began",
			WorkedAt:             time.Now(),
		})
		return
	}

	farmer, err := e.store.GetFarmer(ctx, task.farmerID)
	if err != nil {
		logger.Error("failed to load farmer for work", "farmer", task.farmerID, "err", err)
		return
	}
	sealed, err := farmer.Sealed()
	if err != nil {
		logger.Error("failed to unseal farmer secret for work", "farmer", task.farmerID, "err", err)
		return
	}
	secretBytes, err := sealed.Open(secretkey.Current())
	if err != nil {
		logger.Error("failed to open farmer secret for work", "farmer", task.farmerID, "err", err)
		return
	}
	secret := string(secretBytes)

	nonceCount := baseNonceCount
	var (
		result  nonceResult
		lastErr error
	)
	for attempt := 0; attempt < 1+e.cfg.NonceMaxRetries; attempt++ {
		metrics.WorksAttemptedCounter.Inc(1)
		r, err := e.searchNonce(ctx, farmer.CustodialPublicKey, task.blockIndex, task.entropy, nonceCount)
		if err == nil {
			result = r
			lastErr = nil
			break
		}
		lastErr = err
		logger.Debug("nonce search attempt failed", "block", task.blockIndex, "farmer", task.farmerID, "attempt", attempt, "err", err)
		nonceCount *= nonceBudgetGrowth
	}
	if lastErr != nil {
		metrics.WorksFailedCounter.Inc(1)
		e.recordWork(ctx, task, models.Work{
			BlockIndex:           task.blockIndex,
			FarmerID:             task.farmerID,
			Status:               models.OpFailed,
			CompensationRequired: true,
			ErrorMessage:         lastErr.Error(),
			WorkedAt:             time.Now(),
		})
		return
	}

	txHash, workErr := e.chain.Work(ctx, secret, task.blockIndex, result.nonce, result.hash)

	w := models.Work{
		BlockIndex:      task.blockIndex,
		FarmerID:        task.farmerID,
		Nonce:           result.nonce,
		Hash:            result.hash,
		Zeros:           result.zeros,
		Gap:             result.zeros - e.cfg.TargetZeros,
		TransactionHash: txHash,
		WorkedAt:        time.Now(),
	}
	if workErr != nil {
		metrics.WorksFailedCounter.Inc(1)
		w.Status = models.OpFailed
		w.ErrorMessage = workErr.Error()
		w.CompensationRequired = true
	} else {
		metrics.WorksSucceededCounter.Inc(1)
		w.Status = models.OpSuccess
	}
	e.recordWork(ctx, task, w)

	if workErr == nil {
		e.bus.Publish(event.WorkCompleted, event.WorkCompletedPayload{
			BlockIndex: task.blockIndex,
			FarmerID:   task.farmerID.String(),
		})
		e.checkHarvestEligibility(ctx, task.blockIndex, task.farmerID)
	}
}

func (e *Executor) recordWork(ctx context.Context, task workTask, w models.Work) {
	if err := e.store.RecordWork(ctx, &w); err != nil && !errkind.Is(err, errkind.KindIdempotencyConflict) {
		logger.Warn("failed to persist work row", "block", task.blockIndex, "farmer", task.farmerID, "err", err)
	}
}

const (
	baseNonceCount     = 100_000
	nonceBudgetGrowth  = 4
)
