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

// checkHarvestEligibility runs the harvest_interval gate after a farmer's
// work for blockIndex completes: harvest fires when block_index minus the
// contract's last harvested block is at least the contract's
// harvest_interval. Runs with bounded concurrency C_harvest.
func (e *Executor) checkHarvestEligibility(ctx context.Context, blockIndex int64, farmerID models.ID) {
	contract, err := e.store.GetActiveContractForFarmer(ctx, farmerID)
	if err != nil {
		logger.Debug("no active contract, skipping harvest check", "farmer", farmerID, "err", err)
		return
	}
	if blockIndex-contract.LastHarvestBlock < int64(contract.HarvestInterval) {
		return
	}

	e.harvestSem <- struct{}{}
	go func() {
		defer func() { <-e.harvestSem }()
		e.runHarvest(ctx, blockIndex, farmerID, contract.ID)
	}()
}

func (e *Executor) runHarvest(ctx context.Context, blockIndex int64, farmerID, contractID models.ID) {
	metrics.HarvestsAttemptedCounter.Inc(1)

	farmer, err := e.store.GetFarmer(ctx, farmerID)
	if err != nil {
		logger.Error("failed to load farmer for harvest", "farmer", farmerID, "err", err)
		return
	}
	sealed, err := farmer.Sealed()
	if err != nil {
		logger.Error("failed to unseal farmer secret for harvest", "farmer", farmerID, "err", err)
		return
	}
	secretBytes, err := sealed.Open(secretkey.Current())
	if err != nil {
		logger.Error("failed to open farmer secret for harvest", "farmer", farmerID, "err", err)
		return
	}
	secret := string(secretBytes)

	txHash, reward, harvestErr := e.chain.Harvest(ctx, secret, blockIndex)

	h := models.Harvest{
		BlockIndex:      blockIndex,
		FarmerID:        farmerID,
		ContractID:      contractID,
		RewardAmount:    reward,
		TransactionHash: txHash,
		HarvestedAt:     time.Now(),
	}
	if harvestErr != nil {
		metrics.HarvestsFailedCounter.Inc(1)
		h.Status = models.OpFailed
		h.ErrorMessage = harvestErr.Error()
		if recErr := e.store.RecordHarvest(ctx, &h); recErr != nil && !errkind.Is(recErr, errkind.KindIdempotencyConflict) {
			logger.Warn("failed to persist failed harvest", "farmer", farmerID, "err", recErr)
		}
		return
	}
	h.Status = models.OpSuccess
	if err := e.store.RecordHarvest(ctx, &h); err != nil {
		if errkind.Is(err, errkind.KindIdempotencyConflict) {
			return
		}
		logger.Warn("failed to persist harvest", "farmer", farmerID, "err", err)
		return
	}
	metrics.HarvestsSucceededCounter.Inc(1)

	farmer.CurrentBalance += reward
	if err := e.store.UpdateFarmer(ctx, farmer); err != nil {
		logger.Warn("failed to update farmer balance after harvest", "farmer", farmerID, "err", err)
	}

	contract, err := e.store.GetActiveContractForFarmer(ctx, farmerID)
	if err == nil {
		contract.LastHarvestBlock = blockIndex
		if err := e.store.UpdateContract(ctx, contract); err != nil {
			logger.Warn("failed to advance contract last_harvest_block", "farmer", farmerID, "err", err)
		}
	}

	if op, err := e.store.GetBlockOperation(ctx, blockIndex); err == nil {
		op.TotalRewards += reward
		op.SuccessfulHarvests++
		_ = e.store.UpdateBlockOperation(ctx, op)
	}

	e.bus.Publish(event.HarvestRecorded, event.HarvestRecordedPayload{
		BlockIndex:    blockIndex,
		FarmerID:      farmerID.String(),
		RewardStroops: reward,
	})
}
