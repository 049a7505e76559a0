package discoverer

import (
	"context"
	"sync"
	"time"

	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/money"
	"github.com/klaytn/kale-pool/internal/secretkey"
	"github.com/klaytn/kale-pool/metrics"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/wallet"
)

// plantResult is one farmer's outcome from the burst, folded back into the
// aggregate BlockOperation counters and the notification payload.
type plantResult struct {
	farmer *models.Farmer
	stake  int64
	err    error
}

// plantBurst fans out one Plant call per eligible farmer with bounded
// concurrency, aggregates the results onto the BlockOperation, and notifies
// the Executor of the farmers that planted successfully.
func (d *Discoverer) plantBurst(ctx context.Context, op *models.BlockOperation, farmers []*models.Farmer) {
	start := time.Now()
	requestedAt := time.Now()
	op.PlantRequestedAt = &requestedAt

	sem := make(chan struct{}, d.cfg.CPlant)
	results := make(chan plantResult, len(farmers))
	var wg sync.WaitGroup

	for _, f := range farmers {
		f := f
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results <- d.plantOne(ctx, op, f)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		successful   int
		totalStaked  int64
		plantedIDs   []string
	)
	for r := range results {
		metrics.PlantsAttemptedCounter.Inc(1)
		if r.err != nil {
			metrics.PlantsFailedCounter.Inc(1)
			logger.Debug("plant failed for farmer", "farmer", r.farmer.ID, "err", r.err)
			if errkind.Is(r.err, errkind.KindInsufficientFunds) {
				r.farmer.NeedsBalanceRecheck = true
				_ = d.store.UpdateFarmer(ctx, r.farmer)
			}
			continue
		}
		metrics.PlantsSucceededCounter.Inc(1)
		successful++
		totalStaked += r.stake
		plantedIDs = append(plantedIDs, r.farmer.ID.String())
	}

	completedAt := time.Now()
	op.PlantCompletedAt = &completedAt
	op.TotalFarmers = len(farmers)
	op.SuccessfulPlants = successful
	op.TotalStaked = totalStaked
	op.Status = models.BlockPlantingCompleted
	if err := d.store.UpdateBlockOperation(ctx, op); err != nil {
		logger.Error("failed to aggregate plant burst", "block", op.BlockIndex, "err", err)
		return
	}
	metrics.PlantBurstDurationGauge.Update(time.Since(start).Milliseconds())

	if successful == 0 {
		return
	}

	d.bus.Publish(event.PlantingCompleted, event.PlantingCompletedPayload{
		BlockIndex:   op.BlockIndex,
		FarmerIDs:    plantedIDs,
		WorkTimeUnix: completedAt.Unix(),
	})

	d.notifyExecutor(ctx, op, plantedIDs)
}

// plantOne computes the clamped stake, submits it via the chain adapter,
// and persists a Planting row for a single farmer. A per-farmer failure
// never escapes this function; it is folded into the result and the
// burst continues for every other farmer.
func (d *Discoverer) plantOne(ctx context.Context, op *models.BlockOperation, f *models.Farmer) plantResult {
	contract, err := d.store.GetActiveContractForFarmer(ctx, f.ID)
	if err != nil {
		return plantResult{farmer: f, err: err}
	}

	// BASE_STAKE is the block's reported max stake bound; the farmer's
	// stake_percentage is applied against it, then clamped to what the
	// farmer can actually afford.
	baseStake := op.MaxStake
	stake := money.Clamp(int64(contract.StakePercentage*float64(baseStake)), 0, f.CurrentBalance)

	opCtx, cancel := context.WithTimeout(ctx, wallet.DefaultOpTimeout)
	defer cancel()

	sealed, err := f.Sealed()
	if err != nil {
		return plantResult{farmer: f, err: errkind.Wrap(errkind.KindPermanentBadRequest, err, "discoverer: unseal secret")}
	}
	secretBytes, err := sealed.Open(secretkey.Current())
	if err != nil {
		return plantResult{farmer: f, err: errkind.Wrap(errkind.KindPermanentBadRequest, err, "discoverer: open secret")}
	}
	secret := string(secretBytes)

	txHash, plantErr := d.chain.Plant(opCtx, secret, op.BlockIndex, stake)

	planting := &models.Planting{
		BlockIndex:      op.BlockIndex,
		FarmerID:        f.ID,
		PoolerID:        op.PoolerID,
		CustodialWallet: f.CustodialPublicKey,
		StakeAmount:     stake,
		TransactionHash: txHash,
		PlantedAt:       time.Now(),
	}
	if plantErr != nil {
		planting.Status = models.OpFailed
		planting.ErrorMessage = plantErr.Error()
	} else {
		planting.Status = models.OpSuccess
	}
	if recErr := d.store.RecordPlanting(ctx, planting); recErr != nil && !errkind.Is(recErr, errkind.KindIdempotencyConflict) {
		logger.Warn("failed to persist planting", "farmer", f.ID, "err", recErr)
	}

	if plantErr != nil {
		return plantResult{farmer: f, err: plantErr}
	}
	return plantResult{farmer: f, stake: stake}
}
