// Package settlement implements the Exit Settlement Engine: InitiateExit
// computes and persists a three-way reward split when a farmer exits, then
// enqueues the payout job that transfers each leg.
package settlement

import (
	"context"
	"time"

	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/log"
	"github.com/klaytn/kale-pool/internal/money"
	"github.com/klaytn/kale-pool/internal/secretkey"
	"github.com/klaytn/kale-pool/metrics"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/storage"
	"github.com/klaytn/kale-pool/wallet"
)

var logger = log.NewModuleLogger(log.Settlement)

// Engine runs the Settlement Engine's initiation and payout logic.
type Engine struct {
	cfg            *config.Config
	chain          wallet.Chain
	store          storage.Store
	bus            *event.Bus
	platformWallet string
	payoutQueue    chan models.ID
}

// New builds an Engine. platformWallet is the destination for platform_fee
// legs. bus may be nil if exit-settled notifications are not needed.
func New(cfg *config.Config, chain wallet.Chain, store storage.Store, bus *event.Bus, platformWallet string) *Engine {
	return &Engine{
		cfg:            cfg,
		chain:          chain,
		store:          store,
		bus:            bus,
		platformWallet: platformWallet,
		payoutQueue:    make(chan models.ID, 256),
	}
}

// Run drains the payout queue with bounded concurrency C_settle until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	sem := make(chan struct{}, e.cfg.CSettle)
	logger.Info("settlement engine started")
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-e.payoutQueue:
			sem <- struct{}{}
			go func(id models.ID) {
				defer func() { <-sem }()
				e.RunPayout(ctx, id)
			}(id)
		}
	}
}

// InitiateExit validates an exit request, computes the three-way reward
// split over the farmer's unexited harvests, and persists it along with
// the initiating audit entry before queuing the payout job.
func (e *Engine) InitiateExit(ctx context.Context, farmerID models.ID, externalWallet string, immediate bool) (*models.ExitSplit, error) {
	contract, err := e.store.GetActiveContractForFarmer(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	processing, err := e.store.HasProcessingExit(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	if processing {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "farmer already has a processing exit")
	}

	if !wallet.ValidateExternalWallet(externalWallet) {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "invalid external wallet address")
	}

	farmer, err := e.store.GetFarmer(ctx, farmerID)
	if err != nil {
		return nil, err
	}

	harvests, err := e.store.ListUnexitedHarvests(ctx, farmerID)
	if err != nil {
		return nil, err
	}
	var total int64
	blocks := make(map[int64]struct{})
	var first, last time.Time
	harvestIDs := make([]models.ID, 0, len(harvests))
	for i, h := range harvests {
		total += h.RewardAmount
		blocks[h.BlockIndex] = struct{}{}
		harvestIDs = append(harvestIDs, h.ID)
		if i == 0 || h.HarvestedAt.Before(first) {
			first = h.HarvestedAt
		}
		if i == 0 || h.HarvestedAt.After(last) {
			last = h.HarvestedAt
		}
	}

	if total < e.cfg.MinExitStroops {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "total rewards below MIN_EXIT")
	}

	pooler, err := e.store.GetPooler(ctx, contract.PoolerID)
	if err != nil {
		return nil, err
	}

	platformFee, farmerShare, poolerShare, err := money.Split(total, contract.PlatformFee, contract.RewardSplit)
	if err != nil {
		return nil, err
	}

	exit := &models.ExitSplit{
		ID:                    models.NewID(),
		FarmerID:              farmerID,
		PoolerID:              contract.PoolerID,
		ContractID:            contract.ID,
		TotalRewards:          total,
		FarmerShare:           farmerShare,
		PoolerShare:           poolerShare,
		PlatformFee:           platformFee,
		RewardSplit:           contract.RewardSplit,
		PlatformFeeRate:       contract.PlatformFee,
		FarmerExternalWallet:  externalWallet,
		FarmerCustodialWallet: farmer.CustodialPublicKey,
		PoolerWallet:          pooler.WalletAddress,
		PlatformWallet:        e.platformWallet,
		Status:                models.ExitProcessing,
		BlocksIncluded:        len(blocks),
		HarvestsIncluded:      len(harvests),
		InitiatedAt:           time.Now(),
	}

	err = e.store.InitiateExitTx(ctx, func(tx storage.ExitTx) error {
		if err := tx.CreateExitSplit(exit); err != nil {
			return err
		}
		if err := tx.MarkHarvestsIncludedInExit(harvestIDs, exit.ID); err != nil {
			return err
		}
		return tx.AppendAudit(&models.ExitAuditLog{
			ID:          models.NewID(),
			ExitSplitID: exit.ID,
			Action:      models.AuditInitiated,
			NewStatus:   string(models.ExitProcessing),
			PerformedBy: "settlement",
			PerformedAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.ExitsInitiatedCounter.Inc(1)

	contract.Status = models.ContractExiting
	contract.ExitRequestedAt = &exit.InitiatedAt
	if err := e.store.UpdateContract(ctx, contract); err != nil {
		logger.Warn("failed to mark contract exiting", "contract", contract.ID, "err", err)
	}

	if immediate {
		go e.RunPayout(context.Background(), exit.ID)
	} else {
		select {
		case e.payoutQueue <- exit.ID:
		default:
			logger.Warn("payout queue full, running inline", "exit", exit.ID)
			go e.RunPayout(context.Background(), exit.ID)
		}
	}

	return exit, nil
}

// secretFor loads and decrypts a farmer's custodial secret for signing exit
// payout transfers.
func (e *Engine) secretFor(ctx context.Context, farmerID models.ID) (string, error) {
	farmer, err := e.store.GetFarmer(ctx, farmerID)
	if err != nil {
		return "", err
	}
	sealed, err := farmer.Sealed()
	if err != nil {
		return "", errkind.Wrap(errkind.KindPermanentBadRequest, err, "settlement: unseal farmer secret")
	}
	plain, err := sealed.Open(secretkey.Current())
	if err != nil {
		return "", errkind.Wrap(errkind.KindPermanentBadRequest, err, "settlement: open farmer secret")
	}
	return string(plain), nil
}
