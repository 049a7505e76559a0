// Package storage defines the persistence interface that the Discoverer,
// Executor, and Settlement engine depend on. Concrete implementations live
// in sqlstore (the real relational store, grounded on jinzhu/gorm +
// go-sql-driver/mysql) and memstore (an in-memory fake for tests).
package storage

import (
	"context"

	"github.com/klaytn/kale-pool/models"
)

// Store is the full persistence surface the core depends on.
type Store interface {
	BlockStore
	FarmerStore
	PlantingStore
	WorkStore
	HarvestStore
	ContractStore
	ExitStore
}

// BlockStore covers BlockOperation lifecycle operations.
type BlockStore interface {
	// UpsertBlockOperation is an idempotent upsert keyed on block_index,
	// refreshing metadata columns on conflict and reusing the existing id.
	UpsertBlockOperation(ctx context.Context, op *models.BlockOperation) (*models.BlockOperation, bool /*created*/, error)

	// GetBlockOperation fetches by block_index.
	GetBlockOperation(ctx context.Context, blockIndex int64) (*models.BlockOperation, error)

	// UpdateBlockOperation persists mutations to an existing row inside a
	// transaction, refusing any non-forward status transition (enforced
	// via models.CanAdvance).
	UpdateBlockOperation(ctx context.Context, op *models.BlockOperation) error

	// ClaimStaleProcessingBlocks returns BlockOperation rows stuck below
	// BlockCompleted/BlockFailed, using SELECT ... FOR UPDATE SKIP LOCKED
	// so multiple Discoverer/Executor instances can coexist.
	ClaimStaleProcessingBlocks(ctx context.Context, olderThanSeconds int64, limit int) ([]*models.BlockOperation, error)
}

// FarmerStore covers farmer selection and balance bookkeeping.
type FarmerStore interface {
	// ListEligibleFarmers returns every Farmer with status=active_in_pool,
	// is_funded=true, and an active contract.
	ListEligibleFarmers(ctx context.Context, poolerID models.ID) ([]*models.Farmer, error)

	GetFarmer(ctx context.Context, id models.ID) (*models.Farmer, error)
	UpdateFarmer(ctx context.Context, f *models.Farmer) error

	// ListFarmersNeedingBalanceRecheck supports the balance re-check worker.
	ListFarmersNeedingBalanceRecheck(ctx context.Context, limit int) ([]*models.Farmer, error)
}

// ContractStore covers PoolContract reads needed by harvest gating and
// settlement eligibility.
type ContractStore interface {
	GetActiveContractForFarmer(ctx context.Context, farmerID models.ID) (*models.PoolContract, error)
	GetContract(ctx context.Context, id models.ID) (*models.PoolContract, error)
	UpdateContract(ctx context.Context, c *models.PoolContract) error

	// GetPooler resolves the pooler a contract belongs to, so settlement
	// can look up the destination wallet for the pooler's reward share.
	GetPooler(ctx context.Context, id models.ID) (*models.Pooler, error)
}

// PlantingStore covers per-farmer stake records.
type PlantingStore interface {
	// RecordPlanting inserts a Planting row, upholding the "at most one
	// successful planting per (block_index, farmer_id)" invariant -- a
	// duplicate successful insert is rejected as an idempotency conflict
	// rather than silently overwritten.
	RecordPlanting(ctx context.Context, p *models.Planting) error
	GetPlanting(ctx context.Context, blockIndex int64, farmerID models.ID) (*models.Planting, error)
	ListPlantingsForBlock(ctx context.Context, blockIndex int64) ([]*models.Planting, error)
}

// WorkStore covers per-farmer nonce submissions.
type WorkStore interface {
	RecordWork(ctx context.Context, w *models.Work) error
	GetWork(ctx context.Context, blockIndex int64, farmerID models.ID) (*models.Work, error)
	ListWorksForBlock(ctx context.Context, blockIndex int64) ([]*models.Work, error)
}

// HarvestStore covers per-farmer reward claims.
type HarvestStore interface {
	RecordHarvest(ctx context.Context, h *models.Harvest) error
	// ListUnexitedHarvests returns every Harvest with status=success and
	// included_in_exit=false for the farmer.
	ListUnexitedHarvests(ctx context.Context, farmerID models.ID) ([]*models.Harvest, error)
	// MarkHarvestsIncludedInExit is called in the same transaction as the
	// ExitSplit insert.
	MarkHarvestsIncludedInExit(ctx context.Context, harvestIDs []models.ID, exitSplitID models.ID) error
}

// ExitStore covers settlement persistence.
type ExitStore interface {
	// InitiateExitTx runs fn inside a single transaction that both inserts
	// the ExitSplit row and marks the included harvests.
	InitiateExitTx(ctx context.Context, fn func(tx ExitTx) error) error

	GetExitSplit(ctx context.Context, id models.ID) (*models.ExitSplit, error)
	UpdateExitSplit(ctx context.Context, e *models.ExitSplit) error
	HasProcessingExit(ctx context.Context, farmerID models.ID) (bool, error)
	AppendAudit(ctx context.Context, a *models.ExitAuditLog) error

	// ListStaleProcessingExits supports the reconciliation sweep.
	ListStaleProcessingExits(ctx context.Context, olderThanSeconds int64, limit int) ([]*models.ExitSplit, error)
}

// ExitTx is the transactional handle passed to InitiateExitTx's callback.
type ExitTx interface {
	CreateExitSplit(e *models.ExitSplit) error
	MarkHarvestsIncludedInExit(harvestIDs []models.ID, exitSplitID models.ID) error
	AppendAudit(a *models.ExitAuditLog) error
}
