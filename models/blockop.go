package models

import "time"

// BlockOperationStatus is the forward-only lifecycle state of a block.
type BlockOperationStatus string

const (
	BlockDiscovered        BlockOperationStatus = "discovered"
	BlockPlantingCompleted BlockOperationStatus = "planting_completed"
	BlockWorkCompleted     BlockOperationStatus = "work_completed"
	BlockCompleted         BlockOperationStatus = "completed"
	BlockFailed            BlockOperationStatus = "failed"
)

// statusRank gives each BlockOperationStatus its position in the forward
// state machine, so callers can assert status advances only forward
// without hardcoding comparisons everywhere.
var statusRank = map[BlockOperationStatus]int{
	BlockDiscovered:        0,
	BlockPlantingCompleted: 1,
	BlockWorkCompleted:     2,
	BlockCompleted:         3,
	BlockFailed:            99, // terminal, reachable from any rank
}

// CanAdvance reports whether transitioning from 'from' to 'to' respects the
// forward-only invariant.
func CanAdvance(from, to BlockOperationStatus) bool {
	if to == BlockFailed {
		return true
	}
	return statusRank[to] >= statusRank[from]
}

// BlockOperation is the per-block coordination record. Unique per
// block_index; a second discovery of the same block_index is an idempotent
// upsert.
type BlockOperation struct {
	ID                ID                   `gorm:"type:uuid;primary_key"`
	BlockIndex        int64                `gorm:"unique_index;not null"`
	PoolerID          ID                   `gorm:"type:uuid;not null;index"`
	Status            BlockOperationStatus `gorm:"not null;index"`
	Entropy           string               `gorm:"not null"` // 32 bytes, hex
	BlockAgeS         float64              `gorm:"not null"`
	Plantable         bool                 `gorm:"not null"`
	MinZeros          int                  `gorm:"not null"`
	MaxZeros          int                  `gorm:"not null"`
	MinStake          int64                `gorm:"not null"`
	MaxStake          int64                `gorm:"not null"`
	TotalFarmers      int                  `gorm:"not null;default:0"`
	SuccessfulPlants  int                  `gorm:"not null;default:0"`
	SuccessfulWorks   int                  `gorm:"not null;default:0"`
	SuccessfulHarvests int                 `gorm:"not null;default:0"`
	TotalStaked       int64                `gorm:"not null;default:0"`
	TotalRewards      int64                `gorm:"not null;default:0"`
	FailureReason     string
	DiscoveredAt      time.Time `gorm:"not null"`
	PlantRequestedAt  *time.Time
	PlantCompletedAt  *time.Time
	WorkCompletedAt   *time.Time
}

func (BlockOperation) TableName() string { return "block_operations" }
