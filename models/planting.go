package models

import "time"

// OperationStatus is the shared success/failed status for Planting, Work,
// and Harvest rows.
type OperationStatus string

const (
	OpSuccess OperationStatus = "success"
	OpFailed  OperationStatus = "failed"
)

// Planting is the per-farmer stake record for a block. Invariant:
// at most one successful planting per (block_index, farmer_id).
type Planting struct {
	ID                ID              `gorm:"type:uuid;primary_key"`
	BlockIndex        int64           `gorm:"not null;index:idx_planting_block_farmer,unique"`
	FarmerID          ID              `gorm:"type:uuid;not null;index:idx_planting_block_farmer,unique"`
	PoolerID          ID              `gorm:"type:uuid;not null"`
	CustodialWallet   string          `gorm:"not null"`
	StakeAmount       int64           `gorm:"not null"`
	TransactionHash   string
	Status            OperationStatus `gorm:"not null"`
	ErrorMessage      string
	PlantedAt         time.Time `gorm:"not null"`
}

func (Planting) TableName() string { return "plantings" }
