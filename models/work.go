package models

import "time"

// Work is the nonce submission record for a (block, farmer) pair.
// A successful Work must reference a successful Planting for the same
// (block_index, farmer_id).
type Work struct {
	ID                    ID              `gorm:"type:uuid;primary_key"`
	BlockIndex            int64           `gorm:"not null;index:idx_work_block_farmer,unique"`
	FarmerID              ID              `gorm:"type:uuid;not null;index:idx_work_block_farmer,unique"`
	Nonce                 uint64          `gorm:"not null"`
	Hash                  string          `gorm:"not null"`
	Zeros                 int             `gorm:"not null"`
	Gap                   int             `gorm:"not null"` // Zeros - TargetZeros
	TransactionHash       string
	Status                OperationStatus `gorm:"not null"`
	CompensationRequired  bool            `gorm:"not null;default:false"`
	ErrorMessage          string
	WorkedAt              time.Time `gorm:"not null"`
}

func (Work) TableName() string { return "works" }
