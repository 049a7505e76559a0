package models

import "time"

// Harvest is the reward-claim record for a (block, farmer) pair.
type Harvest struct {
	ID              ID              `gorm:"type:uuid;primary_key"`
	BlockIndex      int64           `gorm:"not null;index:idx_harvest_block_farmer,unique"`
	FarmerID        ID              `gorm:"type:uuid;not null;index:idx_harvest_block_farmer,unique"`
	ContractID      ID              `gorm:"type:uuid;not null;index"`
	RewardAmount    int64           `gorm:"not null"`
	TransactionHash string
	Status          OperationStatus `gorm:"not null"`
	ErrorMessage    string
	IncludedInExit  bool `gorm:"not null;default:false"`
	ExitSplitID     *ID  `gorm:"type:uuid"`
	HarvestedAt     time.Time `gorm:"not null"`
}

func (Harvest) TableName() string { return "harvests" }
