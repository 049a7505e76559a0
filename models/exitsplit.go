package models

import "time"

// ExitSplitStatus is the lifecycle state of an ExitSplit.
type ExitSplitStatus string

const (
	ExitProcessing ExitSplitStatus = "processing"
	ExitCompleted  ExitSplitStatus = "completed"
	ExitFailed     ExitSplitStatus = "failed"
	ExitCancelled  ExitSplitStatus = "cancelled"
)

// ExitSplit is the three-way reward allocation computed when a farmer
// exits. Invariant: FarmerShare + PoolerShare + PlatformFee == TotalRewards
// (integer-exact).
type ExitSplit struct {
	ID                    ID      `gorm:"type:uuid;primary_key"`
	FarmerID              ID      `gorm:"type:uuid;not null;index"`
	PoolerID              ID      `gorm:"type:uuid;not null"`
	ContractID            ID      `gorm:"type:uuid;not null"`
	TotalRewards          int64   `gorm:"not null"`
	FarmerShare           int64   `gorm:"not null"`
	PoolerShare           int64   `gorm:"not null"`
	PlatformFee           int64   `gorm:"not null"`
	RewardSplit           float64 `gorm:"not null"`
	PlatformFeeRate       float64 `gorm:"not null"`
	FarmerExternalWallet  string  `gorm:"not null"`
	FarmerCustodialWallet string  `gorm:"not null"`
	PoolerWallet          string  `gorm:"not null"`
	PlatformWallet        string  `gorm:"not null"`
	FarmerTxHash          string
	PoolerTxHash          string
	PlatformTxHash        string
	Status                ExitSplitStatus `gorm:"not null;index"`
	RetryCount            int             `gorm:"not null;default:0"`
	BlocksIncluded        int             `gorm:"not null"`
	HarvestsIncluded      int             `gorm:"not null"`
	InitiatedAt           time.Time       `gorm:"not null"`
	CompletedAt           *time.Time
	ExitReason            string
}

func (ExitSplit) TableName() string { return "exit_splits" }

// AllLegsPaid reports whether all three transfer legs have a recorded tx
// hash; this is the payout job's completion criterion.
func (e *ExitSplit) AllLegsPaid() bool {
	return e.FarmerTxHash != "" && e.PoolerTxHash != "" && e.PlatformTxHash != ""
}
