package models

import "time"

// ContractStatus is the lifecycle state of a PoolContract.
type ContractStatus string

const (
	ContractPending  ContractStatus = "pending"
	ContractActive   ContractStatus = "active"
	ContractExiting  ContractStatus = "exiting"
	ContractComplete ContractStatus = "completed"
)

// LiveContractStatuses are the statuses counted by the partial-unique
// "at most one live contract per farmer" invariant.
var LiveContractStatuses = []ContractStatus{ContractPending, ContractActive, ContractExiting}

// PoolContract binds a Farmer to a Pooler for the duration of their
// participation. Invariant: at most one contract with a live status per
// farmer, enforced by storage.
type PoolContract struct {
	ID               ID      `gorm:"type:uuid;primary_key"`
	FarmerID         ID      `gorm:"type:uuid;not null;index"`
	PoolerID         ID      `gorm:"type:uuid;not null;index"`
	StakePercentage  float64 `gorm:"not null"` // in [0,1]
	HarvestInterval  int     `gorm:"not null"` // blocks, in [1,20]
	RewardSplit      float64 `gorm:"not null"` // farmer's fraction of net rewards
	PlatformFee      float64 `gorm:"not null;default:0.05"`
	Status           ContractStatus `gorm:"not null;index"`
	CreatedAt        time.Time      `gorm:"not null"`
	ConfirmedAt      *time.Time
	ExitRequestedAt  *time.Time
	ContractTerms    []byte // opaque, e.g. serialized legal terms
	LastHarvestBlock int64  `gorm:"not null;default:0"` // supports the harvest_interval eligibility gate
}

func (PoolContract) TableName() string { return "pool_contracts" }

// IsLive reports whether the contract counts against the "one live contract
// per farmer" invariant.
func (c *PoolContract) IsLive() bool {
	switch c.Status {
	case ContractPending, ContractActive, ContractExiting:
		return true
	default:
		return false
	}
}
