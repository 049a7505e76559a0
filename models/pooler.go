package models

// PoolerStatus is the externally-provisioned Pooler's availability state.
type PoolerStatus string

const (
	PoolerActive PoolerStatus = "active"
	PoolerFull   PoolerStatus = "full"
	PoolerPaused PoolerStatus = "paused"
)

// Pooler is the operator entity that aggregates farmers and earns a reward
// share. Externally provisioned; the core only reads it.
type Pooler struct {
	ID               ID      `gorm:"type:uuid;primary_key"`
	Name             string  `gorm:"not null"`
	RewardPercentage float64 `gorm:"not null"` // 0..1, the pooler's cut before farmer/platform split
	MaxFarmers       int     `gorm:"not null"`
	CurrentFarmers   int     `gorm:"not null;default:0"`
	Status           PoolerStatus `gorm:"not null"`
	APIEndpoint      string
	APIKey           string
	WalletAddress    string `gorm:"not null"` // destination for pooler_share payouts
}

func (Pooler) TableName() string { return "poolers" }
