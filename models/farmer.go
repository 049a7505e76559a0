package models

import "time"

// FarmerStatus is the lifecycle state of a Farmer. Transitions are
// monotonic except active_in_pool -> exiting -> exited.
type FarmerStatus string

const (
	FarmerWalletCreated FarmerStatus = "wallet_created"
	FarmerFunded        FarmerStatus = "funded"
	FarmerActiveInPool  FarmerStatus = "active_in_pool"
	FarmerExiting       FarmerStatus = "exiting"
	FarmerExited        FarmerStatus = "exited"
)

// Farmer is the end-user whose custodial wallet participates in the pool
//. One per User.
type Farmer struct {
	ID                  ID     `gorm:"type:uuid;primary_key"`
	UserID              ID     `gorm:"type:uuid;unique_index;not null"`
	CustodialPublicKey  string `gorm:"not null"`
	CustodialSecretKey  []byte `gorm:"column:custodial_secret_key_sealed;not null"` // SealedSecret.Marshal()
	PayoutWalletAddress string
	Status              FarmerStatus `gorm:"not null;index"`
	CurrentBalance      int64        `gorm:"not null;default:0"` // stroops
	IsFunded            bool         `gorm:"not null;default:false"`
	FundedAt            *time.Time
	JoinedPoolAt        *time.Time
	NeedsBalanceRecheck bool `gorm:"not null;default:false"` // set on insufficient_funds
}

func (Farmer) TableName() string { return "farmers" }

// Sealed unpacks the stored ciphertext blob into a SealedSecret for
// decryption by the wallet layer.
func (f *Farmer) Sealed() (SealedSecret, error) {
	return UnmarshalSealedSecret(f.CustodialSecretKey)
}
