// Package wallet defines the chain adapter interface: the narrow surface
// the core depends on so it stays chain-agnostic. Concrete implementations
// are wallet/stellarrpc (a real Stellar-like RPC client) and
// wallet/mockchain (a deterministic in-memory fake for tests).
package wallet

import (
	"context"
	"time"
)

// Chain is the chain adapter interface every component depends on.
type Chain interface {
	// Head returns the current chain head the Discoverer polls.
	Head(ctx context.Context) (BlockHead, error)

	// GenerateWallet returns a fresh (public, secret) custodial keypair.
	// The caller is responsible for persisting it.
	GenerateWallet(ctx context.Context) (publicKey, secretKey string, err error)

	// CheckFunding reports the balance and funded status of public.
	CheckFunding(ctx context.Context, publicKey string) (FundingStatus, error)

	// Plant builds, signs, and submits a plant transaction.
	Plant(ctx context.Context, secretKey string, blockIndex int64, stake int64) (txHash string, err error)

	// Work submits a work transaction for the given nonce/hash.
	Work(ctx context.Context, secretKey string, blockIndex int64, nonce uint64, hash string) (txHash string, err error)

	// Harvest submits a harvest transaction and returns the reward claimed,
	// in stroops.
	Harvest(ctx context.Context, secretKey string, blockIndex int64) (txHash string, rewardStroops int64, err error)

	// Transfer submits a native asset transfer from secretKey to dest.
	Transfer(ctx context.Context, secretKey string, dest string, amountStroops int64) (txHash string, err error)

	// Health is a liveness probe of the chain RPC.
	Health(ctx context.Context) bool
}

// FundingStatus is the result of CheckFunding.
type FundingStatus struct {
	Balance  int64
	IsFunded bool
}

// BlockHead is the chain-head shape the Discoverer polls: block_index,
// entropy, timestamp, plantable, min/max_stake, min/max_zeros.
type BlockHead struct {
	BlockIndex int64
	Entropy    string // 32 bytes, hex
	Timestamp  time.Time
	Plantable  bool
	MinStake   int64
	MaxStake   int64
	MinZeros   int
	MaxZeros   int
}

// MinFund is the threshold below which a wallet is not considered funded.
const MinFund int64 = 1_000_000 // 0.1 KALE, matching MinExitStroops's unit scale

// DefaultOpTimeout bounds a chain operation by a configurable per-op
// timeout, default 30s.
const DefaultOpTimeout = 30 * time.Second

// ValidateExternalWallet checks the Stellar account-id convention: 56
// chars, first char 'G', base32 alphabet (RFC 4648 without padding).
func ValidateExternalWallet(addr string) bool {
	if len(addr) != 56 || addr[0] != 'G' {
		return false
	}
	for _, r := range addr {
		if !((r >= 'A' && r <= 'Z') || (r >= '2' && r <= '7')) {
			return false
		}
	}
	return true
}
