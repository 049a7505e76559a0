// Package mockchain is a deterministic in-memory Chain fake, letting tests
// substitute an in-memory chain adapter instead of real RPC. It supports
// injectable failure modes per account, so tests can exercise per-farmer
// failure isolation without one farmer's error affecting another's.
package mockchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	goUUID "github.com/hashicorp/go-uuid"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/wallet"
)

// FailureMode lets tests inject a specific failure for an operation on a
// given secret key.
type FailureMode struct {
	Kind errkind.Kind
	Msg  string
}

// Chain is an in-memory chain adapter: balances, sequence numbers, and
// injectable per-key failures, with no real network I/O.
type Chain struct {
	mu sync.Mutex

	balances map[string]int64 // by public key
	sequence map[string]int64 // by public key, guards against two concurrent txs racing

	failPlant   map[string]FailureMode
	failWork    map[string]FailureMode
	failHarvest map[string]FailureMode
	failTransfer map[string]FailureMode

	nextReward int64 // reward stroops returned by the next successful Harvest call
	healthy    bool

	head      wallet.BlockHead
	headSet   bool
}

// New returns a Chain seeded healthy, with a default harvest reward.
func New() *Chain {
	return &Chain{
		balances:     make(map[string]int64),
		sequence:     make(map[string]int64),
		failPlant:    make(map[string]FailureMode),
		failWork:     make(map[string]FailureMode),
		failHarvest:  make(map[string]FailureMode),
		failTransfer: make(map[string]FailureMode),
		nextReward:   2_000_000,
		healthy:      true,
	}
}

var _ wallet.Chain = (*Chain)(nil)

// SeedBalance sets a starting balance for a public key, for test setup.
func (c *Chain) SeedBalance(publicKey string, stroops int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[publicKey] = stroops
}

// SetHealthy toggles the Health() probe result.
func (c *Chain) SetHealthy(h bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = h
}

// SetNextHarvestReward fixes the stroop amount the next Harvest call
// returns.
func (c *Chain) SetNextHarvestReward(stroops int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextReward = stroops
}

// FailPlantFor injects a failure for the next Plant call keyed by secret.
func (c *Chain) FailPlantFor(secretKey string, mode FailureMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failPlant[secretKey] = mode
}

// FailWorkFor injects a failure for the next Work call keyed by secret.
func (c *Chain) FailWorkFor(secretKey string, mode FailureMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWork[secretKey] = mode
}

// FailHarvestFor injects a failure for the next Harvest call keyed by
// secret.
func (c *Chain) FailHarvestFor(secretKey string, mode FailureMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failHarvest[secretKey] = mode
}

// FailTransferFor injects a failure for the next Transfer call keyed by
// secret.
func (c *Chain) FailTransferFor(secretKey string, mode FailureMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failTransfer[secretKey] = mode
}

// SetHead fixes the next Head() response, for test setup. A test typically
// calls this once per simulated block.
func (c *Chain) SetHead(h wallet.BlockHead) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = h
	c.headSet = true
}

func (c *Chain) Head(ctx context.Context) (wallet.BlockHead, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.headSet {
		return wallet.BlockHead{}, errkind.New(errkind.KindTransientChain, "mockchain: no head set")
	}
	return c.head, nil
}

func publicFromSecret(secretKey string) string {
	return "G" + strings.ToUpper(secretKey)
}

// PublicKeyFor exposes the deterministic secret->public derivation so
// tests can seed balances for a farmer's known secret key.
func PublicKeyFor(secretKey string) string {
	return publicFromSecret(secretKey)
}

func fakeTxHash(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}

func (c *Chain) GenerateWallet(ctx context.Context) (string, string, error) {
	token, err := goUUID.GenerateUUID()
	if err != nil {
		return "", "", errkind.Wrap(errkind.KindTransientNetwork, err, "mockchain: generate wallet")
	}
	secret := "S" + strings.ToUpper(strings.ReplaceAll(token, "-", ""))
	return publicFromSecret(secret), secret, nil
}

func (c *Chain) CheckFunding(ctx context.Context, publicKey string) (wallet.FundingStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal := c.balances[publicKey]
	return wallet.FundingStatus{Balance: bal, IsFunded: bal >= wallet.MinFund}, nil
}

func (c *Chain) Plant(ctx context.Context, secretKey string, blockIndex int64, stake int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode, ok := c.failPlant[secretKey]; ok {
		delete(c.failPlant, secretKey)
		return "", errkind.New(mode.Kind, mode.Msg)
	}

	pub := publicFromSecret(secretKey)
	if c.balances[pub] < stake {
		return "", errkind.New(errkind.KindInsufficientFunds,
			fmt.Sprintf("balance %d below stake %d", c.balances[pub], stake))
	}
	c.balances[pub] -= stake
	c.sequence[pub]++
	return fakeTxHash("plant", pub, fmt.Sprint(blockIndex), fmt.Sprint(c.sequence[pub])), nil
}

func (c *Chain) Work(ctx context.Context, secretKey string, blockIndex int64, nonce uint64, hash string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode, ok := c.failWork[secretKey]; ok {
		delete(c.failWork, secretKey)
		return "", errkind.New(mode.Kind, mode.Msg)
	}

	pub := publicFromSecret(secretKey)
	c.sequence[pub]++
	return fakeTxHash("work", pub, fmt.Sprint(blockIndex), hash), nil
}

func (c *Chain) Harvest(ctx context.Context, secretKey string, blockIndex int64) (string, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode, ok := c.failHarvest[secretKey]; ok {
		delete(c.failHarvest, secretKey)
		return "", 0, errkind.New(mode.Kind, mode.Msg)
	}

	pub := publicFromSecret(secretKey)
	c.sequence[pub]++
	reward := c.nextReward
	c.balances[pub] += reward
	return fakeTxHash("harvest", pub, fmt.Sprint(blockIndex)), reward, nil
}

func (c *Chain) Transfer(ctx context.Context, secretKey string, dest string, amount int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode, ok := c.failTransfer[secretKey]; ok {
		delete(c.failTransfer, secretKey)
		return "", errkind.New(mode.Kind, mode.Msg)
	}

	pub := publicFromSecret(secretKey)
	if c.balances[pub] < amount {
		return "", errkind.New(errkind.KindInsufficientFunds, "transfer exceeds balance")
	}
	c.balances[pub] -= amount
	c.sequence[pub]++
	return fakeTxHash("transfer", pub, dest, fmt.Sprint(amount), fmt.Sprint(c.sequence[pub])), nil
}

func (c *Chain) Health(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}
