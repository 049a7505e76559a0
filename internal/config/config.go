// Package config loads the typed, validated process configuration from
// environment variables: there are no positional CLI arguments, only env
// vars, with cmd/* wiring them through gopkg.in/urfave/cli.v1 flags with an
// env-fallback convention on each flag.
package config

import (
	"fmt"
	"time"

	"github.com/klaytn/kale-pool/internal/errkind"
)

// Config holds every constant the three processes need, not only the ones
// enumerated as env vars below.
type Config struct {
	// Chain RPC.
	ChainRPCURL          string
	ChainNetworkPassword string

	// Pool identity.
	ContractID  string
	PoolerID    string
	PoolerToken string

	// Persistence.
	DatabaseURL string

	// Custodial secret sealing key, 64 hex chars (32 bytes).
	CustodyKeyHex string

	// Executor notification endpoint.
	ExecutorNotifyURL   string
	ExecutorBearerToken string
	ExecutorListenAddr  string

	// Nonce-search subprocess binary.
	NonceWorkerBinaryPath string

	// Platform wallet.
	PlatformWalletAddress string

	// Optional cross-instance backpressure queue.
	RedisURL string

	// Optional Kafka event sink.
	KafkaBrokers []string

	// Discoverer timing.
	PollInterval time.Duration // default 5s, bounded [1s,30s]
	PlantAgeS    time.Duration // default 30s
	PlantCutoffS time.Duration // default 90s (PLANT_AGE_S + ~60s)
	CPlant       int           // default 10

	// Executor timing.
	WorkDelayS       time.Duration // default 240s
	WorkDeadlineS    time.Duration // default 60s
	SubprocessDur    time.Duration // default 120s
	NonceMaxRetries  int           // default 3
	TargetZeros      int           // default 5
	CHarvest         int           // default 5

	// Settlement.
	MinExitStroops int64 // default 1_000_000
	MaxRetry       int   // default 3
	CSettle        int   // default 4
	RetryBaseDelay time.Duration // default 30s
	RetryCapDelay  time.Duration // default 5m

	// Shared shutdown behavior.
	DrainSeconds time.Duration // default 30s
}

func Default() *Config {
	return &Config{
		PollInterval:    5 * time.Second,
		PlantAgeS:       30 * time.Second,
		PlantCutoffS:    90 * time.Second,
		CPlant:          10,
		WorkDelayS:      240 * time.Second,
		WorkDeadlineS:   60 * time.Second,
		SubprocessDur:   120 * time.Second,
		NonceMaxRetries: 3,
		TargetZeros:     5,
		CHarvest:        5,
		MinExitStroops:  1_000_000,
		MaxRetry:        3,
		CSettle:         4,
		RetryBaseDelay:  30 * time.Second,
		RetryCapDelay:   5 * time.Minute,
		DrainSeconds:    30 * time.Second,
	}
}

// Validate enforces the poll interval clamp and positive concurrency caps,
// and rejects configurations that would leave a process unable to start.
func (c *Config) Validate() error {
	if c.PollInterval < time.Second || c.PollInterval > 30*time.Second {
		return errkind.New(errkind.KindPermanentBadRequest,
			fmt.Sprintf("poll interval %s out of bounds [1s,30s]", c.PollInterval))
	}
	if c.CPlant <= 0 || c.CHarvest <= 0 || c.CSettle <= 0 {
		return errkind.New(errkind.KindPermanentBadRequest, "concurrency caps must be positive")
	}
	if c.MinExitStroops <= 0 {
		return errkind.New(errkind.KindPermanentBadRequest, "MIN_EXIT must be positive")
	}
	if c.MaxRetry <= 0 {
		return errkind.New(errkind.KindPermanentBadRequest, "MAX_RETRY must be positive")
	}
	return nil
}
