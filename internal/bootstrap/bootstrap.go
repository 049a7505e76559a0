// Package bootstrap wires the pieces every cmd/pool-* entrypoint needs from
// a loaded Config: the persistence store, the chain adapter, the event
// bus, and the custodial sealing key. Kept separate from internal/config so
// the three processes share the exact same wiring instead of each
// reimplementing "which store/chain to construct" from scratch.
package bootstrap

import (
	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/log"
	"github.com/klaytn/kale-pool/internal/secretkey"
	"github.com/klaytn/kale-pool/storage"
	"github.com/klaytn/kale-pool/storage/memstore"
	"github.com/klaytn/kale-pool/storage/sqlstore"
	"github.com/klaytn/kale-pool/wallet"
	"github.com/klaytn/kale-pool/wallet/mockchain"
	"github.com/klaytn/kale-pool/wallet/stellarrpc"
)

var logger = log.NewModuleLogger(log.Bootstrap)

// Store opens the relational store when cfg.DatabaseURL is set, otherwise
// falls back to the in-memory store (useful for local runs and demos; no
// process restarts across it). The returned close func is always non-nil.
func Store(cfg *config.Config) (storage.Store, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("KALE_DATABASE_URL not set, running against the in-memory store")
		s := memstore.New()
		return s, func() error { return nil }, nil
	}
	db, err := sqlstore.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// Chain builds the production stellarrpc.Client when cfg.ChainRPCURL is
// set, otherwise falls back to the deterministic mockchain (local runs and
// demos only).
func Chain(cfg *config.Config) wallet.Chain {
	if cfg.ChainRPCURL == "" {
		logger.Warn("KALE_CHAIN_RPC_URL not set, running against the mock chain adapter")
		return mockchain.New()
	}
	return stellarrpc.New(cfg.ChainRPCURL, cfg.ChainNetworkPassword, cfg.ContractID, 0)
}

// EventBus builds the in-process bus and, if cfg.KafkaBrokers is non-empty,
// fans every published event out to Kafka as well.
func EventBus(cfg *config.Config) (*event.Bus, error) {
	bus := event.New()
	if len(cfg.KafkaBrokers) == 0 {
		return bus, nil
	}
	sink, err := event.NewKafkaSink(cfg.KafkaBrokers, "kale-pool-events")
	if err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "bootstrap: kafka sink")
	}
	bus.SetSink(sink)
	return bus, nil
}

// Secrets installs the process-wide custodial sealing key. Must be called
// before anything touches models.SealedSecret.
func Secrets(cfg *config.Config) error {
	if cfg.CustodyKeyHex == "" {
		return errkind.New(errkind.KindPermanentBadRequest, "KALE_CUSTODY_KEY_HEX is required")
	}
	return secretkey.Set(cfg.CustodyKeyHex)
}
