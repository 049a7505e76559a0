package config

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// Flags is the full set of process flags shared by cmd/pool-discoverer,
// cmd/pool-executor, and cmd/pool-settlement. Each process only reads the
// fields it needs off the resulting Config; unused flags are harmless.
var Flags = []cli.Flag{
	cli.StringFlag{Name: "chain-rpc-url", EnvVar: "KALE_CHAIN_RPC_URL", Usage: "chain RPC endpoint"},
	cli.StringFlag{Name: "chain-network-passphrase", EnvVar: "KALE_CHAIN_NETWORK_PASSPHRASE", Usage: "chain network passphrase"},
	cli.StringFlag{Name: "contract-id", EnvVar: "KALE_CONTRACT_ID", Usage: "pool contract id"},
	cli.StringFlag{Name: "pooler-id", EnvVar: "KALE_POOLER_ID", Usage: "pooler id"},
	cli.StringFlag{Name: "pooler-token", EnvVar: "KALE_POOLER_TOKEN", Usage: "pooler auth token"},
	cli.StringFlag{Name: "database-url", EnvVar: "KALE_DATABASE_URL", Usage: "MySQL DSN, empty uses the in-memory store"},
	cli.StringFlag{Name: "custody-key-hex", EnvVar: "KALE_CUSTODY_KEY_HEX", Usage: "64 hex char secretbox key for sealing custodial keys"},
	cli.StringFlag{Name: "executor-notify-url", EnvVar: "KALE_EXECUTOR_NOTIFY_URL", Usage: "Executor's planted-farmers notification endpoint"},
	cli.StringFlag{Name: "executor-bearer-token", EnvVar: "KALE_EXECUTOR_BEARER_TOKEN", Usage: "bearer token the Executor requires on notifications"},
	cli.StringFlag{Name: "executor-listen-addr", EnvVar: "KALE_EXECUTOR_LISTEN_ADDR", Value: ":8090", Usage: "address the Executor's HTTP receiver binds"},
	cli.StringFlag{Name: "nonce-worker-binary", EnvVar: "KALE_NONCE_WORKER_BINARY", Value: "kale-nonce-worker", Usage: "path to the nonce-search subprocess binary"},
	cli.StringFlag{Name: "platform-wallet-address", EnvVar: "KALE_PLATFORM_WALLET_ADDRESS", Usage: "destination wallet for platform_fee legs"},
	cli.StringFlag{Name: "redis-url", EnvVar: "KALE_REDIS_URL", Usage: "optional Redis URL for the cross-instance backlog queue"},
	cli.StringSliceFlag{Name: "kafka-brokers", EnvVar: "KALE_KAFKA_BROKERS", Usage: "optional comma-separated Kafka brokers for the event sink"},

	cli.DurationFlag{Name: "poll-interval", EnvVar: "KALE_POLL_INTERVAL", Value: 5 * time.Second, Usage: "Discoverer poll interval, bounded [1s,30s]"},
	cli.DurationFlag{Name: "plant-age-s", EnvVar: "KALE_PLANT_AGE_S", Value: 30 * time.Second},
	cli.DurationFlag{Name: "plant-cutoff-s", EnvVar: "KALE_PLANT_CUTOFF_S", Value: 90 * time.Second},
	cli.IntFlag{Name: "c-plant", EnvVar: "KALE_C_PLANT", Value: 10, Usage: "plant burst concurrency"},

	cli.DurationFlag{Name: "work-delay-s", EnvVar: "KALE_WORK_DELAY_S", Value: 240 * time.Second},
	cli.DurationFlag{Name: "work-deadline-s", EnvVar: "KALE_WORK_DEADLINE_S", Value: 60 * time.Second},
	cli.DurationFlag{Name: "subprocess-timeout", EnvVar: "KALE_SUBPROCESS_TIMEOUT", Value: 120 * time.Second},
	cli.IntFlag{Name: "nonce-max-retries", EnvVar: "KALE_NONCE_MAX_RETRIES", Value: 3},
	cli.IntFlag{Name: "target-zeros", EnvVar: "KALE_TARGET_ZEROS", Value: 5},
	cli.IntFlag{Name: "c-harvest", EnvVar: "KALE_C_HARVEST", Value: 5, Usage: "harvest concurrency"},

	cli.Int64Flag{Name: "min-exit-stroops", EnvVar: "KALE_MIN_EXIT_STROOPS", Value: 1_000_000},
	cli.IntFlag{Name: "max-retry", EnvVar: "KALE_MAX_RETRY", Value: 3},
	cli.IntFlag{Name: "c-settle", EnvVar: "KALE_C_SETTLE", Value: 4, Usage: "payout concurrency"},
	cli.DurationFlag{Name: "retry-base-delay", EnvVar: "KALE_RETRY_BASE_DELAY", Value: 30 * time.Second},
	cli.DurationFlag{Name: "retry-cap-delay", EnvVar: "KALE_RETRY_CAP_DELAY", Value: 5 * time.Minute},

	cli.DurationFlag{Name: "drain-seconds", EnvVar: "KALE_DRAIN_SECONDS", Value: 30 * time.Second},
}

// FromCLIContext builds a Config from a cli.Context populated by Flags,
// then validates it.
func FromCLIContext(ctx *cli.Context) (*Config, error) {
	c := &Config{
		ChainRPCURL:           ctx.String("chain-rpc-url"),
		ChainNetworkPassword:  ctx.String("chain-network-passphrase"),
		ContractID:            ctx.String("contract-id"),
		PoolerID:              ctx.String("pooler-id"),
		PoolerToken:           ctx.String("pooler-token"),
		DatabaseURL:           ctx.String("database-url"),
		CustodyKeyHex:         ctx.String("custody-key-hex"),
		ExecutorNotifyURL:     ctx.String("executor-notify-url"),
		ExecutorBearerToken:   ctx.String("executor-bearer-token"),
		ExecutorListenAddr:    ctx.String("executor-listen-addr"),
		NonceWorkerBinaryPath: ctx.String("nonce-worker-binary"),
		PlatformWalletAddress: ctx.String("platform-wallet-address"),
		RedisURL:              ctx.String("redis-url"),
		KafkaBrokers:          ctx.StringSlice("kafka-brokers"),

		PollInterval: ctx.Duration("poll-interval"),
		PlantAgeS:    ctx.Duration("plant-age-s"),
		PlantCutoffS: ctx.Duration("plant-cutoff-s"),
		CPlant:       ctx.Int("c-plant"),

		WorkDelayS:      ctx.Duration("work-delay-s"),
		WorkDeadlineS:   ctx.Duration("work-deadline-s"),
		SubprocessDur:   ctx.Duration("subprocess-timeout"),
		NonceMaxRetries: ctx.Int("nonce-max-retries"),
		TargetZeros:     ctx.Int("target-zeros"),
		CHarvest:        ctx.Int("c-harvest"),

		MinExitStroops: ctx.Int64("min-exit-stroops"),
		MaxRetry:       ctx.Int("max-retry"),
		CSettle:        ctx.Int("c-settle"),
		RetryBaseDelay: ctx.Duration("retry-base-delay"),
		RetryCapDelay:  ctx.Duration("retry-cap-delay"),

		DrainSeconds: ctx.Duration("drain-seconds"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
