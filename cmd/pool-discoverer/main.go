// Command pool-discoverer runs the Block Lifecycle Engine's Discoverer
// process: poll the chain head, plant eligible farmers, notify the
// Executor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/klaytn/kale-pool/discoverer"
	"github.com/klaytn/kale-pool/discoverer/queue"
	"github.com/klaytn/kale-pool/internal/bootstrap"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/log"
)

var logger = log.NewModuleLogger(log.Discoverer)

var app = cli.NewApp()

func init() {
	app.Name = "pool-discoverer"
	app.Usage = "poll the chain head, plant eligible farmers, notify the Executor"
	app.Flags = config.Flags
	app.Action = run
}

func run(ctx *cli.Context) error {
	cfg, err := config.FromCLIContext(ctx)
	if err != nil {
		return err
	}
	if err := bootstrap.Secrets(cfg); err != nil {
		return err
	}

	store, closeStore, err := bootstrap.Store(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	chain := bootstrap.Chain(cfg)

	bus, err := bootstrap.EventBus(cfg)
	if err != nil {
		return err
	}

	q, err := backlogQueue(cfg)
	if err != nil {
		return err
	}
	notifier := discoverer.NewHTTPNotifier(cfg.ExecutorNotifyURL, cfg.ExecutorBearerToken)

	d := discoverer.New(cfg, chain, store, bus, notifier, q)

	runCtx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received, draining")
		cancel()
	}()

	d.Run(runCtx)
	return nil
}

func backlogQueue(cfg *config.Config) (queue.Queue, error) {
	if cfg.RedisURL == "" {
		return queue.NewInProcess(), nil
	}
	return queue.NewRedis(cfg.RedisURL)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
