// Command pool-executor runs the Block Lifecycle Engine's Executor process:
// receive planted-farmer notifications, run Work then Harvest for each.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/klaytn/kale-pool/executor"
	"github.com/klaytn/kale-pool/executor/httpapi"
	"github.com/klaytn/kale-pool/internal/bootstrap"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/log"
)

var logger = log.NewModuleLogger(log.Executor)

var app = cli.NewApp()

func init() {
	app.Name = "pool-executor"
	app.Usage = "schedule and run Work and Harvest for planted farmers"
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

	e := executor.New(cfg, chain, store, bus)

	runCtx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received, draining")
		cancel()
		e.Stop()
	}()

	go e.Run(runCtx)

	logger.Info("executor HTTP receiver listening", "addr", cfg.ExecutorListenAddr)
	errCh := make(chan error, 1)
	go func() { errCh <- httpapi.ListenAndServe(cfg.ExecutorListenAddr, e.Server()) }()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
