// Command pool-settlement runs the Exit Settlement Engine: pays out exits
// queued by InitiateExit, reconciles stalled exits, and rechecks farmer
// balances flagged for a recheck.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/klaytn/kale-pool/internal/bootstrap"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/log"
	"github.com/klaytn/kale-pool/settlement"
)

var logger = log.NewModuleLogger(log.Settlement)

var app = cli.NewApp()

func init() {
	app.Name = "pool-settlement"
	app.Usage = "pay out exits, reconcile stalled exits, recheck farmer balances"
	app.Flags = config.Flags
	app.Action = run
}

func run(ctx *cli.Context) error {
	cfg, err := config.FromCLIContext(ctx)
	if err != nil {
		return err
	}
	if cfg.PlatformWalletAddress == "" {
		return fmt.Errorf("KALE_PLATFORM_WALLET_ADDRESS is required")
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

	e := settlement.New(cfg, chain, store, bus, cfg.PlatformWalletAddress)

	runCtx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received, draining")
		cancel()
	}()

	var wg sync.WaitGroup
	for _, loop := range []func(context.Context){e.Run, e.RunReconciliationLoop, e.RunBalanceRecheckLoop} {
		wg.Add(1)
		go func(loop func(context.Context)) {
			defer wg.Done()
			loop(runCtx)
		}(loop)
	}
	wg.Wait()
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
