// Package executor implements the Block Lifecycle Engine's Executor half:
// receive planted-farmer notifications, schedule and run Work at
// block-age+delta via sequential nonce-search subprocesses, then schedule
// and run Harvest with bounded concurrency.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/executor/httpapi"
	"github.com/klaytn/kale-pool/executor/noncework"
	"github.com/klaytn/kale-pool/executor/scheduler"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/log"
	"github.com/klaytn/kale-pool/metrics"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/storage"
	"github.com/klaytn/kale-pool/wallet"
)

var logger = log.NewModuleLogger(log.Executor)

// Executor orchestrates the notification receiver, the timer scheduler,
// the sequential work loop, and the bounded-concurrency harvest fan-out.
type Executor struct {
	cfg   *config.Config
	chain wallet.Chain
	store storage.Store
	bus   *event.Bus

	sched      *scheduler.Scheduler
	noncer     nonceSearcher
	workQueue  chan workTask
	harvestSem chan struct{}
	server     *httpapi.Server

	cancel context.CancelFunc
}

// nonceSearcher is the subset of noncework.Runner the Executor depends on,
// narrowed to an interface so tests can substitute a fake instead of
// spawning the real subprocess.
type nonceSearcher interface {
	Search(ctx context.Context, farmerHex string, blockIndex int64, entropyHex string, nonceCount int) (noncework.Result, error)
}

// New wires an Executor ready for Run.
func New(cfg *config.Config, chain wallet.Chain, store storage.Store, bus *event.Bus) *Executor {
	runner := noncework.NewRunner(cfg.NonceWorkerBinaryPath)
	runner.Timeout = cfg.SubprocessDur

	e := &Executor{
		cfg:        cfg,
		chain:      chain,
		store:      store,
		bus:        bus,
		sched:      scheduler.New(),
		noncer:     runner,
		workQueue:  make(chan workTask, 256),
		harvestSem: make(chan struct{}, cfg.CHarvest),
	}
	e.server = httpapi.New(e, cfg.ExecutorBearerToken)
	return e
}

// Server exposes the HTTP handler for cmd/pool-executor to serve.
func (e *Executor) Server() *httpapi.Server { return e.server }

// Run starts the scheduler and work loop goroutines; it blocks until ctx is
// cancelled, then waits cfg.DrainSeconds before returning. In-flight work is
// not tracked: the wait always lasts the full period.
func (e *Executor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	go e.sched.Run(ctx)
	go e.runWorkLoop(ctx)

	logger.Info("executor started")
	<-ctx.Done()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), e.cfg.DrainSeconds)
	defer drainCancel()
	<-drainCtx.Done()
}

// Stop cancels the executor's goroutines.
func (e *Executor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.sched.Stop()
}

// HandlePlantedFarmers implements httpapi.Handler: the Discoverer's
// notification becomes one scheduled work timer per farmer, at
// work_time = block_timestamp + WorkDelayS.
func (e *Executor) HandlePlantedFarmers(n httpapi.PlantedFarmersNotification) (int, error) {
	blockTimestamp := time.Unix(n.BlockTimestamp, 0)
	workTime := blockTimestamp.Add(e.cfg.WorkDelayS)

	scheduled := 0
	for _, pf := range n.PlantedFarmers {
		farmerID, err := parseUUID(pf.FarmerID)
		if err != nil {
			logger.Warn("skipping planted-farmer with malformed id", "farmer_id", pf.FarmerID, "err", err)
			continue
		}
		key := fmt.Sprintf("work:%d:%s", n.BlockIndex, farmerID)
		task := workTask{blockIndex: n.BlockIndex, entropy: n.Entropy, farmerID: farmerID, workTime: workTime}
		e.sched.Schedule(key, workTime, func(ctx context.Context) {
			select {
			case e.workQueue <- task:
			case <-ctx.Done():
			}
		})
		scheduled++
	}
	return scheduled, nil
}

// nonceResult is the parsed outcome of one nonce-search subprocess run.
type nonceResult struct {
	nonce uint64
	hash  string
	zeros int
}

// searchNonce spawns the nonce-search subprocess and converts the farmer's
// custodial public key into the hex form the subprocess's --farmer-hex
// flag expects.
func (e *Executor) searchNonce(ctx context.Context, farmerPublicKey string, blockIndex int64, entropy string, nonceCount int) (nonceResult, error) {
	start := time.Now()
	r, err := e.noncer.Search(ctx, farmerHex(farmerPublicKey), blockIndex, entropy, nonceCount)
	metrics.NonceSearchDurationGauge.Update(time.Since(start).Milliseconds())
	if err != nil {
		return nonceResult{}, err
	}
	return nonceResult{nonce: r.Nonce, hash: r.Hash, zeros: r.Zeros}, nil
}

func farmerHex(publicKey string) string {
	out := make([]byte, 0, len(publicKey)*2)
	const hexdigits = "0123456789abcdef"
	for i := 0; i < len(publicKey); i++ {
		b := publicKey[i]
		out = append(out, hexdigits[b>>4], hexdigits[b&0xf])
	}
	return string(out)
}

func parseUUID(s string) (models.ID, error) {
	return models.IDFromString(s)
}
