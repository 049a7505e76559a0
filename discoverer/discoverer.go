// Package discoverer implements the Block Lifecycle Engine's Discoverer
// half: poll the chain head, record each new block, select eligible
// farmers, run a bounded-concurrency plant burst, then notify the
// Executor.
package discoverer

import (
	"context"
	"sync"
	"time"

	"github.com/klaytn/kale-pool/discoverer/queue"
	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/log"
	"github.com/klaytn/kale-pool/metrics"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/storage"
	"github.com/klaytn/kale-pool/wallet"
)

var logger = log.NewModuleLogger(log.Discoverer)

// PlantCutoffGrace is how far past PlantAgeS a block may age and still be
// plantable when drained from the backlog queue. The default
// cfg.PlantCutoffS, which drainQueue applies, is PlantAgeS plus this grace.
const PlantCutoffGrace = 60 * time.Second

// Discoverer runs the block-discovery poll loop.
type Discoverer struct {
	cfg      *config.Config
	chain    wallet.Chain
	store    storage.Store
	bus      *event.Bus
	notifier Notifier
	queue    queue.Queue

	mu       sync.Mutex
	lastSeen int64
	inFlight bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Discoverer. notifier is the Discoverer->Executor HTTP
// client; q is the backlog queue (in-process or Redis-backed).
func New(cfg *config.Config, chain wallet.Chain, store storage.Store, bus *event.Bus, notifier Notifier, q queue.Queue) *Discoverer {
	return &Discoverer{
		cfg:      cfg,
		chain:    chain,
		store:    store,
		bus:      bus,
		notifier: notifier,
		queue:    q,
	}
}

// Run starts the poll loop; it blocks until ctx is cancelled, then drains
// in-flight bursts for up to cfg.DrainSeconds before returning.
func (d *Discoverer) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	logger.Info("discoverer started", "poll_interval", d.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-ticker.C:
			d.poll(ctx)
			d.drainQueue(ctx)
		}
	}
}

// Stop cancels the poll loop.
func (d *Discoverer) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Discoverer) drain() {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.DrainSeconds):
		logger.Warn("drain timeout exceeded, returning with bursts still in flight")
	}
}

// poll queries the chain head and processes the head's index if it is newer
// than the last one seen, queuing it rather than processing it if a burst is
// already running. Only the current head is handled: indices that were
// skipped between two polls are not processed.
func (d *Discoverer) poll(ctx context.Context) {
	head, err := d.chain.Head(ctx)
	if err != nil {
		logger.Warn("head poll failed", "err", err)
		return
	}

	d.mu.Lock()
	last := d.lastSeen
	d.mu.Unlock()

	if head.BlockIndex <= last {
		// Reorg/regression: ignore a re-appearance of an older index.
		// A newer block_index always wins.
		return
	}

	d.mu.Lock()
	d.lastSeen = head.BlockIndex
	busy := d.inFlight
	d.mu.Unlock()

	if busy {
		_ = d.queue.Push(ctx, queue.Item{BlockIndex: head.BlockIndex, DiscoveredAt: time.Now()})
		if n, err := d.queue.Len(ctx); err == nil {
			metrics.QueueDepthGauge.Update(int64(n))
		}
		return
	}
	d.runBurst(ctx, head)
}

// drainQueue processes any backlog accumulated while a burst was in flight.
func (d *Discoverer) drainQueue(ctx context.Context) {
	for {
		d.mu.Lock()
		busy := d.inFlight
		d.mu.Unlock()
		if busy {
			return
		}
		item, ok, err := d.queue.Pop(ctx)
		if err != nil {
			logger.Warn("queue pop failed", "err", err)
			return
		}
		if !ok {
			return
		}
		if time.Since(item.DiscoveredAt) > d.cfg.PlantCutoffS {
			logger.Warn("dropping stale queued block past plant cutoff", "block", item.BlockIndex)
			continue
		}
		head, err := d.chain.Head(ctx)
		if err != nil {
			logger.Warn("head refetch failed while draining queue", "err", err)
			return
		}
		head.BlockIndex = item.BlockIndex
		d.runBurst(ctx, head)
	}
}

// runBurst processes one block end to end: it looks synchronous from
// poll's perspective but internally fans out the plant burst in a
// goroutine so the poll loop is never blocked by it.
func (d *Discoverer) runBurst(ctx context.Context, head wallet.BlockHead) {
	d.mu.Lock()
	d.inFlight = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			d.inFlight = false
			d.mu.Unlock()
		}()
		d.processBlock(ctx, head)
	}()
}

func (d *Discoverer) processBlock(ctx context.Context, head wallet.BlockHead) {
	op := &models.BlockOperation{
		BlockIndex: head.BlockIndex,
		PoolerID:   d.poolerID(),
		Entropy:    head.Entropy,
		BlockAgeS:  time.Since(head.Timestamp).Seconds(),
		Plantable:  head.Plantable,
		MinZeros:   head.MinZeros,
		MaxZeros:   head.MaxZeros,
		MinStake:   head.MinStake,
		MaxStake:   head.MaxStake,
	}
	saved, created, err := d.store.UpsertBlockOperation(ctx, op)
	if err != nil {
		logger.Error("failed to record block operation", "block", head.BlockIndex, "err", err)
		return
	}
	if created {
		metrics.BlocksDiscoveredCounter.Inc(1)
		logger.Info("block discovered", "block", head.BlockIndex)
	} else {
		logger.Debug("block re-discovered, upserted idempotently", "block", head.BlockIndex)
	}
	if !created && saved.Status != models.BlockDiscovered {
		// Already planted: a re-discovery never submits a second plant; a
		// block left at planting_completed only re-notifies the Executor.
		if saved.Status == models.BlockPlantingCompleted {
			if plantings, err := d.store.ListPlantingsForBlock(ctx, saved.BlockIndex); err == nil {
				ids := make([]string, 0, len(plantings))
				for _, p := range plantings {
					ids = append(ids, p.FarmerID.String())
				}
				d.notifyExecutor(ctx, saved, ids)
			}
		}
		return
	}

	farmers, err := d.store.ListEligibleFarmers(ctx, d.poolerID())
	if err != nil {
		logger.Error("failed to list eligible farmers", "block", head.BlockIndex, "err", err)
		return
	}
	if len(farmers) == 0 {
		saved.Status = models.BlockCompleted
		saved.TotalFarmers = 0
		_ = d.store.UpdateBlockOperation(ctx, saved)
		return
	}

	if !head.Plantable {
		waitMs := maxDuration(0, d.cfg.PlantAgeS-time.Duration(op.BlockAgeS*float64(time.Second)))
		if waitMs > 0 {
			select {
			case <-time.After(waitMs):
			case <-ctx.Done():
				return
			}
		}
	}

	d.plantBurst(ctx, saved, farmers)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func (d *Discoverer) poolerID() models.ID {
	id, err := parseUUID(d.cfg.PoolerID)
	if err != nil {
		return models.ZeroID
	}
	return id
}
