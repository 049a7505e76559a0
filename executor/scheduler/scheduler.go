// Package scheduler is the Executor's timer priority queue: explicit tasks
// on a min-heap keyed by wake time, rather than one goroutine+timer per
// farmer. Work submissions become first-class timer entries; harvests are
// started directly by the Executor once a farmer's work completes.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/klaytn/kale-pool/internal/log"
	"github.com/klaytn/kale-pool/metrics"
)

var logger = log.NewModuleLogger(log.Scheduler)

// dedupCacheSize bounds the LRU of recently-scheduled timer keys, so a long
// run with many harvest intervals does not grow memory unbounded.
const dedupCacheSize = 10000

// Task is one scheduled unit of work, fired at WakeAt.
type Task struct {
	Key    string // (block_index, farmer_id) or similar, for dedup/logging
	WakeAt time.Time
	Fn     func(ctx context.Context)

	index int // heap bookkeeping
}

type taskHeap []*Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].WakeAt.Before(h[j].WakeAt) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler runs a single goroutine that wakes at the next task's WakeAt,
// fires it (each in its own goroutine so a slow task never delays the
// next), and re-sleeps.
type Scheduler struct {
	mu      sync.Mutex
	heap    taskHeap
	wake    chan struct{}
	dedup   *lru.Cache
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns an idle Scheduler; call Run to start its goroutine.
func New() *Scheduler {
	cache, err := lru.New(dedupCacheSize)
	if err != nil {
		panic("scheduler: lru.New: " + err.Error())
	}
	return &Scheduler{
		wake:  make(chan struct{}, 1),
		dedup: cache,
		done:  make(chan struct{}),
	}
}

// Schedule adds a task, skipping it if key was already scheduled and not
// yet evicted from the dedup cache (prevents duplicate timers from a
// replayed notification for the same block/farmer).
func (s *Scheduler) Schedule(key string, wakeAt time.Time, fn func(ctx context.Context)) {
	if _, ok := s.dedup.Get(key); ok {
		logger.Debug("skipping duplicate scheduled task", "key", key)
		return
	}
	s.dedup.Add(key, struct{}{})

	s.mu.Lock()
	heap.Push(&s.heap, &Task{Key: key, WakeAt: wakeAt, Fn: fn})
	metrics.ScheduledTimersGauge.Update(int64(s.heap.Len()))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks, firing tasks as their wake time arrives, until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer close(s.done)

	for {
		s.mu.Lock()
		var next *Task
		if s.heap.Len() > 0 {
			next = s.heap[0]
		}
		s.mu.Unlock()

		var timer *time.Timer
		if next == nil {
			timer = time.NewTimer(time.Hour)
		} else {
			d := time.Until(next.WakeAt)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
		}

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := time.Now()
	for {
		s.mu.Lock()
		if s.heap.Len() == 0 || s.heap[0].WakeAt.After(now) {
			s.mu.Unlock()
			return
		}
		task := heap.Pop(&s.heap).(*Task)
		metrics.ScheduledTimersGauge.Update(int64(s.heap.Len()))
		s.mu.Unlock()

		go task.Fn(ctx)
	}
}

// Stop cancels the scheduler's goroutine.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Len reports the number of pending tasks, for tests and health checks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}
