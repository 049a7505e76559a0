// Package queue is the bounded FIFO of pending block bursts the Discoverer
// drains from when a plant burst is in-flight and a new block arrives.
// Depth is fixed at 4: older queued blocks are dropped with a logged
// warning once they age past the plant cutoff.
package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/log"
)

var logger = log.NewModuleLogger(log.Discoverer)

// Depth is the bounded FIFO size.
const Depth = 4

// Item is one pending block awaiting a plant burst.
type Item struct {
	BlockIndex int64
	DiscoveredAt time.Time
}

// Queue is satisfied by both the in-process and Redis-backed
// implementations.
type Queue interface {
	// Push enqueues index, dropping the oldest entry with a warning if the
	// queue is already at Depth.
	Push(ctx context.Context, item Item) error
	// Pop removes and returns the oldest entry, or ok=false if empty.
	Pop(ctx context.Context) (item Item, ok bool, err error)
	Len(ctx context.Context) (int, error)
}

// channelQueue is the in-process fallback used when no Redis URL is
// configured; a single instance only, no cross-process sharing.
type channelQueue struct {
	items chan Item
}

// NewInProcess returns a Queue backed by a buffered channel.
func NewInProcess() Queue {
	return &channelQueue{items: make(chan Item, Depth)}
}

func (q *channelQueue) Push(ctx context.Context, item Item) error {
	select {
	case q.items <- item:
		return nil
	default:
		// Queue full: drop the oldest to make room.
		select {
		case old := <-q.items:
			logger.Warn("dropping queued block, queue full", "dropped_block", old.BlockIndex, "new_block", item.BlockIndex)
		default:
		}
		select {
		case q.items <- item:
		default:
		}
		return nil
	}
}

func (q *channelQueue) Pop(ctx context.Context) (Item, bool, error) {
	select {
	case item := <-q.items:
		return item, true, nil
	default:
		return Item{}, false, nil
	}
}

func (q *channelQueue) Len(ctx context.Context) (int, error) {
	return len(q.items), nil
}

// redisQueue backs the FIFO with a Redis list, so multiple Discoverer
// instances behind the same pooler share one backpressure queue.
type redisQueue struct {
	client *redis.Client
	key    string
}

// NewRedis connects to redisURL and returns a shared Queue.
func NewRedis(redisURL string) (Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindPermanentBadRequest, err, "queue: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping().Err(); err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "queue: ping redis")
	}
	return &redisQueue{client: client, key: "kale_pool:discoverer:block_queue"}, nil
}

func encodeItem(item Item) string {
	return strconv.FormatInt(item.BlockIndex, 10) + ":" + strconv.FormatInt(item.DiscoveredAt.Unix(), 10)
}

func decodeItem(s string) (Item, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			idx, err := strconv.ParseInt(s[:i], 10, 64)
			if err != nil {
				return Item{}, err
			}
			ts, err := strconv.ParseInt(s[i+1:], 10, 64)
			if err != nil {
				return Item{}, err
			}
			return Item{BlockIndex: idx, DiscoveredAt: time.Unix(ts, 0)}, nil
		}
	}
	return Item{}, errkind.New(errkind.KindPermanentBadRequest, "queue: malformed redis item")
}

func (q *redisQueue) Push(ctx context.Context, item Item) error {
	if err := q.client.RPush(q.key, encodeItem(item)).Err(); err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "queue: rpush")
	}
	n, err := q.client.LLen(q.key).Result()
	if err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "queue: llen")
	}
	if n > Depth {
		old, err := q.client.LPop(q.key).Result()
		if err == nil {
			if decoded, derr := decodeItem(old); derr == nil {
				logger.Warn("dropping queued block, queue full", "dropped_block", decoded.BlockIndex, "new_block", item.BlockIndex)
			}
		}
	}
	return nil
}

func (q *redisQueue) Pop(ctx context.Context) (Item, bool, error) {
	raw, err := q.client.LPop(q.key).Result()
	if err == redis.Nil {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, errkind.Wrap(errkind.KindTransientNetwork, err, "queue: lpop")
	}
	item, derr := decodeItem(raw)
	if derr != nil {
		return Item{}, false, derr
	}
	return item, true, nil
}

func (q *redisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(q.key).Result()
	if err != nil {
		return 0, errkind.Wrap(errkind.KindTransientNetwork, err, "queue: llen")
	}
	return int(n), nil
}
