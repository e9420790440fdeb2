package api

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"github.com/amoralabs/amora-client/internal/model/enum"
	"github.com/amoralabs/amora-client/internal/obs"
)

// dispatchQueue admits requests in strict priority order (high > medium >
// low, FIFO within a tier) up to a fixed concurrency ceiling. Enqueuing a
// high-priority request cancels every queued low-priority one, and the
// waiting set itself is bounded: overflow cancels the oldest entry of the
// lowest occupied tier.
type dispatchQueue struct {
	mu       sync.Mutex
	limit    int
	maxDepth int
	inflight int
	waiting  [3][]*queueEntry
}

type queueEntry struct {
	priority  enum.Priority
	enqueued  time.Time
	ready     chan error
	abandoned bool
}

func newDispatchQueue(limit, maxDepth int) *dispatchQueue {
	if limit <= 0 {
		limit = 10
	}
	if maxDepth <= 0 {
		maxDepth = 100
	}
	return &dispatchQueue{limit: limit, maxDepth: maxDepth}
}

// acquire blocks until a dispatch slot is granted, the entry is cancelled by
// a higher-priority arrival, or ctx is done. The returned release func must
// be called exactly once after a granted slot is no longer needed.
func (q *dispatchQueue) acquire(ctx context.Context, priority enum.Priority) (func(), error) {
	entry := &queueEntry{
		priority: priority,
		enqueued: time.Now(),
		ready:    make(chan error, 1),
	}

	q.mu.Lock()
	if priority == enum.PriorityHigh {
		q.cancelTierLocked(enum.PriorityLow)
	}
	q.waiting[priority] = append(q.waiting[priority], entry)
	for q.depthLocked() > q.maxDepth {
		if !q.evictOverflowLocked() {
			break
		}
	}
	q.grantLocked()
	q.mu.Unlock()

	select {
	case err := <-entry.ready:
		if err != nil {
			return nil, err
		}
		return func() { q.release() }, nil
	case <-ctx.Done():
		q.mu.Lock()
		entry.abandoned = true
		q.mu.Unlock()
		// A grant may have raced the cancellation; give the slot back.
		select {
		case err := <-entry.ready:
			if err == nil {
				q.release()
			}
		default:
		}
		return nil, ErrCancelled
	}
}

func (q *dispatchQueue) release() {
	q.mu.Lock()
	q.inflight--
	q.grantLocked()
	q.mu.Unlock()
}

func (q *dispatchQueue) grantLocked() {
	for q.inflight < q.limit {
		entry := q.popLocked()
		if entry == nil {
			return
		}
		q.inflight++
		entry.ready <- nil
	}
}

func (q *dispatchQueue) popLocked() *queueEntry {
	for tier := int(enum.PriorityHigh); tier >= int(enum.PriorityLow); tier-- {
		for len(q.waiting[tier]) > 0 {
			entry := q.waiting[tier][0]
			q.waiting[tier] = q.waiting[tier][1:]
			if entry.abandoned {
				continue
			}
			return entry
		}
	}
	return nil
}

func (q *dispatchQueue) depthLocked() int {
	depth := 0
	for tier := range q.waiting {
		for _, entry := range q.waiting[tier] {
			if !entry.abandoned {
				depth++
			}
		}
	}
	return depth
}

// evictOverflowLocked cancels the oldest waiting entry of the lowest
// occupied tier. Returns false when nothing was evictable.
func (q *dispatchQueue) evictOverflowLocked() bool {
	for tier := int(enum.PriorityLow); tier <= int(enum.PriorityHigh); tier++ {
		for i, entry := range q.waiting[tier] {
			if entry.abandoned {
				continue
			}
			entry.abandoned = true
			entry.ready <- ErrCancelled
			q.waiting[tier] = append(q.waiting[tier][:i:i], q.waiting[tier][i+1:]...)
			obs.QueueCancellations.Inc()
			logs.Warnf("request queue full (%d waiting): cancelled %s entry queued %s ago",
				q.maxDepth, entry.priority, time.Since(entry.enqueued).Truncate(time.Millisecond))
			return true
		}
	}
	return false
}

func (q *dispatchQueue) cancelTierLocked(tier enum.Priority) {
	cancelled := 0
	for _, entry := range q.waiting[tier] {
		if entry.abandoned {
			continue
		}
		entry.abandoned = true
		entry.ready <- ErrCancelled
		cancelled++
	}
	q.waiting[tier] = nil
	if cancelled > 0 {
		obs.QueueCancellations.Add(float64(cancelled))
		logs.Infof("request queue: cancelled %d low-priority entries for high-priority arrival", cancelled)
	}
}
