package realtime

import (
	"time"

	"github.com/yanun0323/logs"

	"github.com/amoralabs/amora-client/internal/model/enum"
	"github.com/amoralabs/amora-client/internal/obs"
)

// MessageKind classifies queued outbound messages.
type MessageKind uint8

const (
	KindMessage MessageKind = iota
	KindRead
	KindTyping
	KindEvent
)

func (k MessageKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindRead:
		return "read"
	case KindTyping:
		return "typing"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// QueuedMessage is an outbound frame accepted while disconnected, replayed in
// FIFO order once the connection is back.
type QueuedMessage struct {
	Kind     MessageKind
	Event    string
	Channel  string
	Payload  map[string]any
	Priority enum.Priority
	Enqueued time.Time
	Retries  int
}

const (
	defaultOutboundCap     = 100
	defaultOutboundRetries = 3
)

// outboundQueue is a bounded FIFO. On overflow the oldest non-high entry is
// dropped; if every entry is high-priority the oldest overall goes.
type outboundQueue struct {
	entries    []*QueuedMessage
	cap        int
	maxRetries int
}

func newOutboundQueue(capacity, maxRetries int) *outboundQueue {
	if capacity <= 0 {
		capacity = defaultOutboundCap
	}
	if maxRetries <= 0 {
		maxRetries = defaultOutboundRetries
	}
	return &outboundQueue{cap: capacity, maxRetries: maxRetries}
}

func (q *outboundQueue) push(msg *QueuedMessage) {
	if msg.Enqueued.IsZero() {
		msg.Enqueued = time.Now()
	}
	if len(q.entries) >= q.cap {
		q.dropOne()
	}
	q.entries = append(q.entries, msg)
}

func (q *outboundQueue) dropOne() {
	victim := -1
	for i, entry := range q.entries {
		if entry.Priority != enum.PriorityHigh {
			victim = i
			break
		}
	}
	if victim < 0 {
		victim = 0
	}
	dropped := q.entries[victim]
	q.entries = append(q.entries[:victim], q.entries[victim+1:]...)
	obs.OutboundDrops.Inc()
	logs.Warnf("outbound queue full, dropped %s for %s (queued %s ago)",
		dropped.Kind, dropped.Channel, time.Since(dropped.Enqueued).Truncate(time.Millisecond))
}

// drain removes and returns all entries in FIFO order.
func (q *outboundQueue) drain() []*QueuedMessage {
	entries := q.entries
	q.entries = nil
	return entries
}

// requeue puts a failed entry back at the front if it has retry budget left.
// Returns false when the entry is exhausted and dropped.
func (q *outboundQueue) requeue(msg *QueuedMessage) bool {
	msg.Retries++
	if msg.Retries >= q.maxRetries {
		obs.OutboundDrops.Inc()
		logs.Warnf("outbound %s for %s dropped after %d attempts", msg.Kind, msg.Channel, msg.Retries)
		return false
	}
	q.entries = append([]*QueuedMessage{msg}, q.entries...)
	return true
}

func (q *outboundQueue) len() int {
	return len(q.entries)
}
