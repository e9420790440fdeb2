package batch

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"github.com/amoralabs/amora-client/internal/obs"
)

// Kind classifies a high-frequency signal.
type Kind uint8

const (
	KindPresence Kind = iota
	KindRead
	KindTyping
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindPresence:
		return "presence"
	case KindRead:
		return "read"
	case KindTyping:
		return "typing"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Signal is one coalesced high-frequency update.
type Signal struct {
	ID        string
	Kind      Kind
	Payload   map[string]any
	ChatID    string
	UserID    string
	Timestamp time.Time
}

// Sender delivers a flushed batch for one kind.
type Sender func(kind Kind, signals []Signal) error

// Config tunes batching behavior.
type Config struct {
	// Enabled toggles batching; when false every signal sends synchronously.
	Enabled bool
	// MaxBatchSize forces a flush when a kind's pending set reaches it.
	MaxBatchSize int
	// Intervals overrides per-kind flush intervals.
	Intervals map[Kind]time.Duration
}

// DefaultConfig returns the production batching profile.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxBatchSize: 50,
		Intervals: map[Kind]time.Duration{
			KindPresence:  5 * time.Second,
			KindRead:      2 * time.Second,
			KindTyping:    time.Second,
			KindHeartbeat: 30 * time.Second,
		},
	}
}

// Manager coalesces presence pings, typing indicators, read receipts and
// heartbeats into periodic flushed batches, deduplicating same-key updates
// within a window.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	sender  Sender
	pending map[Kind]map[string]Signal
	timers  map[Kind]*time.Timer
	closed  bool
}

// NewManager creates a manager routing flushes to sender.
func NewManager(sender Sender, cfg Config) *Manager {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.Intervals == nil {
		cfg.Intervals = DefaultConfig().Intervals
	}
	return &Manager{
		cfg:     cfg,
		sender:  sender,
		pending: make(map[Kind]map[string]Signal),
		timers:  make(map[Kind]*time.Timer),
	}
}

// Configure replaces the batching config. Pending batches are flushed first
// so no signal is stranded under a longer interval.
func (m *Manager) Configure(cfg Config) {
	m.FlushAll()
	m.mu.Lock()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = m.cfg.MaxBatchSize
	}
	if cfg.Intervals == nil {
		cfg.Intervals = m.cfg.Intervals
	}
	m.cfg = cfg
	m.mu.Unlock()
}

// Add queues a signal for its kind's next flush, replacing any queued signal
// with the same dedup key (latest state wins). immediate bypasses queueing.
// Returns the signal id.
func (m *Manager) Add(kind Kind, payload map[string]any, chatID, userID string, immediate bool) string {
	signal := Signal{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		ChatID:    chatID,
		UserID:    userID,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	if immediate || !m.cfg.Enabled || m.closed {
		m.mu.Unlock()
		m.send(kind, []Signal{signal})
		return signal.ID
	}

	queue, ok := m.pending[kind]
	if !ok {
		queue = make(map[string]Signal)
		m.pending[kind] = queue
	}
	queue[dedupKey(signal)] = signal

	var flushNow bool
	if len(queue) >= m.cfg.MaxBatchSize {
		flushNow = true
	} else if _, armed := m.timers[kind]; !armed {
		interval := m.cfg.Intervals[kind]
		if interval <= 0 {
			interval = time.Second
		}
		m.timers[kind] = time.AfterFunc(interval, func() { m.Flush(kind) })
	}
	m.mu.Unlock()

	if flushNow {
		m.Flush(kind)
	}
	return signal.ID
}

// dedupKey groups signals that supersede each other. Read receipts key on
// the message id so distinct receipts within a window coexist.
func dedupKey(s Signal) string {
	if s.Kind == KindRead {
		if id, ok := s.Payload["message_id"].(string); ok && id != "" {
			return "msg|" + id
		}
		return "sig|" + s.ID
	}
	scope := s.ChatID
	if scope == "" {
		scope = s.UserID
	}
	if scope == "" {
		scope = "global"
	}
	if s.Kind == KindTyping && s.UserID != "" && s.ChatID != "" {
		scope = s.ChatID + "|" + s.UserID
	}
	return s.Kind.String() + "|" + scope
}

// Flush sends the pending batch for one kind.
func (m *Manager) Flush(kind Kind) {
	m.mu.Lock()
	if timer, ok := m.timers[kind]; ok {
		timer.Stop()
		delete(m.timers, kind)
	}
	queue := m.pending[kind]
	delete(m.pending, kind)
	m.mu.Unlock()

	if len(queue) == 0 {
		return
	}
	signals := make([]Signal, 0, len(queue))
	for _, signal := range queue {
		signals = append(signals, signal)
	}
	sort.Slice(signals, func(i, j int) bool {
		return signals[i].Timestamp.Before(signals[j].Timestamp)
	})
	m.send(kind, signals)
}

// FlushAll drains every kind immediately.
func (m *Manager) FlushAll() {
	for _, kind := range []Kind{KindPresence, KindRead, KindTyping, KindHeartbeat} {
		m.Flush(kind)
	}
}

// Close flushes everything and stops accepting queued signals.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for kind, timer := range m.timers {
		timer.Stop()
		delete(m.timers, kind)
	}
	m.mu.Unlock()
	m.FlushAll()
}

func (m *Manager) send(kind Kind, signals []Signal) {
	if m.sender == nil {
		return
	}
	obs.BatchFlushSize.Observe(float64(len(signals)))
	if err := m.sender(kind, signals); err != nil {
		logs.Warnf("batch %s flush (%d signals): %v", kind, len(signals), err)
	}
}
