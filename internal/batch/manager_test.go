package batch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu      sync.Mutex
	flushes []flush
}

type flush struct {
	kind    Kind
	signals []Signal
}

func (c *capture) sender(kind Kind, signals []Signal) error {
	c.mu.Lock()
	c.flushes = append(c.flushes, flush{kind: kind, signals: signals})
	c.mu.Unlock()
	return nil
}

func (c *capture) all() []flush {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]flush(nil), c.flushes...)
}

func shortConfig() Config {
	return Config{
		Enabled:      true,
		MaxBatchSize: 50,
		Intervals: map[Kind]time.Duration{
			KindPresence:  20 * time.Millisecond,
			KindRead:      20 * time.Millisecond,
			KindTyping:    20 * time.Millisecond,
			KindHeartbeat: 20 * time.Millisecond,
		},
	}
}

func TestTypingCoalescesToLatest(t *testing.T) {
	c := &capture{}
	m := NewManager(c.sender, shortConfig())

	m.Add(KindTyping, map[string]any{"typing": true}, "chat-1", "user-1", false)
	m.Add(KindTyping, map[string]any{"typing": false}, "chat-1", "user-1", false)
	m.Add(KindTyping, map[string]any{"typing": true}, "chat-1", "user-1", false)
	m.Flush(KindTyping)

	flushes := c.all()
	require.Len(t, flushes, 1)
	require.Len(t, flushes[0].signals, 1)
	assert.Equal(t, true, flushes[0].signals[0].Payload["typing"])
}

func TestDistinctKeysCoexist(t *testing.T) {
	c := &capture{}
	m := NewManager(c.sender, shortConfig())

	m.Add(KindTyping, map[string]any{"typing": true}, "chat-1", "user-1", false)
	m.Add(KindTyping, map[string]any{"typing": true}, "chat-2", "user-1", false)
	m.Flush(KindTyping)

	flushes := c.all()
	require.Len(t, flushes, 1)
	assert.Len(t, flushes[0].signals, 2)
}

func TestReadReceiptsKeyOnMessageID(t *testing.T) {
	c := &capture{}
	m := NewManager(c.sender, shortConfig())

	m.Add(KindRead, map[string]any{"message_id": "m1"}, "chat-1", "", false)
	m.Add(KindRead, map[string]any{"message_id": "m2"}, "chat-1", "", false)
	m.Add(KindRead, map[string]any{"message_id": "m2"}, "chat-1", "", false)
	m.Flush(KindRead)

	flushes := c.all()
	require.Len(t, flushes, 1)
	assert.Len(t, flushes[0].signals, 2, "distinct receipts coexist, same id replaces")
}

func TestTimerFlush(t *testing.T) {
	c := &capture{}
	m := NewManager(c.sender, shortConfig())

	m.Add(KindPresence, map[string]any{"online": true}, "", "user-1", false)

	require.Eventually(t, func() bool {
		return len(c.all()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, KindPresence, c.all()[0].kind)
}

func TestMaxSizeForcesFlush(t *testing.T) {
	c := &capture{}
	cfg := shortConfig()
	cfg.MaxBatchSize = 3
	cfg.Intervals[KindRead] = time.Hour // timer must not be the trigger
	m := NewManager(c.sender, cfg)

	m.Add(KindRead, map[string]any{"message_id": "m1"}, "chat-1", "", false)
	m.Add(KindRead, map[string]any{"message_id": "m2"}, "chat-1", "", false)
	assert.Empty(t, c.all())
	m.Add(KindRead, map[string]any{"message_id": "m3"}, "chat-1", "", false)

	flushes := c.all()
	require.Len(t, flushes, 1)
	assert.Len(t, flushes[0].signals, 3)
}

func TestImmediateBypassesQueue(t *testing.T) {
	c := &capture{}
	m := NewManager(c.sender, shortConfig())

	m.Add(KindPresence, map[string]any{"online": true}, "", "user-1", true)

	flushes := c.all()
	require.Len(t, flushes, 1)
	assert.Len(t, flushes[0].signals, 1)
}

func TestDisabledSendsSynchronously(t *testing.T) {
	c := &capture{}
	cfg := shortConfig()
	cfg.Enabled = false
	m := NewManager(c.sender, cfg)

	m.Add(KindTyping, map[string]any{"typing": true}, "chat-1", "user-1", false)
	m.Add(KindTyping, map[string]any{"typing": false}, "chat-1", "user-1", false)

	assert.Len(t, c.all(), 2, "disabled batching must not coalesce")
}

func TestFlushOrderIsChronological(t *testing.T) {
	c := &capture{}
	cfg := shortConfig()
	cfg.Intervals[KindRead] = time.Hour
	m := NewManager(c.sender, cfg)

	m.Add(KindRead, map[string]any{"message_id": "m1"}, "chat-1", "", false)
	time.Sleep(2 * time.Millisecond)
	m.Add(KindRead, map[string]any{"message_id": "m2"}, "chat-1", "", false)
	m.Flush(KindRead)

	flushes := c.all()
	require.Len(t, flushes, 1)
	require.Len(t, flushes[0].signals, 2)
	assert.Equal(t, "m1", flushes[0].signals[0].Payload["message_id"])
	assert.Equal(t, "m2", flushes[0].signals[1].Payload["message_id"])
}

func TestCloseFlushesPending(t *testing.T) {
	c := &capture{}
	cfg := shortConfig()
	cfg.Intervals[KindPresence] = time.Hour
	m := NewManager(c.sender, cfg)

	m.Add(KindPresence, map[string]any{"online": true}, "", "user-1", false)
	m.Close()

	require.Len(t, c.all(), 1)

	// Signals after close go straight through.
	m.Add(KindPresence, map[string]any{"online": false}, "", "user-1", false)
	assert.Len(t, c.all(), 2)
}
