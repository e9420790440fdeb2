package channels

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amoralabs/amora-client/internal/model/enum"
)

type fakeHandle struct {
	unsubscribed bool
	err          error
	panics       bool
}

func (h *fakeHandle) Unsubscribe() error {
	h.unsubscribed = true
	if h.panics {
		panic("transport gone")
	}
	return h.err
}

func newConnectedManager(quality enum.ConnectionQuality) *Manager {
	m := NewManager()
	m.SetQuality(quality)
	return m
}

func TestBudgetNeverExceeded(t *testing.T) {
	m := newConnectedManager(enum.QualityPoor) // budget 3
	for i := 0; i < 6; i++ {
		m.Subscribe(fmt.Sprintf("chat.%d", i), &fakeHandle{}, "", enum.PriorityMedium)
	}
	assert.LessOrEqual(t, m.Count(), 3)
}

func TestOfflineAdmitsNothing(t *testing.T) {
	m := NewManager()
	ok := m.Subscribe("chat.1", &fakeHandle{}, "1", enum.PriorityHigh)
	assert.False(t, ok)
	assert.Zero(t, m.Count())
}

func TestQualityDowngradeEvictsImmediately(t *testing.T) {
	m := newConnectedManager(enum.QualityExcellent) // budget 10
	for i := 0; i < 10; i++ {
		priority := enum.PriorityLow
		if i >= 7 {
			priority = enum.PriorityHigh
		}
		ok := m.Subscribe(fmt.Sprintf("chat.%d", i), &fakeHandle{}, "", priority)
		require.True(t, ok)
	}
	require.Equal(t, 10, m.Count())

	m.SetQuality(enum.QualityPoor) // budget 3

	assert.Equal(t, 3, m.Count())
	// The three survivors are the high-priority channels.
	for i := 7; i < 10; i++ {
		_, ok := m.Get(fmt.Sprintf("chat.%d", i))
		assert.True(t, ok, "high-priority channel chat.%d should survive", i)
	}
}

func TestEvictionPrefersLowInactiveOverHighActive(t *testing.T) {
	m := newConnectedManager(enum.QualityPoor) // budget 3

	require.True(t, m.Subscribe("chat.high", &fakeHandle{}, "", enum.PriorityHigh))
	require.True(t, m.Subscribe("chat.low", &fakeHandle{}, "", enum.PriorityLow))
	require.True(t, m.Subscribe("chat.mid", &fakeHandle{}, "", enum.PriorityMedium))
	m.MarkInactive("chat.low")

	require.True(t, m.Subscribe("chat.new", &fakeHandle{}, "", enum.PriorityMedium))

	_, ok := m.Get("chat.low")
	assert.False(t, ok, "low inactive channel should be the victim")
	_, ok = m.Get("chat.high")
	assert.True(t, ok)
	_, ok = m.Get("chat.mid")
	assert.True(t, ok)
}

func TestHighProtectedFromNonHighIncoming(t *testing.T) {
	m := newConnectedManager(enum.QualityPoor) // budget 3
	for i := 0; i < 3; i++ {
		require.True(t, m.Subscribe(fmt.Sprintf("chat.%d", i), &fakeHandle{}, "", enum.PriorityHigh))
	}

	ok := m.Subscribe("chat.medium", &fakeHandle{}, "", enum.PriorityMedium)
	assert.False(t, ok, "medium incoming must not evict high channels")
	assert.Equal(t, 3, m.Count())

	ok = m.Subscribe("chat.vip", &fakeHandle{}, "", enum.PriorityHigh)
	assert.True(t, ok, "high incoming may evict a high channel")
	assert.Equal(t, 3, m.Count())
	_, present := m.Get("chat.vip")
	assert.True(t, present)
}

func TestUnsubscribeToleratesFailingHandle(t *testing.T) {
	m := newConnectedManager(enum.QualityGood)

	erring := &fakeHandle{err: fmt.Errorf("connection reset")}
	panicking := &fakeHandle{panics: true}
	require.True(t, m.Subscribe("chat.err", erring, "", enum.PriorityMedium))
	require.True(t, m.Subscribe("chat.panic", panicking, "", enum.PriorityMedium))

	m.Unsubscribe("chat.err")
	m.Unsubscribe("chat.panic")

	assert.Zero(t, m.Count())
	assert.True(t, erring.unsubscribed)
	assert.True(t, panicking.unsubscribed)
}

func TestResubscribeUpdatesExistingEntry(t *testing.T) {
	m := newConnectedManager(enum.QualityPoor)
	require.True(t, m.Subscribe("chat.1", &fakeHandle{}, "1", enum.PriorityLow))
	require.True(t, m.Subscribe("chat.1", &fakeHandle{}, "1", enum.PriorityHigh))

	info, ok := m.Get("chat.1")
	require.True(t, ok)
	assert.Equal(t, enum.PriorityHigh, info.Priority)
	assert.Equal(t, 1, m.Count())
}

func TestSweepRemovesIdleChannels(t *testing.T) {
	m := newConnectedManager(enum.QualityExcellent)
	m.idleTimeout = 40 * time.Millisecond
	m.sweepInterval = 10 * time.Millisecond

	require.True(t, m.Subscribe("chat.idle", &fakeHandle{}, "", enum.PriorityLow))
	require.True(t, m.Subscribe("chat.busy", &fakeHandle{}, "", enum.PriorityLow))
	require.True(t, m.Subscribe("chat.high", &fakeHandle{}, "", enum.PriorityHigh))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.UpdateActivity("chat.busy")
		m.sweepIdle()
		if _, ok := m.Get("chat.idle"); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, ok := m.Get("chat.idle")
	assert.False(t, ok, "idle channel should be swept")
	_, ok = m.Get("chat.busy")
	assert.True(t, ok, "active channel must survive the sweep")

	// High-priority channels get double the idle grace.
	if info, present := m.Get("chat.high"); present {
		assert.Equal(t, enum.PriorityHigh, info.Priority)
	}
}

func TestClearDropsBookkeepingOnly(t *testing.T) {
	m := newConnectedManager(enum.QualityGood)
	h := &fakeHandle{}
	require.True(t, m.Subscribe("chat.1", h, "", enum.PriorityMedium))

	m.Clear()

	assert.Zero(t, m.Count())
	assert.False(t, h.unsubscribed, "clear must not touch underlying handles")
}
