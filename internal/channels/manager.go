package channels

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"github.com/amoralabs/amora-client/internal/model/enum"
	"github.com/amoralabs/amora-client/internal/obs"
)

// Handle is the underlying subscription owned by a tracked channel.
type Handle interface {
	Unsubscribe() error
}

// Info is the bookkeeping for one subscribed logical channel.
type Info struct {
	Name         string
	ChatID       string
	Priority     enum.Priority
	Active       bool
	LastActivity time.Time
	handle       Handle
}

const (
	defaultIdleTimeout   = 5 * time.Minute
	defaultSweepInterval = time.Minute
)

// budgetFor returns the channel budget for a quality tier.
func budgetFor(quality enum.ConnectionQuality) int {
	switch quality {
	case enum.QualityExcellent:
		return 10
	case enum.QualityGood:
		return 7
	case enum.QualityPoor:
		return 3
	default:
		return 0
	}
}

// Manager enforces the connection-quality-dependent channel budget, evicting
// the lowest-value channels when room is needed and sweeping idle ones.
type Manager struct {
	mu       sync.Mutex
	channels map[string]*Info
	quality  enum.ConnectionQuality

	idleTimeout   time.Duration
	sweepInterval time.Duration
}

// NewManager creates a manager starting at offline quality.
func NewManager() *Manager {
	return &Manager{
		channels:      make(map[string]*Info),
		quality:       enum.QualityOffline,
		idleTimeout:   defaultIdleTimeout,
		sweepInterval: defaultSweepInterval,
	}
}

// Subscribe tracks a channel, evicting lower-value channels if the budget is
// full. Returns false when no room could be made; the channel is then not
// tracked and the caller must treat it as unsubscribed.
func (m *Manager) Subscribe(name string, handle Handle, chatID string, priority enum.Priority) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.channels[name]; ok {
		existing.handle = handle
		existing.Priority = priority
		existing.Active = true
		existing.LastActivity = time.Now()
		return true
	}

	budget := budgetFor(m.quality)
	if budget == 0 {
		logs.Warnf("channel %s rejected: offline budget", name)
		return false
	}
	if !m.makeRoomLocked(budget-1, priority) {
		logs.Warnf("channel %s rejected: budget %d full and no evictable channel", name, budget)
		return false
	}

	m.channels[name] = &Info{
		Name:         name,
		ChatID:       chatID,
		Priority:     priority,
		Active:       true,
		LastActivity: time.Now(),
		handle:       handle,
	}
	obs.OpenChannels.Set(float64(len(m.channels)))
	return true
}

// Unsubscribe removes a channel. The underlying handle may fail or panic;
// the bookkeeping entry is removed regardless.
func (m *Manager) Unsubscribe(name string) {
	m.mu.Lock()
	info, ok := m.channels[name]
	if ok {
		delete(m.channels, name)
		obs.OpenChannels.Set(float64(len(m.channels)))
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	teardown(info)
}

// Get returns the bookkeeping for a tracked channel.
func (m *Manager) Get(name string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.channels[name]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Count returns the number of tracked channels.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Names returns the tracked channel names.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// UpdateActivity marks a channel active now.
func (m *Manager) UpdateActivity(name string) {
	m.mu.Lock()
	if info, ok := m.channels[name]; ok {
		info.Active = true
		info.LastActivity = time.Now()
	}
	m.mu.Unlock()
}

// MarkInactive flags a channel as idle without removing it.
func (m *Manager) MarkInactive(name string) {
	m.mu.Lock()
	if info, ok := m.channels[name]; ok {
		info.Active = false
	}
	m.mu.Unlock()
}

// SetQuality updates the budget. A downgrade that leaves the manager over
// the new budget evicts immediately rather than waiting for a subscribe.
func (m *Manager) SetQuality(quality enum.ConnectionQuality) {
	m.mu.Lock()
	m.quality = quality
	m.makeRoomLocked(budgetFor(quality), enum.PriorityHigh)
	m.mu.Unlock()
}

// Clear drops all bookkeeping without touching underlying handles. Used when
// the connection is lost and server-side state is already gone.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.channels = make(map[string]*Info)
	obs.OpenChannels.Set(0)
	m.mu.Unlock()
}

// Run sweeps idle channels until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	now := time.Now()
	var victims []*Info

	m.mu.Lock()
	for name, info := range m.channels {
		timeout := m.idleTimeout
		if info.Priority == enum.PriorityHigh {
			timeout *= 2
		}
		idle := now.Sub(info.LastActivity)
		if idle > timeout/2 {
			info.Active = false
		}
		if !info.Active && idle > timeout {
			delete(m.channels, name)
			victims = append(victims, info)
		}
	}
	obs.OpenChannels.Set(float64(len(m.channels)))
	m.mu.Unlock()

	for _, info := range victims {
		logs.Infof("channel %s swept after %s idle", info.Name, now.Sub(info.LastActivity).Truncate(time.Second))
		teardown(info)
	}
}

// makeRoomLocked evicts channels until at most target remain. High-priority
// channels are protected unless the incoming channel is itself high.
func (m *Manager) makeRoomLocked(target int, incoming enum.Priority) bool {
	if target < 0 {
		target = 0
	}
	for len(m.channels) > target {
		victim := m.pickVictimLocked(incoming)
		if victim == nil {
			return false
		}
		delete(m.channels, victim.Name)
		obs.ChannelEvictions.Inc()
		logs.Infof("channel %s evicted (priority %s, active %t)", victim.Name, victim.Priority, victim.Active)
		go teardown(victim)
	}
	obs.OpenChannels.Set(float64(len(m.channels)))
	return true
}

func (m *Manager) pickVictimLocked(incoming enum.Priority) *Info {
	var victim *Info
	var victimScore int64
	for _, info := range m.channels {
		if info.Priority == enum.PriorityHigh && incoming != enum.PriorityHigh {
			continue
		}
		score := removalScore(info)
		if victim == nil || score > victimScore ||
			(score == victimScore && info.LastActivity.Before(victim.LastActivity)) {
			victim = info
			victimScore = score
		}
	}
	return victim
}

// removalScore orders eviction candidates: higher scores are removed first.
// Priority dominates, then inactivity, then age since last activity.
func removalScore(info *Info) int64 {
	score := int64(enum.PriorityHigh-info.Priority) * 100_000
	if !info.Active {
		score += 50_000
	}
	age := int64(time.Since(info.LastActivity) / time.Second)
	if age > 40_000 {
		age = 40_000
	}
	return score + age
}

func teardown(info *Info) {
	if info.handle == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("channel %s unsubscribe panicked: %v", info.Name, r)
		}
	}()
	if err := info.handle.Unsubscribe(); err != nil {
		logs.Warnf("channel %s unsubscribe: %v", info.Name, err)
	}
}
