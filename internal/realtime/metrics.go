package realtime

import (
	"sync"
	"time"

	"github.com/amoralabs/amora-client/internal/model/enum"
)

// Metrics is a snapshot of the connection's health.
type Metrics struct {
	State            enum.ConnectionState
	Quality          enum.ConnectionQuality
	LatencyMS        int64
	ReconnectCount   int
	LastConnected    time.Time
	LastDisconnected time.Time
}

type metricsTracker struct {
	mu      sync.Mutex
	current Metrics
}

func (t *metricsTracker) setState(state enum.ConnectionState) {
	t.mu.Lock()
	t.current.State = state
	t.mu.Unlock()
}

func (t *metricsTracker) setQuality(quality enum.ConnectionQuality) {
	t.mu.Lock()
	t.current.Quality = quality
	t.mu.Unlock()
}

func (t *metricsTracker) setLatency(rtt time.Duration) {
	t.mu.Lock()
	t.current.LatencyMS = rtt.Milliseconds()
	t.mu.Unlock()
}

func (t *metricsTracker) markConnected() {
	t.mu.Lock()
	t.current.LastConnected = time.Now()
	t.mu.Unlock()
}

func (t *metricsTracker) markDisconnected() {
	t.mu.Lock()
	t.current.LastDisconnected = time.Now()
	t.mu.Unlock()
}

func (t *metricsTracker) markReconnect() {
	t.mu.Lock()
	t.current.ReconnectCount++
	t.mu.Unlock()
}

func (t *metricsTracker) resetReconnects() {
	t.mu.Lock()
	t.current.ReconnectCount = 0
	t.mu.Unlock()
}

func (t *metricsTracker) snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
