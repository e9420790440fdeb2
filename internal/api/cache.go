package api

import (
	"net/http"
	"sync"
	"time"
)

// Response is the normalized successful result of a pipeline call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type cachedResponse struct {
	response *Response
	expires  time.Time
}

// responseCache holds GET responses for a fixed TTL keyed by request
// signature. Entries are shared read-only across dedup callers.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedResponse
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &responseCache{ttl: ttl, entries: make(map[string]cachedResponse)}
}

func (c *responseCache) get(sig string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[sig]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, sig)
		return nil, false
	}
	return entry.response, true
}

func (c *responseCache) set(sig string, resp *Response) {
	c.mu.Lock()
	c.entries[sig] = cachedResponse{response: resp, expires: time.Now().Add(c.ttl)}
	// Opportunistic sweep so stale entries do not accumulate between hits.
	if len(c.entries) > 256 {
		now := time.Now()
		for key, entry := range c.entries {
			if now.After(entry.expires) {
				delete(c.entries, key)
			}
		}
	}
	c.mu.Unlock()
}

func (c *responseCache) invalidate(sig string) {
	c.mu.Lock()
	delete(c.entries, sig)
	c.mu.Unlock()
}
