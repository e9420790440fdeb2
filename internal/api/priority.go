package api

import (
	"strings"

	"github.com/amoralabs/amora-client/internal/model/enum"
)

// priorityPrefixes maps URL prefixes to dispatch tiers. Longest match wins;
// unmatched paths default to medium.
var priorityPrefixes = []struct {
	prefix   string
	priority enum.Priority
}{
	{"/api/v1/auth", enum.PriorityHigh},
	{"/api/v1/broadcasting", enum.PriorityHigh},
	{"/api/v1/messages", enum.PriorityHigh},
	{"/api/v1/chats", enum.PriorityHigh},
	{"/api/v1/calls", enum.PriorityHigh},
	{"/api/v1/matches", enum.PriorityMedium},
	{"/api/v1/likes", enum.PriorityMedium},
	{"/api/v1/profile", enum.PriorityMedium},
	{"/api/v1/presence", enum.PriorityMedium},
	{"/api/v1/discovery", enum.PriorityLow},
	{"/api/v1/analytics", enum.PriorityLow},
	{"/api/v1/settings", enum.PriorityLow},
}

// classify maps a request path to its priority tier.
func classify(path string) enum.Priority {
	best := enum.PriorityMedium
	bestLen := -1
	for _, entry := range priorityPrefixes {
		if strings.HasPrefix(path, entry.prefix) && len(entry.prefix) > bestLen {
			best = entry.priority
			bestLen = len(entry.prefix)
		}
	}
	return best
}
