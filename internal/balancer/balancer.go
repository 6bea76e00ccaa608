// Package balancer selects one upstream credential from a channel's active
// set according to the channel's load-balance strategy.
//
// Round-robin cursors are process-local and lost on restart; the rotation is
// a soft balance, not a strict one, and concurrent selections may skip or
// duplicate indices under contention.
package balancer

import (
	"math/rand/v2"
	"sync"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// Balancer holds per-channel selection state. Safe for concurrent use.
type Balancer struct {
	mu      sync.Mutex
	cursors map[string]uint64 // channelID -> round-robin cursor
}

// New returns a ready-to-use Balancer.
func New() *Balancer {
	return &Balancer{cursors: make(map[string]uint64)}
}

// Pick returns one key from keys, or nil when keys is empty. Keys are assumed
// pre-filtered to active status; an unknown strategy falls back to round-robin.
func (b *Balancer) Pick(keys []*gateway.APIKey, strategy, channelID string) *gateway.APIKey {
	if len(keys) == 0 {
		return nil
	}
	switch strategy {
	case gateway.StrategyWeighted:
		return pickWeighted(keys)
	case gateway.StrategyPriority:
		return pickPriority(keys)
	case gateway.StrategyLeastUsed:
		return pickLeastUsed(keys)
	default:
		return b.pickRoundRobin(keys, channelID)
	}
}

// pickRoundRobin selects keys[cursor mod n] and advances the cursor. The
// cursor survives key-list mutations; after an edit it is reinterpreted
// modulo the new length.
func (b *Balancer) pickRoundRobin(keys []*gateway.APIKey, channelID string) *gateway.APIKey {
	b.mu.Lock()
	cursor := b.cursors[channelID]
	b.cursors[channelID] = cursor + 1
	b.mu.Unlock()
	return keys[cursor%uint64(len(keys))]
}

// pickWeighted selects a key with probability weight/sum(weights); when all
// weights are zero the pick is uniform.
func pickWeighted(keys []*gateway.APIKey) *gateway.APIKey {
	total := 0
	for _, k := range keys {
		total += k.Weight
	}
	if total <= 0 {
		return keys[rand.IntN(len(keys))]
	}
	n := rand.IntN(total)
	for _, k := range keys {
		n -= k.Weight
		if n < 0 {
			return k
		}
	}
	return keys[len(keys)-1]
}

// pickPriority selects the highest priority; ties break on lowest errorCount,
// then on original order.
func pickPriority(keys []*gateway.APIKey) *gateway.APIKey {
	best := keys[0]
	for _, k := range keys[1:] {
		if k.Priority > best.Priority ||
			(k.Priority == best.Priority && k.ErrorCount < best.ErrorCount) {
			best = k
		}
	}
	return best
}

// pickLeastUsed selects the lowest totalRequests; ties break on original order.
func pickLeastUsed(keys []*gateway.APIKey) *gateway.APIKey {
	best := keys[0]
	for _, k := range keys[1:] {
		if k.TotalRequests < best.TotalRequests {
			best = k
		}
	}
	return best
}
