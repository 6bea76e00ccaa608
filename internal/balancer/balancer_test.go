package balancer

import (
	"testing"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

func makeKeys(n int) []*gateway.APIKey {
	keys := make([]*gateway.APIKey, n)
	for i := range keys {
		keys[i] = &gateway.APIKey{
			ID:       string(rune('a' + i)),
			Status:   gateway.KeyActive,
			Priority: gateway.DefaultPriority,
			Weight:   gateway.DefaultWeight,
		}
	}
	return keys
}

func TestPickEmpty(t *testing.T) {
	t.Parallel()
	b := New()
	if got := b.Pick(nil, gateway.StrategyRoundRobin, "ch"); got != nil {
		t.Errorf("Pick(nil) = %v, want nil", got)
	}
}

func TestRoundRobinRotation(t *testing.T) {
	t.Parallel()
	b := New()
	keys := makeKeys(3)

	want := []string{"a", "b", "c", "a", "b", "c"}
	for i, w := range want {
		got := b.Pick(keys, gateway.StrategyRoundRobin, "ch")
		if got.ID != w {
			t.Errorf("pick %d = %q, want %q", i, got.ID, w)
		}
	}
}

func TestRoundRobinPerChannelCursor(t *testing.T) {
	t.Parallel()
	b := New()
	keys := makeKeys(2)

	if got := b.Pick(keys, gateway.StrategyRoundRobin, "ch1"); got.ID != "a" {
		t.Errorf("ch1 first pick = %q, want a", got.ID)
	}
	// A different channel starts its own rotation.
	if got := b.Pick(keys, gateway.StrategyRoundRobin, "ch2"); got.ID != "a" {
		t.Errorf("ch2 first pick = %q, want a", got.ID)
	}
	if got := b.Pick(keys, gateway.StrategyRoundRobin, "ch1"); got.ID != "b" {
		t.Errorf("ch1 second pick = %q, want b", got.ID)
	}
}

func TestRoundRobinSurvivesShrink(t *testing.T) {
	t.Parallel()
	b := New()
	keys := makeKeys(3)

	for range 2 {
		b.Pick(keys, gateway.StrategyRoundRobin, "ch")
	}
	// Cursor is at 2; the list shrinks to 2 and the cursor is reinterpreted
	// modulo the new length.
	got := b.Pick(keys[:2], gateway.StrategyRoundRobin, "ch")
	if got.ID != "a" {
		t.Errorf("pick after shrink = %q, want a", got.ID)
	}
}

func TestUnknownStrategyFallsBackToRoundRobin(t *testing.T) {
	t.Parallel()
	b := New()
	keys := makeKeys(2)

	if got := b.Pick(keys, "bogus", "ch"); got.ID != "a" {
		t.Errorf("first pick = %q, want a", got.ID)
	}
	if got := b.Pick(keys, "bogus", "ch"); got.ID != "b" {
		t.Errorf("second pick = %q, want b", got.ID)
	}
}

func TestWeightedDistribution(t *testing.T) {
	t.Parallel()
	b := New()
	keys := []*gateway.APIKey{
		{ID: "light", Weight: 1, Status: gateway.KeyActive},
		{ID: "heavy", Weight: 99, Status: gateway.KeyActive},
	}

	counts := map[string]int{}
	const n = 1000
	for range n {
		counts[b.Pick(keys, gateway.StrategyWeighted, "ch").ID]++
	}
	if counts["heavy"] < 900 {
		t.Errorf("heavy key served %d of %d, want >= 900", counts["heavy"], n)
	}
}

func TestWeightedZeroWeightsUniform(t *testing.T) {
	t.Parallel()
	b := New()
	keys := []*gateway.APIKey{
		{ID: "a", Status: gateway.KeyActive},
		{ID: "b", Status: gateway.KeyActive},
	}

	counts := map[string]int{}
	for range 1000 {
		counts[b.Pick(keys, gateway.StrategyWeighted, "ch").ID]++
	}
	if counts["a"] == 0 || counts["b"] == 0 {
		t.Errorf("uniform fallback never picked one key: %v", counts)
	}
}

func TestPriorityTieBreaksOnErrorCount(t *testing.T) {
	t.Parallel()
	b := New()
	keys := []*gateway.APIKey{
		{ID: "k1", Priority: 80, ErrorCount: 3},
		{ID: "k2", Priority: 80, ErrorCount: 0},
		{ID: "k3", Priority: 60, ErrorCount: 0},
	}

	if got := b.Pick(keys, gateway.StrategyPriority, "ch"); got.ID != "k2" {
		t.Errorf("pick = %q, want k2", got.ID)
	}
}

func TestPriorityStableOnFullTie(t *testing.T) {
	t.Parallel()
	b := New()
	keys := []*gateway.APIKey{
		{ID: "first", Priority: 50},
		{ID: "second", Priority: 50},
	}

	if got := b.Pick(keys, gateway.StrategyPriority, "ch"); got.ID != "first" {
		t.Errorf("pick = %q, want first (stable order)", got.ID)
	}
}

func TestLeastUsed(t *testing.T) {
	t.Parallel()
	b := New()
	keys := []*gateway.APIKey{
		{ID: "busy", TotalRequests: 10},
		{ID: "idle", TotalRequests: 2},
		{ID: "tied", TotalRequests: 2},
	}

	if got := b.Pick(keys, gateway.StrategyLeastUsed, "ch"); got.ID != "idle" {
		t.Errorf("pick = %q, want idle", got.ID)
	}
}
