package arbitrage

import "sync"

// Gate implements the consecutive-block gating map (spec.md §4.3): a plan
// may be dispatched only after the same path_id has been ruled fillable in
// C consecutive blocks; any non-fillable observation, and the observation
// that reaches the threshold (the one that makes the path ready to
// dispatch), reset that path's counter to 0. Single-writer per spec.md §5
// ("the consecutive-arb counter map, single-writer = evaluator"); the mutex
// here only guards against the FRESH/WATCH strategies' own internal worker
// pool calling back concurrently, not against cross-strategy sharing.
type Gate struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
}

// NewGate builds a Gate requiring `threshold` consecutive fillable
// observations before ReadyToDispatch returns true. spec.md §9's Open
// Questions make this a required config value with no compiled-in default.
func NewGate(threshold int) *Gate {
	return &Gate{threshold: threshold, counts: make(map[string]int)}
}

// Observe records one evaluation outcome for pathID and reports whether the
// path has now reached the consecutive threshold (spec.md §8 property test
// #5: "monotonic up to C then resets on the step that triggers a dispatch
// or on any non-fillable observation").
func (g *Gate) Observe(pathID string, fillable bool) (readyToDispatch bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !fillable {
		delete(g.counts, pathID)
		return false
	}
	g.counts[pathID]++
	if g.counts[pathID] >= g.threshold {
		delete(g.counts, pathID)
		return true
	}
	return false
}

// Reset clears every counter — called on pool-universe reload (spec.md
// §4.6: "After reload ... the consecutive-gating map must be reset.").
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts = make(map[string]int)
}

// Count returns the current counter for a path, for observability/tests.
func (g *Gate) Count(pathID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[pathID]
}

// Threshold returns the configured consecutive-observation threshold C,
// used by WATCH's focusPositiveArb narrowing (spec.md §5).
func (g *Gate) Threshold() int {
	return g.threshold
}
