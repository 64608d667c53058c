package llm

import (
	"sort"
	"sync"
	"time"
)

// CallKind distinguishes the two Gemini call shapes the service makes.
type CallKind string

const (
	CallEmbed    CallKind = "embed"
	CallGenerate CallKind = "generate"
)

// Stats tracks recent Gemini call latencies within rolling windows, one per
// call kind.
type Stats struct {
	embed    *callWindow
	generate *callWindow
}

func NewStats(maxAge time.Duration) *Stats {
	return &Stats{
		embed:    newCallWindow(maxAge),
		generate: newCallWindow(maxAge),
	}
}

// Record adds one latency sample for kind.
func (s *Stats) Record(kind CallKind, durationMs int64) {
	switch kind {
	case CallEmbed:
		s.embed.record(durationMs)
	case CallGenerate:
		s.generate.record(durationMs)
	}
}

// Snapshot is a point-in-time aggregate of both call kinds.
type Snapshot struct {
	Embed    WindowSnapshot `json:"embed"`
	Generate WindowSnapshot `json:"generate"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Embed:    s.embed.snapshot(),
		Generate: s.generate.snapshot(),
	}
}

// WindowSnapshot aggregates the samples of one call kind.
type WindowSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// callWindow holds the latency samples of one call kind within a rolling
// window.
type callWindow struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func newCallWindow(maxAge time.Duration) *callWindow {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &callWindow{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

func (w *callWindow) record(durationMs int64) {
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.samples = append(w.samples, sample{
		timestamp:  now,
		durationMs: durationMs,
	})
}

func (w *callWindow) snapshot() WindowSnapshot {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	if len(w.samples) == 0 {
		return WindowSnapshot{}
	}

	values := make([]int64, 0, len(w.samples))
	var sum int64
	for _, sm := range w.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return WindowSnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func (w *callWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	writeIdx := 0
	for _, sm := range w.samples {
		if !sm.timestamp.Before(cutoff) {
			w.samples[writeIdx] = sm
			writeIdx++
		}
	}
	w.samples = w.samples[:writeIdx]
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
