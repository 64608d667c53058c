package llm

import (
	"testing"
	"time"
)

func TestStatsSnapshotPercentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		stats.Record(CallGenerate, ms)
	}

	snap := stats.Snapshot().Generate
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 {
		t.Fatalf("expected min=100, got %d", snap.MinMs)
	}
	if snap.MaxMs != 500 {
		t.Fatalf("expected max=500, got %d", snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestStatsKindsAreIndependent(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(CallEmbed, 50)
	stats.Record(CallEmbed, 150)
	stats.Record(CallGenerate, 1000)

	snap := stats.Snapshot()
	if snap.Embed.Count != 2 {
		t.Errorf("expected 2 embed samples, got %d", snap.Embed.Count)
	}
	if snap.Generate.Count != 1 {
		t.Errorf("expected 1 generate sample, got %d", snap.Generate.Count)
	}
	if snap.Generate.MinMs != 1000 {
		t.Errorf("embed samples leaked into generate window: %+v", snap.Generate)
	}
}

func TestStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewStats(10 * time.Millisecond)
	stats.Record(CallEmbed, 100)
	time.Sleep(25 * time.Millisecond)

	if got := stats.Snapshot().Embed.Count; got != 0 {
		t.Fatalf("expected count=0 after prune, got %d", got)
	}

	stats.Record(CallEmbed, 200)
	snap := stats.Snapshot().Embed
	if snap.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Count)
	}
	if snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(CallGenerate, -10)
	snap := stats.Snapshot().Generate
	if snap.Count != 1 {
		t.Fatalf("expected count=1, got %d", snap.Count)
	}
	if snap.MinMs != 0 || snap.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}
