package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestMap_PreservesOrder(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	// Earlier items sleep longer, so completion order is roughly reversed.
	results, errs := Map(context.Background(), items, 4, func(_ context.Context, i int, v int) (int, error) {
		time.Sleep(time.Duration(len(items)-i) * time.Millisecond)
		return v * 10, nil
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if errs[i] != nil {
			t.Fatalf("unexpected error at %d: %v", i, errs[i])
		}
		if r != i*10 {
			t.Errorf("slot %d = %d, want %d", i, r, i*10)
		}
	}
}

func TestMap_PerItemErrors(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	results, errs := Map(context.Background(), items, 2, func(_ context.Context, i int, s string) (string, error) {
		if i%2 == 1 {
			return "", fmt.Errorf("item %d broken", i)
		}
		return s + "!", nil
	})

	for i := range items {
		if i%2 == 1 {
			if errs[i] == nil {
				t.Errorf("expected error at slot %d", i)
			}
			continue
		}
		if errs[i] != nil {
			t.Errorf("unexpected error at slot %d: %v", i, errs[i])
		}
		if results[i] != items[i]+"!" {
			t.Errorf("slot %d = %q, want %q", i, results[i], items[i]+"!")
		}
	}
}

func TestMap_BoundedConcurrency(t *testing.T) {
	const workers = 3
	var current, peak atomic.Int32

	items := make([]int, 30)
	_, errs := Map(context.Background(), items, workers, func(_ context.Context, i int, _ int) (int, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return 0, nil
	})

	for i, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if got := peak.Load(); got > workers {
		t.Errorf("observed %d concurrent workers, want at most %d", got, workers)
	}
}

func TestMap_Empty(t *testing.T) {
	results, errs := Map(context.Background(), []int(nil), 6, func(_ context.Context, i int, v int) (int, error) {
		return v, nil
	})
	if len(results) != 0 || len(errs) != 0 {
		t.Errorf("expected empty slices, got %d results %d errors", len(results), len(errs))
	}
}

func TestMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, errs := Map(ctx, []int{1, 2, 3}, 2, func(ctx context.Context, i int, v int) (int, error) {
		return v, nil
	})
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("slot %d error = %v, want context.Canceled", i, err)
		}
	}
}
