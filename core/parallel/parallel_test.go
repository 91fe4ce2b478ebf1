package parallel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

func TestParallelizeCoversAllItems(t *testing.T) {
	const items = 1000
	var covered [items]int32

	Parallelize(items, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&covered[i], 1)
		}
	})

	for i, c := range covered {
		if c != 1 {
			t.Fatalf("item %d covered %d times", i, c)
		}
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) { called = true })
	if called {
		t.Error("fn called for zero items")
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		if start != 0 || end != 10 {
			t.Errorf("sequential path got range [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected single sequential call, got %d", calls)
	}
}

func TestForEachIndexed(t *testing.T) {
	results := make([]int, 50)
	err := ForEachIndexed(context.Background(), "test", 50, func(i int) error {
		results[i] = i * i
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range results {
		if v != i*i {
			t.Errorf("results[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestForEachIndexedPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEachIndexed(context.Background(), "test", 20, func(i int) error {
		if i == 7 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestForEachIndexedCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ForEachIndexed(ctx, "fit", 100, func(i int) error { return nil })
	if errors.KindOf(err) != errors.KindCancelled {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindCancelled)
	}
}

func TestCheckCancel(t *testing.T) {
	if err := CheckCancel(context.Background(), "fit"); err != nil {
		t.Errorf("live context reported cancelled: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := CheckCancel(ctx, "fit")
	if errors.KindOf(err) != errors.KindCancelled {
		t.Errorf("KindOf = %v, want %v", errors.KindOf(err), errors.KindCancelled)
	}
}
