package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var (
	errFlaky = errors.New("flaky upstream")
	errFatal = errors.New("malformed")
)

func testConfig(size, workers int) Config {
	return Config{
		Name:              "test",
		StartingBatchSize: size,
		MaxWorkers:        workers,
		MaxRetries:        5,
		RetryDelay:        time.Millisecond,
		Cooldown:          time.Hour,
		IsRetriable:       func(err error) bool { return !errors.Is(err, errFatal) },
	}
}

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestExecute_ProcessesAllItems(t *testing.T) {
	e := New(testConfig(10, 3))

	var mu sync.Mutex
	seen := make(map[int]bool)
	err := Execute(context.Background(), e, numbers(95), func(_ context.Context, batch []int) error {
		if len(batch) > 10 {
			t.Errorf("batch of %d exceeds size 10", len(batch))
		}
		mu.Lock()
		defer mu.Unlock()
		for _, v := range batch {
			seen[v] = true
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(seen) != 95 {
		t.Errorf("expected 95 items processed, got %d", len(seen))
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestExecute_ShrinksOnRetriableFailure(t *testing.T) {
	e := New(testConfig(8, 1))

	var failed atomic.Bool
	err := Execute(context.Background(), e, numbers(8), func(_ context.Context, batch []int) error {
		if len(batch) == 8 && failed.CompareAndSwap(false, true) {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := e.BatchSize(); got != 4 {
		t.Errorf("expected batch size 4 after failure, got %d", got)
	}
}

func TestExecute_NeverShrinksBelowOne(t *testing.T) {
	e := New(testConfig(1, 1))

	var calls atomic.Int32
	err := Execute(context.Background(), e, numbers(1), func(context.Context, []int) error {
		if calls.Add(1) == 1 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := e.BatchSize(); got != 1 {
		t.Errorf("expected batch size 1, got %d", got)
	}
}

func TestExecute_PartialBatchDoesNotShrink(t *testing.T) {
	e := New(testConfig(10, 1))

	err := Execute(context.Background(), e, numbers(3), func(_ context.Context, batch []int) error {
		if len(batch) == 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := e.BatchSize(); got != 10 {
		t.Errorf("expected batch size to stay 10, got %d", got)
	}
}

func TestExecute_GrowsBackAfterCooldown(t *testing.T) {
	cfg := testConfig(8, 1)
	cfg.Cooldown = time.Minute
	e := New(cfg)

	now := time.Now()
	e.now = func() time.Time { return now }
	e.size.Store(2)
	e.lastChange.Store(now.UnixNano())

	// Within cooldown: no growth.
	e.onSuccess()
	if got := e.BatchSize(); got != 2 {
		t.Fatalf("expected size 2 during cooldown, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	e.onSuccess()
	if got := e.BatchSize(); got != 4 {
		t.Fatalf("expected size 4 after cooldown, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	e.onSuccess()
	now = now.Add(2 * time.Minute)
	e.onSuccess()
	if got := e.BatchSize(); got != 8 {
		t.Errorf("expected size capped at ceiling 8, got %d", got)
	}
}

func TestExecute_RetriesItemsIndividually(t *testing.T) {
	e := New(testConfig(4, 1))

	var mu sync.Mutex
	attempts := make(map[int]int)
	err := Execute(context.Background(), e, numbers(4), func(_ context.Context, batch []int) error {
		if len(batch) > 1 {
			return errFlaky
		}
		mu.Lock()
		defer mu.Unlock()
		attempts[batch[0]]++
		// Item 2 succeeds on its third single attempt.
		if batch[0] == 2 && attempts[2] < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := map[int]int{0: 1, 1: 1, 2: 3, 3: 1}
	for k, v := range want {
		if attempts[k] != v {
			t.Errorf("item %d: expected %d attempts, got %d", k, v, attempts[k])
		}
	}
}

func TestExecute_ItemExhaustsRetries(t *testing.T) {
	e := New(testConfig(2, 1))

	var single atomic.Int32
	err := Execute(context.Background(), e, numbers(2), func(_ context.Context, batch []int) error {
		if len(batch) == 1 {
			single.Add(1)
		}
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected errFlaky, got %v", err)
	}
	if got := single.Load(); got != 5 {
		t.Errorf("expected 5 single-item attempts before giving up, got %d", got)
	}
}

func TestExecute_FatalErrorFailsFast(t *testing.T) {
	e := New(testConfig(1, 1))

	var calls atomic.Int32
	err := Execute(context.Background(), e, numbers(100), func(context.Context, []int) error {
		calls.Add(1)
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected errFatal, got %v", err)
	}
	if got := calls.Load(); got > 2 {
		t.Errorf("expected submission to stop after the failure, got %d calls", got)
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestExecute_BoundsConcurrency(t *testing.T) {
	e := New(testConfig(1, 3))

	var active, peak atomic.Int32
	err := Execute(context.Background(), e, numbers(30), func(context.Context, []int) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("expected at most 3 concurrent batches, got %d", got)
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	e := New(testConfig(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Execute(ctx, e, numbers(10), func(context.Context, []int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestShutdown_ReportsPending(t *testing.T) {
	e := New(testConfig(1, 1))
	e.pending.Add(1)

	if err := e.Shutdown(); err == nil {
		t.Error("expected error with pending batches")
	}
}
