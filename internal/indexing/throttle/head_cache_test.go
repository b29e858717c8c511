package throttle

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeHead struct {
	head  uint64
	err   error
	calls int
}

func (f *fakeHead) LatestBlock(context.Context) (uint64, error) {
	f.calls++
	return f.head, f.err
}

func TestHeadCache_CachesResult(t *testing.T) {
	src := &fakeHead{head: 1000}
	cache := NewHeadCache(src, 3*time.Second)
	ctx := context.Background()

	for range 3 {
		head, err := cache.LatestBlock(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if head != 1000 {
			t.Errorf("expected 1000, got %d", head)
		}
	}
	if src.calls != 1 {
		t.Errorf("expected 1 source call, got %d", src.calls)
	}
}

func TestHeadCache_ExpiresAfterTTL(t *testing.T) {
	src := &fakeHead{head: 1000}
	cache := NewHeadCache(src, 50*time.Millisecond)
	ctx := context.Background()

	if _, err := cache.LatestBlock(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	src.head = 1001

	head, err := cache.LatestBlock(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head != 1001 {
		t.Errorf("expected fresh value 1001, got %d", head)
	}
	if src.calls != 2 {
		t.Errorf("expected 2 source calls, got %d", src.calls)
	}
}

func TestHeadCache_Invalidate(t *testing.T) {
	src := &fakeHead{head: 1000}
	cache := NewHeadCache(src, time.Minute)
	ctx := context.Background()

	if _, err := cache.LatestBlock(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cache.Invalidate()
	src.head = 1001

	head, _ := cache.LatestBlock(ctx)
	if head != 1001 {
		t.Errorf("expected 1001 after invalidate, got %d", head)
	}
}

func TestHeadCache_ErrorNotCached(t *testing.T) {
	src := &fakeHead{err: errors.New("down")}
	cache := NewHeadCache(src, time.Minute)
	ctx := context.Background()

	if _, err := cache.LatestBlock(ctx); err == nil {
		t.Fatal("expected error")
	}
	src.err = nil
	src.head = 7

	head, err := cache.LatestBlock(ctx)
	if err != nil || head != 7 {
		t.Errorf("expected 7, got %d (%v)", head, err)
	}
}
