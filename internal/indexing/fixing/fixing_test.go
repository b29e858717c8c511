package fixing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/infra/storage/memory"
)

type fakeNode struct {
	canonical map[uint64]string
}

func (n *fakeNode) hash(b uint64) string {
	if h, ok := n.canonical[b]; ok {
		return h
	}
	return fmt.Sprintf("0xh%d", b)
}

func (n *fakeNode) BlockHashes(_ context.Context, numbers []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(numbers))
	for _, b := range numbers {
		out[b] = n.hash(b)
	}
	return out, nil
}

type fakeDeriver struct {
	node *fakeNode

	mu      sync.Mutex
	calls   []uint64
	failAt  map[uint64]int
	coins   map[uint64]string
	gate    chan struct{}
	started chan uint64
}

func (d *fakeDeriver) Dispatch(ctx context.Context, rng domain.BlockRange) (map[domain.DataKind][]any, error) {
	d.mu.Lock()
	d.calls = append(d.calls, rng.Start)
	fail := d.failAt[rng.Start] > 0
	if fail {
		d.failAt[rng.Start]--
	}
	d.mu.Unlock()

	if d.started != nil {
		d.started <- rng.Start
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("node unavailable")
	}
	out := map[domain.DataKind][]any{
		domain.KindBlock: {domain.Block{Number: rng.Start, Hash: d.node.hash(rng.Start), Miner: "fixed"}},
	}
	if bal, ok := d.coins[rng.Start]; ok {
		out[domain.KindCoinBalance] = []any{domain.CoinBalance{Address: "0xa", BlockNumber: rng.Start, Balance: bal}}
	}
	return out, nil
}

func (d *fakeDeriver) Calls() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

type fixture struct {
	store   *memory.MemoryStorage
	fixes   *memory.FixRecordRepo
	node    *fakeNode
	deriver *fakeDeriver
}

func newFixture(t *testing.T, from, to uint64) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	var blocks []any
	for n := from; n <= to; n++ {
		blocks = append(blocks, domain.Block{Number: n, Hash: fmt.Sprintf("0xh%d", n), Miner: "orig"})
	}
	if err := memory.NewSink(store).Write(context.Background(), domain.BlockRange{Start: from, End: to},
		map[domain.DataKind][]any{domain.KindBlock: blocks}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	node := &fakeNode{canonical: map[uint64]string{}}
	return &fixture{
		store:   store,
		fixes:   memory.NewFixRecordRepo(store),
		node:    node,
		deriver: &fakeDeriver{node: node, failAt: map[uint64]int{}},
	}
}

func (f *fixture) controller(cfg Config) *Controller {
	return NewController(cfg, f.node, memory.NewBlockRepo(f.store), memory.NewSink(f.store), f.fixes, f.deriver)
}

func (f *fixture) miners(t *testing.T) map[uint64]string {
	t.Helper()
	out := map[uint64]string{}
	for _, rec := range f.store.Records(domain.KindBlock) {
		b := rec.(domain.Block)
		out[b.Number] = b.Miner
	}
	return out
}

func (f *fixture) onlyRecord(t *testing.T) domain.FixRecord {
	t.Helper()
	all := f.fixes.All()
	if len(all) != 1 {
		t.Fatalf("fix records = %d, want 1", len(all))
	}
	return all[0]
}

func TestController_RepairsStaleWindow(t *testing.T) {
	f := newFixture(t, 100, 105)
	f.node.canonical[103] = "0xreorg103"
	c := f.controller(Config{})

	if err := c.Fix(context.Background(), 105, 5); err != nil {
		t.Fatalf("Fix: %v", err)
	}

	if got, want := f.deriver.Calls(), []uint64{105, 104, 103, 102, 101}; !slices.Equal(got, want) {
		t.Errorf("re-derived %v, want %v", got, want)
	}
	miners := f.miners(t)
	if miners[100] != "orig" {
		t.Errorf("block 100 must be untouched, miner = %q", miners[100])
	}
	for n := uint64(101); n <= 105; n++ {
		if miners[n] != "fixed" {
			t.Errorf("block %d miner = %q, want fixed", n, miners[n])
		}
	}
	hashes, _ := memory.NewBlockRepo(f.store).BlockHashes(context.Background(), domain.BlockRange{Start: 103, End: 103})
	if hashes[103] != "0xreorg103" {
		t.Errorf("block 103 hash = %q", hashes[103])
	}

	rec := f.onlyRecord(t)
	if rec.JobStatus != domain.FixStatusCompleted || rec.RemainProcess != 0 {
		t.Errorf("record = %+v", rec)
	}
	if rec.LastFixedBlockNumber == nil || *rec.LastFixedBlockNumber != 101 {
		t.Errorf("last fixed = %v, want 101", rec.LastFixedBlockNumber)
	}
}

func TestController_RepairReplacesForkBalances(t *testing.T) {
	f := newFixture(t, 100, 105)
	ctx := context.Background()
	err := memory.NewSink(f.store).Write(ctx, domain.BlockRange{Start: 103, End: 103}, map[domain.DataKind][]any{
		domain.KindCoinBalance: {domain.CoinBalance{Address: "0xa", BlockNumber: 103, Balance: "100"}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.node.canonical[103] = "0xreorg103"
	f.deriver.coins = map[uint64]string{103: "7"}

	if err := f.controller(Config{}).Fix(ctx, 105, 5); err != nil {
		t.Fatalf("Fix: %v", err)
	}

	coins := f.store.Records(domain.KindCoinBalance)
	if len(coins) != 1 {
		t.Fatalf("coin balances = %+v", coins)
	}
	if bal := coins[0].(domain.CoinBalance); bal.Balance != "7" {
		t.Errorf("balance at 103 = %q, want the canonical 7", bal.Balance)
	}
}

func TestController_IntactWindowIsLeftAlone(t *testing.T) {
	f := newFixture(t, 100, 105)
	c := f.controller(Config{})

	if err := c.Fix(context.Background(), 105, 5); err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if calls := f.deriver.Calls(); len(calls) != 0 {
		t.Errorf("intact window re-derived %v", calls)
	}
	if rec := f.onlyRecord(t); rec.JobStatus != domain.FixStatusCompleted {
		t.Errorf("status = %s", rec.JobStatus)
	}
}

func TestController_MissingNodeBlockCountsAsDamage(t *testing.T) {
	f := newFixture(t, 100, 102)
	f.node.canonical[102] = ""
	c := f.controller(Config{})

	if err := c.Fix(context.Background(), 102, 3); err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if got := f.deriver.Calls(); !slices.Equal(got, []uint64{102, 101, 100}) {
		t.Errorf("re-derived %v", got)
	}
}

func TestController_SecondProcessBacksOff(t *testing.T) {
	f := newFixture(t, 100, 105)
	f.node.canonical[105] = "0xreorg105"
	f.deriver.gate = make(chan struct{})
	f.deriver.started = make(chan uint64, 10)

	first := f.controller(Config{})
	second := f.controller(Config{})

	done := make(chan error, 1)
	go func() { done <- first.Fix(context.Background(), 105, 5) }()
	<-f.deriver.started

	err := second.Fix(context.Background(), 110, 3)
	if !errors.Is(err, ErrFixInProgress) {
		t.Fatalf("second Fix err = %v, want ErrFixInProgress", err)
	}
	running := f.onlyRecord(t)
	if running.JobStatus != domain.FixStatusRunning || running.StartBlockNumber != 105 {
		t.Errorf("running record = %+v", running)
	}

	close(f.deriver.gate)
	if err := <-done; err != nil {
		t.Fatalf("first Fix: %v", err)
	}
	if rec := f.onlyRecord(t); rec.JobStatus != domain.FixStatusCompleted {
		t.Errorf("status = %s", rec.JobStatus)
	}
}

func TestController_InProcessCallersQueue(t *testing.T) {
	f := newFixture(t, 100, 105)
	f.node.canonical[105] = "0xreorg105"
	f.deriver.gate = make(chan struct{})
	f.deriver.started = make(chan uint64, 10)
	c := f.controller(Config{})

	first := make(chan error, 1)
	go func() { first <- c.Fix(context.Background(), 105, 1) }()
	<-f.deriver.started

	second := make(chan error, 1)
	go func() { second <- c.Fix(context.Background(), 104, 1) }()
	for c.waiting.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	close(f.deriver.gate)
	if err := <-first; err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second: %v", err)
	}
	all := f.fixes.All()
	if len(all) != 2 {
		t.Fatalf("records = %d, want 2", len(all))
	}
	for _, rec := range all {
		if rec.JobStatus != domain.FixStatusCompleted {
			t.Errorf("record %d status = %s", rec.StartBlockNumber, rec.JobStatus)
		}
	}
}

func TestController_InterruptKeepsProgress(t *testing.T) {
	f := newFixture(t, 100, 105)
	f.node.canonical[103] = "0xreorg103"
	f.deriver.failAt[103] = 1
	c := f.controller(Config{})

	if err := c.Fix(context.Background(), 105, 5); err == nil {
		t.Fatal("expected failure at block 103")
	}
	rec := f.onlyRecord(t)
	if rec.JobStatus != domain.FixStatusInterrupt || rec.RemainProcess != 3 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.LastFixedBlockNumber == nil || *rec.LastFixedBlockNumber != 104 {
		t.Fatalf("last fixed = %v, want 104", rec.LastFixedBlockNumber)
	}

	if err := c.Resume(context.Background(), rec.JobID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got, want := f.deriver.Calls(), []uint64{105, 104, 103, 103, 102, 101}; !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if rec := f.onlyRecord(t); rec.JobStatus != domain.FixStatusCompleted || rec.RemainProcess != 0 {
		t.Errorf("record = %+v", rec)
	}
}

func TestController_RetryResumesSameRecord(t *testing.T) {
	f := newFixture(t, 100, 105)
	f.node.canonical[101] = "0xreorg101"
	f.deriver.failAt[104] = 2
	c := f.controller(Config{RetryErrors: true, RetryDelay: time.Millisecond})

	if err := c.Fix(context.Background(), 105, 5); err != nil {
		t.Fatalf("Fix: %v", err)
	}
	want := []uint64{105, 104, 104, 104, 103, 102, 101}
	if got := f.deriver.Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if rec := f.onlyRecord(t); rec.JobStatus != domain.FixStatusCompleted {
		t.Errorf("status = %s", rec.JobStatus)
	}
}

func TestController_RetryGivesUp(t *testing.T) {
	f := newFixture(t, 100, 101)
	f.node.canonical[101] = "0xreorg101"
	f.deriver.failAt[101] = 100
	c := f.controller(Config{RetryErrors: true, RetryDelay: time.Millisecond, MaxRetries: 2})

	if err := c.Fix(context.Background(), 101, 2); err == nil {
		t.Fatal("expected failure")
	}
	if got := len(f.deriver.Calls()); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if rec := f.onlyRecord(t); rec.JobStatus != domain.FixStatusInterrupt {
		t.Errorf("status = %s", rec.JobStatus)
	}
}

func TestController_SelfSchedulesPending(t *testing.T) {
	f := newFixture(t, 100, 105)
	f.node.canonical[102] = "0xreorg102"
	c := f.controller(Config{})

	pending, err := c.Submit(context.Background(), 102, 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := c.Fix(context.Background(), 105, 2); err != nil {
		t.Fatalf("Fix: %v", err)
	}

	if got := f.deriver.Calls(); !slices.Equal(got, []uint64{102, 101}) {
		t.Errorf("calls = %v", got)
	}
	rec, err := f.fixes.Get(context.Background(), pending.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.JobStatus != domain.FixStatusCompleted {
		t.Errorf("pending record status = %s", rec.JobStatus)
	}
}

func TestController_RunPendingDrainsOldestFirst(t *testing.T) {
	f := newFixture(t, 100, 110)
	f.node.canonical[101] = "0xreorg101"
	f.node.canonical[108] = "0xreorg108"
	c := f.controller(Config{})

	if _, err := c.Submit(context.Background(), 108, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Submit(context.Background(), 101, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending: %v", err)
	}
	if got := f.deriver.Calls(); len(got) != 2 {
		t.Fatalf("calls = %v", got)
	}
	for _, rec := range f.fixes.All() {
		if rec.JobStatus != domain.FixStatusCompleted {
			t.Errorf("record %d status = %s", rec.StartBlockNumber, rec.JobStatus)
		}
	}
}
