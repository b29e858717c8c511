package throttle

import (
	"testing"
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
)

func TestPacer_Interval(t *testing.T) {
	p := NewPacer(Config{
		PollInterval:       12 * time.Second,
		MinPollInterval:    500 * time.Millisecond,
		MaxPollInterval:    60 * time.Second,
		LagNormalThreshold: 5,
		LagBurstThreshold:  50,
	})

	tests := []struct {
		name    string
		backlog uint64
		want    time.Duration
	}{
		{"at head", 0, 12 * time.Second},
		{"slightly behind", 3, 6 * time.Second},
		{"catching up", 20, time.Second},
		{"far behind", 100, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Interval(tt.backlog); got != tt.want {
				t.Errorf("Interval(%d) = %v, want %v", tt.backlog, got, tt.want)
			}
		})
	}
}

func TestPacer_Next(t *testing.T) {
	p := NewPacer(Config{MaxSpan: 10})

	tests := []struct {
		name        string
		last, head  uint64
		lag         uint64
		wantOK      bool
		wantRange   domain.BlockRange
		wantBacklog uint64
	}{
		{"head below lag", 0, 3, 5, false, domain.BlockRange{}, 0},
		{"caught up", 100, 105, 5, false, domain.BlockRange{}, 0},
		{"small step", 100, 108, 5, true, domain.BlockRange{Start: 101, End: 103}, 0},
		{"capped span", 100, 200, 0, true, domain.BlockRange{Start: 101, End: 110}, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, backlog, ok := p.Next(tt.last, tt.head, tt.lag)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if rng != tt.wantRange {
				t.Errorf("range = %v, want %v", rng, tt.wantRange)
			}
			if backlog != tt.wantBacklog {
				t.Errorf("backlog = %d, want %d", backlog, tt.wantBacklog)
			}
		})
	}
}
