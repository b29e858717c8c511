package throttle

import (
	"time"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// Pacer decides the next block range and sleep interval for a follower that
// trails the chain head by a fixed lag.
type Pacer struct {
	cfg Config
}

// NewPacer creates a pacer, filling zero fields from DefaultConfig.
func NewPacer(cfg Config) *Pacer {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MinPollInterval <= 0 {
		cfg.MinPollInterval = def.MinPollInterval
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = def.MaxPollInterval
	}
	if cfg.LagNormalThreshold == 0 {
		cfg.LagNormalThreshold = def.LagNormalThreshold
	}
	if cfg.LagBurstThreshold == 0 {
		cfg.LagBurstThreshold = def.LagBurstThreshold
	}
	if cfg.MaxSpan == 0 {
		cfg.MaxSpan = def.MaxSpan
	}
	return &Pacer{cfg: cfg}
}

// Interval returns how long to wait before the next round given how many
// blocks are still waiting to be processed.
//
//   - backlog 0: PollInterval (at head, save calls)
//   - backlog < normal: PollInterval / 2
//   - backlog < burst: MinPollInterval * 2
//   - otherwise: MinPollInterval
func (p *Pacer) Interval(backlog uint64) time.Duration {
	var interval time.Duration
	switch {
	case backlog == 0:
		interval = p.cfg.PollInterval
	case backlog < p.cfg.LagNormalThreshold:
		interval = p.cfg.PollInterval / 2
	case backlog < p.cfg.LagBurstThreshold:
		interval = p.cfg.MinPollInterval * 2
	default:
		interval = p.cfg.MinPollInterval
	}
	return min(max(interval, p.cfg.MinPollInterval), p.cfg.MaxPollInterval)
}

// Next returns the range to process after last given the chain head and the
// number of trailing blocks to leave unprocessed. ok is false when nothing
// is eligible yet.
func (p *Pacer) Next(last, head, lag uint64) (rng domain.BlockRange, backlog uint64, ok bool) {
	if head < lag {
		return domain.BlockRange{}, 0, false
	}
	target := head - lag
	if target <= last {
		return domain.BlockRange{}, 0, false
	}

	end := min(target, last+p.cfg.MaxSpan)
	return domain.BlockRange{Start: last + 1, End: end}, target - end, true
}
