package domain

import "time"

type FixStatus string

const (
	FixStatusSubmitted FixStatus = "submitted"
	FixStatusRunning   FixStatus = "running"
	FixStatusInterrupt FixStatus = "interrupt"
	FixStatusCompleted FixStatus = "completed"
)

// FixRecord tracks one reorg repair job. At most one record may be running at
// any time across all processes sharing the sink.
type FixRecord struct {
	JobID                string    `db:"job_id"`
	StartBlockNumber     uint64    `db:"start_block_number"`
	LastFixedBlockNumber *uint64   `db:"last_fixed_block_number"`
	RemainProcess        uint64    `db:"remain_process"`
	JobStatus            FixStatus `db:"job_status"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// NextBlock returns the next block to walk, going backward from the start.
func (r *FixRecord) NextBlock() uint64 {
	if r.LastFixedBlockNumber == nil {
		return r.StartBlockNumber
	}
	if *r.LastFixedBlockNumber == 0 {
		return 0
	}
	return *r.LastFixedBlockNumber - 1
}

// Window returns the block range still to be repaired.
func (r *FixRecord) Window() (BlockRange, bool) {
	if r.RemainProcess == 0 {
		return BlockRange{}, false
	}
	high := r.NextBlock()
	low := uint64(0)
	if high+1 > r.RemainProcess {
		low = high + 1 - r.RemainProcess
	}
	return BlockRange{Start: low, End: high}, true
}

// SuspectRange is a window that may hold reorged blocks, handed from the
// stream loop to the fixing controller. It covers Remains blocks ending at
// Start.
type SuspectRange struct {
	Start   uint64 `json:"start"`
	Remains uint64 `json:"remains"`
}

// Range returns the blocks covered by the window.
func (s SuspectRange) Range() BlockRange {
	return BlockRange{Start: s.Start + 1 - s.Remains, End: s.Start}
}

// SuspectOf returns the window covering r.
func SuspectOf(r BlockRange) SuspectRange {
	return SuspectRange{Start: r.End, Remains: r.Size()}
}
