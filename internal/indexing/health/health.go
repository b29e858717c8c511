// Package health provides pipeline health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// MissionHealth contains health metrics for one mission.
type MissionHealth struct {
	Mission       string       `json:"mission"`
	Status        SystemStatus `json:"status"`
	LastSynced    uint64       `json:"last_synced"`
	ChainHead     uint64       `json:"chain_head"`
	BlockLag      uint64       `json:"block_lag"`
	PendingBlocks uint64       `json:"pending_blocks"`
	PendingFix    string       `json:"pending_fix,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// Thresholds decides when lag and backlog degrade a mission.
type Thresholds struct {
	LagDegraded     uint64        // default: 10
	LagCritical     uint64        // default: 100
	PendingCritical uint64        // buffered blocks, default: 10000
	CacheFor        time.Duration // default: 10s
}

func (t Thresholds) withDefaults() Thresholds {
	if t.LagDegraded == 0 {
		t.LagDegraded = 10
	}
	if t.LagCritical == 0 {
		t.LagCritical = 100
	}
	if t.PendingCritical == 0 {
		t.PendingCritical = 10000
	}
	if t.CacheFor == 0 {
		t.CacheFor = 10 * time.Second
	}
	return t
}
