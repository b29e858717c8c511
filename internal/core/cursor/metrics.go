package cursor

import (
	"time"
)

// blockRecord holds timing data for a checkpoint advance.
type blockRecord struct {
	BlockNumber uint64
	ProcessedAt time.Time
}

// Metrics holds cursor throughput data.
type Metrics struct {
	BlocksPerSecond  float64
	AverageBlockTime time.Duration
	LastBlock        uint64
}

// MetricsCollector tracks checkpoint advances over a sliding window.
type MetricsCollector struct {
	windowSize int           // number of advances to track
	blockTimes []blockRecord // ring buffer of advances
}

// RecordBlock records that the checkpoint reached blockNumber.
func (mc *MetricsCollector) RecordBlock(blockNumber uint64, processedAt time.Time) {
	record := blockRecord{
		BlockNumber: blockNumber,
		ProcessedAt: processedAt,
	}

	if len(mc.blockTimes) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.blockTimes, mc.blockTimes[1:])
		mc.blockTimes[len(mc.blockTimes)-1] = record
	} else {
		mc.blockTimes = append(mc.blockTimes, record)
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	var m Metrics
	if len(mc.blockTimes) == 0 {
		return m
	}

	first := mc.blockTimes[0]
	last := mc.blockTimes[len(mc.blockTimes)-1]
	m.LastBlock = last.BlockNumber

	// Advances cover whole chunks, so count blocks rather than records
	duration := last.ProcessedAt.Sub(first.ProcessedAt)
	if duration > 0 && last.BlockNumber > first.BlockNumber {
		blockCount := float64(last.BlockNumber - first.BlockNumber)
		m.BlocksPerSecond = blockCount / duration.Seconds()
		m.AverageBlockTime = time.Duration(float64(duration) / blockCount)
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.blockTimes = mc.blockTimes[:0]
}
