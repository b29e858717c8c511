package throttle

import "time"

// Config controls how fast the stream loop polls the chain head and how many
// blocks it takes per round.
type Config struct {
	// PollInterval is used once the stream has caught up with the head.
	PollInterval time.Duration
	// MinPollInterval is the fastest rate while catching up (default: 200ms).
	MinPollInterval time.Duration
	// MaxPollInterval caps the interval (default: 60s).
	MaxPollInterval time.Duration

	// HeadCacheTTL is how long a fetched head number is reused (default: 2s).
	HeadCacheTTL time.Duration

	// Lag thresholds in blocks.
	LagNormalThreshold uint64 // below this = half interval (default: 5)
	LagBurstThreshold  uint64 // at or above this = min interval (default: 100)

	// MaxSpan caps the number of blocks handed to the dispatcher per round.
	MaxSpan uint64
}

// DefaultConfig returns defaults suited to a chain with ~2s blocks.
func DefaultConfig() Config {
	return Config{
		PollInterval:       2 * time.Second,
		MinPollInterval:    200 * time.Millisecond,
		MaxPollInterval:    60 * time.Second,
		HeadCacheTTL:       2 * time.Second,
		LagNormalThreshold: 5,
		LagBurstThreshold:  100,
		MaxSpan:            100,
	}
}
