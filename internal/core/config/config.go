package config

import (
	"time"

	redisclient "github.com/vietddude/chainetl/internal/infra/redis"
	"github.com/vietddude/chainetl/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chain    ChainConfig        `yaml:"chain"`
	Provider ProviderConfig     `yaml:"provider"`
	Executor ExecutorConfig     `yaml:"executor"`
	Buffer   BufferConfig       `yaml:"buffer"`
	Fixing   FixingConfig       `yaml:"fixing"`
	Bridge   BridgeConfig       `yaml:"bridge"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig holds settings for the chain being indexed.
type ChainConfig struct {
	Name               string        `yaml:"name"`
	StartBlock         uint64        `yaml:"start_block"`
	PartitionBatchSize uint64        `yaml:"partition_batch_size"`
	Confirmations      uint64        `yaml:"confirmations"` // blocks left behind the head
	PollInterval       time.Duration `yaml:"poll_interval"`
	ReorgDepth         uint64        `yaml:"reorg_depth"`
}

// ProviderConfig holds the JSON-RPC endpoints.
type ProviderConfig struct {
	URI      string        `yaml:"uri"`
	DebugURI string        `yaml:"debug_uri"` // defaults to URI
	Timeout  time.Duration `yaml:"timeout"`
}

// ExecutorConfig holds the adaptive batch executor settings shared by jobs.
type ExecutorConfig struct {
	ExportBatchSize int           `yaml:"export_batch_size"`
	MaxWorkers      int           `yaml:"max_workers"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	Cooldown        time.Duration `yaml:"cooldown"`
}

// BufferConfig holds buffer service settings.
type BufferConfig struct {
	BlockSize      uint64        `yaml:"block_size"`
	Linger         time.Duration `yaml:"linger"`
	ExportWorkers  int           `yaml:"export_workers"`
	CrashInstantly *bool         `yaml:"crash_instantly"` // default: true
}

// FixingConfig holds fixing controller settings.
type FixingConfig struct {
	RetryErrors  bool          `yaml:"retry_errors"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxRetries   int           `yaml:"max_retries"`
	PollInterval time.Duration `yaml:"poll_interval"` // daemon queue poll
}

// BridgeConfig lists the bridge decoders to run.
type BridgeConfig struct {
	Decoders []BridgeDecoderConfig `yaml:"decoders"`
}

// BridgeDecoderConfig configures one registered decoder.
type BridgeDecoderConfig struct {
	Name      string            `yaml:"name"`  // arbitrum, optimism, zkevm, linea, mantle_da
	Layer     string            `yaml:"layer"` // l1, l2
	ChainID   uint64            `yaml:"chain_id"`
	NetworkID uint32            `yaml:"network_id"`
	Contracts map[string]string `yaml:"contracts"`
}
