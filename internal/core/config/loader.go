package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. A missing file yields the
// defaults so that flags alone can drive a run.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *AppConfig) ApplyDefaults() {
	if c.Chain.Name == "" {
		c.Chain.Name = "ethereum"
	}
	if c.Chain.PartitionBatchSize == 0 {
		c.Chain.PartitionBatchSize = 100
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = 2 * time.Second
	}
	if c.Chain.ReorgDepth == 0 {
		c.Chain.ReorgDepth = 100
	}

	if c.Provider.DebugURI == "" {
		c.Provider.DebugURI = c.Provider.URI
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 60 * time.Second
	}

	if c.Executor.ExportBatchSize == 0 {
		c.Executor.ExportBatchSize = 100
	}
	if c.Executor.MaxWorkers == 0 {
		c.Executor.MaxWorkers = 5
	}

	if c.Buffer.BlockSize == 0 {
		c.Buffer.BlockSize = 100
	}
	if c.Buffer.Linger == 0 {
		c.Buffer.Linger = time.Minute
	}
	if c.Buffer.ExportWorkers == 0 {
		c.Buffer.ExportWorkers = 2
	}
	if c.Buffer.CrashInstantly == nil {
		crash := true
		c.Buffer.CrashInstantly = &crash
	}

	if c.Fixing.RetryDelay == 0 {
		c.Fixing.RetryDelay = 5 * time.Second
	}
	if c.Fixing.PollInterval == 0 {
		c.Fixing.PollInterval = 5 * time.Second
	}

	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 20
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports settings that cannot work.
func (c *AppConfig) Validate() error {
	if c.Provider.URI == "" {
		return errors.New("provider uri is required")
	}
	for i, d := range c.Bridge.Decoders {
		if d.Name == "" {
			return fmt.Errorf("bridge decoder %d: name is required", i)
		}
		if d.Layer != "l1" && d.Layer != "l2" {
			return fmt.Errorf("bridge decoder %s: layer must be l1 or l2, got %q", d.Name, d.Layer)
		}
	}
	return nil
}
