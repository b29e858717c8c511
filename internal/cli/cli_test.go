package cli

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainetl/internal/core/config"
)

func TestParseTimeRange(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		start    string
		end      string
		wantFrom time.Time
		wantTo   time.Time
		wantErr  bool
	}{
		{
			name:     "explicit bounds",
			start:    "2024-01-01T00:00:00Z",
			end:      "2024-01-02T00:00:00Z",
			wantFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "open end is now",
			start:    "2024-02-01T00:00:00Z",
			wantFrom: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   now,
		},
		{name: "bad start", start: "yesterday", wantErr: true},
		{name: "bad end", start: "2024-01-01T00:00:00Z", end: "tomorrow", wantErr: true},
		{name: "inverted", start: "2024-01-02T00:00:00Z", end: "2024-01-01T00:00:00Z", wantErr: true},
		{name: "empty", start: "2024-01-01T00:00:00Z", end: "2024-01-01T00:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := parseTimeRange(tt.start, tt.end, now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !from.Equal(tt.wantFrom) || !to.Equal(tt.wantTo) {
				t.Errorf("got [%s, %s), want [%s, %s)", from, to, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func newFlagCmd(args ...string) (*cobra.Command, *pipelineFlags) {
	var f pipelineFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		panic(err)
	}
	return cmd, &f
}

func TestPipelineFlags_Apply(t *testing.T) {
	t.Run("flags override file", func(t *testing.T) {
		cfg := &config.AppConfig{}
		cfg.ApplyDefaults()
		cmd, f := newFlagCmd("--provider-uri", "http://node:8545", "--partition-batch-size", "10",
			"--export-batch-size", "25", "--max-workers", "3")

		f.apply(cmd, cfg)

		if cfg.Provider.URI != "http://node:8545" || cfg.Provider.DebugURI != "http://node:8545" {
			t.Errorf("provider = %+v", cfg.Provider)
		}
		if cfg.Chain.PartitionBatchSize != 10 || cfg.Executor.ExportBatchSize != 25 || cfg.Executor.MaxWorkers != 3 {
			t.Errorf("sizes = %d/%d/%d", cfg.Chain.PartitionBatchSize, cfg.Executor.ExportBatchSize, cfg.Executor.MaxWorkers)
		}
	})

	t.Run("separate debug endpoint survives", func(t *testing.T) {
		cfg := &config.AppConfig{Provider: config.ProviderConfig{URI: "http://a", DebugURI: "http://archive"}}
		cfg.ApplyDefaults()
		cmd, f := newFlagCmd("--provider-uri", "http://b")

		f.apply(cmd, cfg)

		if cfg.Provider.URI != "http://b" || cfg.Provider.DebugURI != "http://archive" {
			t.Errorf("provider = %+v", cfg.Provider)
		}
	})

	t.Run("unset flags keep file values", func(t *testing.T) {
		cfg := &config.AppConfig{Executor: config.ExecutorConfig{MaxWorkers: 8}}
		cfg.ApplyDefaults()
		cmd, f := newFlagCmd("--debug-provider-uri", "http://trace")

		f.apply(cmd, cfg)

		if cfg.Executor.MaxWorkers != 8 {
			t.Errorf("max workers = %d, want 8", cfg.Executor.MaxWorkers)
		}
		if cfg.Provider.DebugURI != "http://trace" {
			t.Errorf("debug uri = %q", cfg.Provider.DebugURI)
		}
	})
}
