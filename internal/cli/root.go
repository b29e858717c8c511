package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/chainetl/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "chainetl",
	Short: "Blockchain ingestion and reconciliation engine",
	Long: `chainetl streams EVM blocks, transactions, receipts, logs, traces, token and
coin balances and bridge activity into a relational store, and repairs
stored windows invalidated by chain reorganizations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// pipelineFlags are the node and executor settings shared by stream and fix.
type pipelineFlags struct {
	providerURI        string
	debugProviderURI   string
	partitionBatchSize uint64
	exportBatchSize    int
	maxWorkers         int
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.providerURI, "provider-uri", "", "JSON-RPC endpoint of the node")
	cmd.Flags().StringVar(&f.debugProviderURI, "debug-provider-uri", "", "JSON-RPC endpoint serving debug_* methods (default: --provider-uri)")
	cmd.Flags().Uint64Var(&f.partitionBatchSize, "partition-batch-size", 0, "blocks per dispatched partition")
	cmd.Flags().IntVar(&f.exportBatchSize, "export-batch-size", 0, "starting RPC batch size of every job")
	cmd.Flags().IntVar(&f.maxWorkers, "max-workers", 0, "concurrent RPC batches per job")
}

// apply overrides cfg with the flags set on cmd.
func (f *pipelineFlags) apply(cmd *cobra.Command, cfg *config.AppConfig) {
	if cmd.Flags().Changed("provider-uri") {
		// a debug endpoint that only mirrored the old primary follows the new one
		if cfg.Provider.DebugURI == cfg.Provider.URI {
			cfg.Provider.DebugURI = f.providerURI
		}
		cfg.Provider.URI = f.providerURI
	}
	if cmd.Flags().Changed("debug-provider-uri") {
		cfg.Provider.DebugURI = f.debugProviderURI
	}
	if cmd.Flags().Changed("partition-batch-size") {
		cfg.Chain.PartitionBatchSize = f.partitionBatchSize
	}
	if cmd.Flags().Changed("export-batch-size") {
		cfg.Executor.ExportBatchSize = f.exportBatchSize
	}
	if cmd.Flags().Changed("max-workers") {
		cfg.Executor.MaxWorkers = f.maxWorkers
	}
	cfg.ApplyDefaults()
}

// loadConfig reads .env and the config file, then installs the logger.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return nil, err
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg, nil
}
