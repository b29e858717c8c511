package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainetl/internal/control"
	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/fixing"
)

var (
	fixPipeline pipelineFlags
	fixOpts     struct {
		startTime   string
		blockRange  string
		endTime     string
		block       uint64
		remains     uint64
		resume      string
		retryErrors bool
		daemon      bool
	}
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Re-derive stored blocks that no longer match the chain",
	Long: `Fix compares stored block hashes with the node and re-derives every
block of a damaged window, walking backward from its highest block.

Exactly one of --start-time, --range, --block, --resume or --daemon selects
the work:
  --start-time/--end-time  blocks whose timestamps fall in [start, end)
  --range                  an inclusive block range such as 19000000-19000500
  --block/--remains        the window of --remains blocks ending at --block
  --resume                 an interrupted or submitted FixRecord
  --daemon                 stored FixRecords and queued suspect windows, forever

Only one repair may run against a sink at a time. When another process owns
the running FixRecord the command logs a warning and exits cleanly.`,
	RunE: runFix,
}

func init() {
	fixPipeline.register(fixCmd)
	f := fixCmd.Flags()
	f.StringVar(&fixOpts.startTime, "start-time", "", "start of the time range (RFC3339)")
	f.StringVar(&fixOpts.endTime, "end-time", "", "end of the time range, exclusive (RFC3339, default: now)")
	f.StringVar(&fixOpts.blockRange, "range", "", "inclusive block range low-high, repaired in --partition-batch-size windows")
	f.Uint64Var(&fixOpts.block, "block", 0, "highest block of an explicit window")
	f.Uint64Var(&fixOpts.remains, "remains", 1, "window size for --block")
	f.StringVar(&fixOpts.resume, "resume", "", "job id of a FixRecord to resume")
	f.BoolVar(&fixOpts.retryErrors, "retry-errors", false, "retry a failed window every few seconds instead of exiting")
	f.BoolVar(&fixOpts.daemon, "daemon", false, "keep draining pending fixes and the suspect queue")
	fixCmd.MarkFlagsMutuallyExclusive("start-time", "range", "block", "resume", "daemon")
	fixCmd.MarkFlagsOneRequired("start-time", "range", "block", "resume", "daemon")
	rootCmd.AddCommand(fixCmd)
}

func runFix(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fixPipeline.apply(cmd, cfg)
	if cmd.Flags().Changed("retry-errors") {
		cfg.Fixing.RetryErrors = fixOpts.retryErrors
	}

	var from, to time.Time
	if fixOpts.startTime != "" {
		if from, to, err = parseTimeRange(fixOpts.startTime, fixOpts.endTime, time.Now()); err != nil {
			return err
		}
	}
	var rng domain.BlockRange
	if fixOpts.blockRange != "" {
		if rng, err = domain.ParseBlockRange(fixOpts.blockRange); err != nil {
			return fmt.Errorf("invalid --range: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()
	app.StartMetrics(ctx)
	fixer := app.Fixer()

	switch {
	case fixOpts.daemon:
		err = fixer.Daemon(ctx)
	case fixOpts.resume != "":
		err = app.Controller().Resume(ctx, fixOpts.resume)
	case fixOpts.startTime != "":
		err = fixer.FixTimeRange(ctx, from, to)
	case fixOpts.blockRange != "":
		err = fixer.FixRange(ctx, rng)
	default:
		err = app.Controller().Fix(ctx, fixOpts.block, fixOpts.remains)
	}

	if errors.Is(err, fixing.ErrFixInProgress) {
		slog.Warn("Another process is fixing this sink, exiting", "error", err)
		return nil
	}
	return err
}

// parseTimeRange parses RFC3339 bounds. An empty end means now.
func parseTimeRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start-time: %w", err)
	}
	to := now
	if end != "" {
		if to, err = time.Parse(time.RFC3339, end); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end-time: %w", err)
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--start-time %s is not before --end-time %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}
