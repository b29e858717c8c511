package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainetl/internal/control"
)

var (
	streamPipeline   pipelineFlags
	streamStartBlock uint64
	streamEndBlock   uint64
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Follow the chain and export every block into the sink",
	Long: `Stream dispatches consecutive partitions from the last synced block
towards the chain head (or --end-block) and exports them through the buffer
service. Broken parent links are queued for the fix daemon.`,
	RunE: runStream,
}

func init() {
	streamPipeline.register(streamCmd)
	streamCmd.Flags().Uint64Var(&streamStartBlock, "start-block", 0, "first block when the chain has no checkpoint (default: chain.start_block)")
	streamCmd.Flags().Uint64Var(&streamEndBlock, "end-block", 0, "stop after exporting this block (0 follows the head)")
	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	streamPipeline.apply(cmd, cfg)
	start := cfg.Chain.StartBlock
	if cmd.Flags().Changed("start-block") {
		start = streamStartBlock
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

	streamer := app.Streamer(start, streamEndBlock)
	slog.Info("Stream started", "config", cfgPath, "chain", cfg.Chain.Name, "start", start, "end", streamEndBlock)

	g, gctx := errgroup.WithContext(ctx)
	if srv := app.HealthServer(streamer.Buffer()); srv != nil {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	g.Go(func() error {
		defer stop() // a finished stream also stops the health server
		return streamer.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Stream stopped gracefully")
	return nil
}
