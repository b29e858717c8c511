package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainetl/internal/control"
	"github.com/vietddude/chainetl/internal/core/cursor"
	"github.com/vietddude/chainetl/internal/infra/chain/evm"
	redisclient "github.com/vietddude/chainetl/internal/infra/redis"
	"github.com/vietddude/chainetl/internal/infra/rpc/provider"
	"github.com/vietddude/chainetl/internal/infra/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the checkpoint, chain lag and oldest pending fix",
	RunE:  runStatus,
}

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [block_height]",
	Short: "Move the checkpoint of the configured chain to a given block",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetCursor,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCursorCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	stores, err := control.OpenStores(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = stores.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tLAST SYNCED\tLAST STORED\tHEAD\tLAG\tQUEUED\tPENDING FIX")

	last, err := stores.Cursors().Get(ctx, cfg.Chain.Name)
	synced := fmt.Sprint(last)
	if errors.Is(err, cursor.ErrCursorNotFound) {
		synced = "-"
	} else if err != nil {
		return err
	}

	stored := "-"
	if b, err := stores.Blocks().GetLatest(ctx); err == nil {
		stored = fmt.Sprint(b.Number)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	queued := "-"
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
		}()
		n, err := redisclient.NewQueue(client).Len(ctx)
		if err != nil {
			return err
		}
		queued = fmt.Sprint(n)
	}

	head, lag := "-", "-"
	if cfg.Provider.URI != "" {
		node := evm.NewClient(provider.NewHTTPProvider("primary", cfg.Provider.URI, cfg.Provider.Timeout), nil)
		if n, err := node.LatestBlock(ctx); err == nil {
			head = fmt.Sprint(n)
			if synced != "-" {
				lag = fmt.Sprint(int64(n) - int64(last))
			}
		}
	}

	pending := "-"
	rec, err := stores.Fixes().OldestPending(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		pending = fmt.Sprintf("%s (%s, start %d, remain %d)", rec.JobID, rec.JobStatus, rec.StartBlockNumber, rec.RemainProcess)
	}

	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", cfg.Chain.Name, synced, stored, head, lag, queued, pending)
	return w.Flush()
}

func runResetCursor(cmd *cobra.Command, args []string) error {
	var height uint64
	if _, err := fmt.Sscan(args[0], &height); err != nil {
		return fmt.Errorf("invalid block height: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	stores, err := control.OpenStores(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = stores.Close()
	}()

	if err := stores.Cursors().Reset(ctx, cfg.Chain.Name, height); err != nil {
		return err
	}
	fmt.Printf("Successfully reset cursor for %s to block %d\n", cfg.Chain.Name, height)
	return nil
}
