package dispatcher

import (
	"github.com/vietddude/chainetl/internal/indexing/bridge"
	"github.com/vietddude/chainetl/internal/indexing/executor"
	"github.com/vietddude/chainetl/internal/indexing/job"
	"github.com/vietddude/chainetl/internal/indexing/jobs"
	"github.com/vietddude/chainetl/internal/infra/chain"
)

// Options selects the collaborators of the default job chain.
type Options struct {
	// Node serves blocks, receipts, calls and balances.
	Node chain.Node
	// DebugNode serves traces. Defaults to Node.
	DebugNode chain.Node
	// NewExecutor builds the executor of one job. Defaults to
	// executor.DefaultConfig per job name.
	NewExecutor func(name string) *executor.BatchExecutor
	// Decoders, when non-empty, append the bridge job.
	Decoders []bridge.Decoder
}

// DefaultJobs returns the stream order: blocks, receipts, tokens, token
// balances, traces, contracts, coin balances and optionally bridge records.
func DefaultJobs(opts Options) []job.Job {
	debug := opts.DebugNode
	if debug == nil {
		debug = opts.Node
	}
	newExec := opts.NewExecutor
	if newExec == nil {
		newExec = func(name string) *executor.BatchExecutor {
			return executor.New(executor.DefaultConfig(name))
		}
	}

	out := []job.Job{
		jobs.NewExportBlocksJob(opts.Node, newExec("export_blocks")),
		jobs.NewExportReceiptsJob(opts.Node, newExec("export_receipts")),
		jobs.NewExportTokensJob(opts.Node, newExec("export_tokens")),
		jobs.NewExportTokenBalancesJob(opts.Node, newExec("export_token_balances")),
		jobs.NewExportTracesJob(debug, newExec("export_traces")),
		jobs.NewExtractContractsJob(),
		jobs.NewExportCoinBalancesJob(opts.Node, newExec("export_coin_balances")),
	}
	if len(opts.Decoders) > 0 {
		out = append(out, jobs.NewBridgeJob(opts.Decoders...))
	}
	return out
}
