// Package control wires the extraction pipeline, storage and repair loop
// into runnable services.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/chainetl/internal/core/config"
	"github.com/vietddude/chainetl/internal/core/domain"
	"github.com/vietddude/chainetl/internal/indexing/bridge"
	"github.com/vietddude/chainetl/internal/indexing/buffer"
	"github.com/vietddude/chainetl/internal/indexing/dispatcher"
	"github.com/vietddude/chainetl/internal/indexing/executor"
	"github.com/vietddude/chainetl/internal/indexing/fixing"
	"github.com/vietddude/chainetl/internal/indexing/health"
	"github.com/vietddude/chainetl/internal/indexing/reorg"
	"github.com/vietddude/chainetl/internal/indexing/throttle"
	"github.com/vietddude/chainetl/internal/infra/chain/evm"
	redisclient "github.com/vietddude/chainetl/internal/infra/redis"
	"github.com/vietddude/chainetl/internal/infra/rpc/provider"
)

// App holds the long-lived dependencies shared by the stream and fix loops.
type App struct {
	cfg *config.AppConfig

	*Stores

	node       *evm.Client
	dispatcher *dispatcher.Dispatcher
	controller *fixing.Controller
	executors  []*executor.BatchExecutor

	redis *redisclient.Client
	queue *redisclient.Queue

	log *slog.Logger
}

// NewApp connects storage, the node and optional Redis, and builds the
// dispatcher and fixing controller.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: slog.Default().With("component", "app")}

	// 1. Initialize Storage
	stores, err := OpenStores(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Stores = stores

	// 2. Initialize RPC
	primary := provider.NewHTTPProvider("primary", cfg.Provider.URI, cfg.Provider.Timeout)
	var debug provider.Provider = primary
	if cfg.Provider.DebugURI != cfg.Provider.URI {
		debug = provider.NewHTTPProvider("debug", cfg.Provider.DebugURI, cfg.Provider.Timeout)
	}
	a.node = evm.NewClient(primary, debug)

	// 3. Build the job chain
	decoders, err := buildDecoders(cfg.Bridge)
	if err != nil {
		a.Close()
		return nil, err
	}
	d, err := dispatcher.New(dispatcher.DefaultJobs(dispatcher.Options{
		Node:        a.node,
		NewExecutor: a.newExecutor,
		Decoders:    decoders,
	})...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = d

	a.controller = fixing.NewController(fixing.Config{
		RetryErrors: cfg.Fixing.RetryErrors,
		RetryDelay:  cfg.Fixing.RetryDelay,
		MaxRetries:  cfg.Fixing.MaxRetries,
	}, a.node, a.blocks, a.sink, a.fixes, a.dispatcher)

	// 4. Initialize Redis
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		a.queue = redisclient.NewQueue(client)
	}

	return a, nil
}

func (a *App) newExecutor(name string) *executor.BatchExecutor {
	e := executor.New(executor.Config{
		Name:              name,
		StartingBatchSize: a.cfg.Executor.ExportBatchSize,
		MaxWorkers:        a.cfg.Executor.MaxWorkers,
		MaxRetries:        a.cfg.Executor.MaxRetries,
		RetryDelay:        a.cfg.Executor.RetryDelay,
		Cooldown:          a.cfg.Executor.Cooldown,
	})
	a.executors = append(a.executors, e)
	return e
}

func buildDecoders(cfg config.BridgeConfig) ([]bridge.Decoder, error) {
	registry := bridge.NewRegistry()
	var out []bridge.Decoder
	for _, d := range cfg.Decoders {
		dec, err := registry.Build(d.Name, bridge.Params{
			Layer:     bridge.Layer(d.Layer),
			ChainID:   d.ChainID,
			NetworkID: d.NetworkID,
			Contracts: d.Contracts,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, dec)
	}
	return out, nil
}

// Queue returns where the stream loop sends suspect windows: Redis when
// configured, else straight into the FixRecord table.
func (a *App) Queue() reorg.Queue {
	if a.queue != nil {
		return a.queue
	}
	return SubmitQueue{Controller: a.controller}
}

// Streamer builds the follow loop for the configured chain.
func (a *App) Streamer(start, end uint64) *Streamer {
	buf := buffer.New(buffer.Config{
		BlockSize:      a.cfg.Buffer.BlockSize,
		Linger:         a.cfg.Buffer.Linger,
		ExportWorkers:  a.cfg.Buffer.ExportWorkers,
		CrashInstantly: *a.cfg.Buffer.CrashInstantly,
	}, a.sink)

	return NewStreamer(StreamConfig{
		Mission:            a.cfg.Chain.Name,
		StartBlock:         start,
		EndBlock:           end,
		PartitionBatchSize: a.cfg.Chain.PartitionBatchSize,
		Confirmations:      a.cfg.Chain.Confirmations,
		PollInterval:       a.cfg.Chain.PollInterval,
	},
		a.node,
		a.dispatcher,
		buf,
		a.Cursors(),
		reorg.NewDetector(reorg.Config{Depth: a.cfg.Chain.ReorgDepth}, a.blocks),
		reorg.NewHandler(a.Queue()),
	)
}

// Fixer builds the repair entry points.
func (a *App) Fixer() *Fixer {
	var queue SuspectSource
	if a.queue != nil {
		queue = a.queue
	}
	return NewFixer(FixerConfig{
		PartitionBatchSize: a.cfg.Chain.PartitionBatchSize,
		PollInterval:       a.cfg.Fixing.PollInterval,
	}, a.controller, a.blocks, queue)
}

// HealthServer builds the /health and /metrics server, or nil when no port
// is configured. backlog may be nil.
func (a *App) HealthServer(backlog health.BacklogSource) *health.Server {
	if a.cfg.Server.Port == 0 {
		return nil
	}
	monitor := health.NewMonitor(
		health.Thresholds{},
		[]string{a.cfg.Chain.Name},
		throttle.NewHeadCache(a.node, throttle.DefaultConfig().HeadCacheTTL),
		a.Cursors(),
		backlog,
		a.fixes,
	)
	return health.NewServer(monitor, fmt.Sprintf(":%d", a.cfg.Server.Port))
}

// Controller returns the fixing controller.
func (a *App) Controller() *fixing.Controller {
	return a.controller
}

// LatestBlock returns the node's chain head.
func (a *App) LatestBlock(ctx context.Context) (uint64, error) {
	return a.node.LatestBlock(ctx)
}

// Close releases connections and checks that no executor batch leaked.
func (a *App) Close() error {
	var errs []error
	for _, e := range a.executors {
		errs = append(errs, e.Shutdown())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.Stores.Close())
	return errors.Join(errs...)
}

// SubmitQueue records suspect windows as submitted FixRecords.
type SubmitQueue struct {
	Controller *fixing.Controller
}

// Push implements reorg.Queue.
func (q SubmitQueue) Push(ctx context.Context, s domain.SuspectRange) error {
	_, err := q.Controller.Submit(ctx, s.Start, s.Remains)
	return err
}
