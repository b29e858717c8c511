package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks RPC requests per provider and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainetl_rpc_calls_total",
			Help: "Total number of RPC requests",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks failed RPC requests
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainetl_rpc_errors_total",
			Help: "Total number of failed RPC requests",
		},
		[]string{"provider", "method"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainetl_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ExecutorBatchSize is the current adaptive batch size per job
	ExecutorBatchSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainetl_executor_batch_size",
			Help: "Current adaptive batch size",
		},
		[]string{"job"},
	)

	// ExecutorBatchFailures counts retriable batch failures
	ExecutorBatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainetl_executor_batch_failures_total",
			Help: "Total number of batches that failed with a retriable error",
		},
		[]string{"job"},
	)

	// ExecutorItemRetries counts individual item retries after a batch failure
	ExecutorItemRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainetl_executor_item_retries_total",
			Help: "Total number of single-item retry attempts",
		},
		[]string{"job"},
	)

	// JobDuration tracks how long each job phase takes
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainetl_job_phase_duration_seconds",
			Help:    "Duration of extraction job phases",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job", "phase"},
	)

	// JobFailures counts failed job runs
	JobFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainetl_job_failures_total",
			Help: "Total number of failed job runs",
		},
		[]string{"job"},
	)

	// BufferPendingBlocks is the number of blocks waiting to be flushed
	BufferPendingBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainetl_buffer_pending_blocks",
			Help: "Blocks buffered and not yet exported",
		},
	)

	// BufferFlushes counts flushes by result
	BufferFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainetl_buffer_flushes_total",
			Help: "Total number of buffer flushes",
		},
		[]string{"result"},
	)

	// BufferFlushDuration tracks export latency of one flushed chunk
	BufferFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainetl_buffer_flush_duration_seconds",
			Help:    "Export duration of one flushed chunk",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LastSyncedBlock tracks the durable checkpoint per mission
	LastSyncedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainetl_last_synced_block",
			Help: "Last block whose records were durably exported",
		},
		[]string{"mission"},
	)

	// ChainLatestBlock tracks the latest block height reported by the node
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainetl_chain_latest_block",
			Help: "Latest block height of the chain",
		},
	)

	// ReorgsDetected counts parent-hash linkage breaks
	ReorgsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainetl_reorgs_detected_total",
			Help: "Total number of detected parent hash mismatches",
		},
	)

	// FixJobs counts fixing jobs by final status
	FixJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainetl_fix_jobs_total",
			Help: "Total number of fixing jobs by outcome",
		},
		[]string{"status"},
	)

	// FixedBlocks counts blocks re-derived by the fixing controller
	FixedBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainetl_fixed_blocks_total",
			Help: "Total number of blocks re-derived after a reorg",
		},
	)

	// DBBatchSize tracks rows written per statement
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainetl_db_batch_size",
			Help:    "Rows written per upsert statement",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
		},
		[]string{"table"},
	)

	// DBConnectionPoolUsage is the share of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainetl_db_connection_pool_usage_percent",
			Help: "Open connections as a percentage of the pool size",
		},
	)
)
