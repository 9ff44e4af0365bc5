package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_cfg_rpc_call_duration_seconds",
		Help:    "Duration of RPC calls to Ethereum nodes",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain_id", "node", "method", "status"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_rpc_calls_total",
		Help: "Total RPC calls made to Ethereum nodes",
	}, []string{"chain_id", "node", "method", "status"})

	PoolNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_cfg_pool_nodes",
		Help: "Number of execution nodes in the pool by status",
	}, []string{"status"})

	PoolNodesBenched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_pool_nodes_benched_total",
		Help: "Total number of times an execution node was benched after repeated failures",
	}, []string{"node"})

	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_analyses_total",
		Help: "Total number of transaction analyses",
	}, []string{"source", "status"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_cfg_analysis_duration_seconds",
		Help:    "Time taken to analyse a transaction",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"source"})

	CFGBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "execution_cfg_build_duration_seconds",
		Help:    "Time taken to build the static graph of one contract",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
	})

	CFGBlocks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "execution_cfg_blocks",
		Help:    "Number of basic blocks per contract graph",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	CFGEdges = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_cfg_edges",
		Help:    "Number of edges per contract graph",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"kind"})

	CFGUnresolvedJumps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execution_cfg_unresolved_jumps_total",
		Help: "Total number of jumps whose targets could not be resolved",
	})

	CFGTracerLimits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_tracer_limits_total",
		Help: "Total number of times the symbolic tracer hit a limit",
	}, []string{"limit"})

	TraceMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_trace_mismatches_total",
		Help: "Total number of trace steps that did not match the static graph",
	}, []string{"kind"})

	StitchPlaceholders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execution_cfg_stitch_placeholders_total",
		Help: "Total number of call frames rendered as placeholder nodes",
	})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_cache_requests_total",
		Help: "Total bytecode cache lookups",
	}, []string{"result"})

	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_tasks_enqueued_total",
		Help: "Total number of tasks enqueued",
	}, []string{"queue", "task_type"})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_tasks_processed_total",
		Help: "Total number of tasks processed",
	}, []string{"queue", "task_type", "status"})

	TaskProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_cfg_task_processing_duration_seconds",
		Help:    "Time taken to process a task",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"queue", "task_type"})

	ClickHouseOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_cfg_clickhouse_operation_duration_seconds",
		Help:    "Duration of ClickHouse operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"network", "operation", "table", "status"})

	ClickHouseOperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_clickhouse_operation_total",
		Help: "Total number of ClickHouse operations",
	}, []string{"network", "operation", "table", "status"})

	ClickHouseInsertsRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_clickhouse_inserted_rows_total",
		Help: "Total number of rows inserted into ClickHouse",
	}, []string{"network", "table", "status"})

	ClickHousePoolAcquiredResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_cfg_clickhouse_pool_acquired_resources",
		Help: "Number of currently acquired resources in the ClickHouse connection pool",
	}, []string{"network"})

	ClickHousePoolIdleResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_cfg_clickhouse_pool_idle_resources",
		Help: "Number of currently idle resources in the ClickHouse connection pool",
	}, []string{"network"})

	ClickHousePoolTotalResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_cfg_clickhouse_pool_total_resources",
		Help: "Total number of resources in the ClickHouse connection pool",
	}, []string{"network"})

	ClickHousePoolAcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_clickhouse_pool_acquire_total",
		Help: "Total number of successful resource acquisitions from the ClickHouse connection pool",
	}, []string{"network"})

	// Row buffer metrics for batched ClickHouse inserts.
	RowBufferFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_row_buffer_flush_total",
		Help: "Total number of row buffer flushes",
	}, []string{"network", "table", "trigger", "status"})

	RowBufferFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_cfg_row_buffer_flush_duration_seconds",
		Help:    "Duration of row buffer flushes",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"network", "table"})

	RowBufferFlushSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_cfg_row_buffer_flush_size_rows",
		Help:    "Number of rows per flush",
		Buckets: prometheus.ExponentialBuckets(10, 2, 14),
	}, []string{"network", "table"})

	RowBufferPendingRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_cfg_row_buffer_pending_rows",
		Help: "Current number of rows waiting in the buffer",
	}, []string{"network", "table"})

	MemoryUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execution_cfg_memory_usage_bytes",
		Help: "Process memory usage by kind",
	}, []string{"kind"})

	GoroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execution_cfg_goroutines",
		Help: "Current number of goroutines",
	})

	MemoryPressureEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_cfg_memory_pressure_events_total",
		Help: "Total number of times memory usage crossed a threshold",
	}, []string{"level"})
)
