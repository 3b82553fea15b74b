package telemetry

import "github.com/armon/go-metrics"

const (
	listenerMetricsPrefix  = "listener"
	jobMetricsPrefix       = "jobs"
	proofMetricsPrefix     = "proof"
	executorMetricsPrefix  = "executor"
	schedulerMetricsPrefix = "scheduler"
)

// UpdateListenerBlocksSwept records how many blocks a single Listener
// tick advanced the cursor by, per spec.md §4.5.
func UpdateListenerBlocksSwept(chain string, cnt int) {
	metrics.IncrCounter([]string{listenerMetricsPrefix, "blocks_swept", chain}, float32(cnt))
}

// UpdateListenerTickError counts a Listener tick aborted by an RpcError
// or decode failure (spec.md §4.5 step 6, §7).
func UpdateListenerTickError(chain string) {
	metrics.IncrCounter([]string{listenerMetricsPrefix, "tick_errors", chain}, 1)
}

// UpdateListenerGlobalLogIndexFallback counts uses of the unsound
// filter-local fallback when a receipt cannot be fetched (spec.md §9's
// open question, DESIGN.md's decision to keep it with a loud warning).
func UpdateListenerGlobalLogIndexFallback(chain string) {
	metrics.IncrCounter([]string{listenerMetricsPrefix, "global_log_index_fallback", chain}, 1)
}

// UpdateJobsCreated counts new relay jobs inserted by a Listener.
func UpdateJobsCreated(mapping string) {
	metrics.IncrCounter([]string{jobMetricsPrefix, "created", mapping}, 1)
}

// UpdateJobsCompleted counts jobs that reached the completed state.
func UpdateJobsCompleted(destChain string) {
	metrics.IncrCounter([]string{jobMetricsPrefix, "completed", destChain}, 1)
}

// UpdateJobsFailed counts a handler transitioning a job to failed,
// regardless of whether it will be retried.
func UpdateJobsFailed(destChain string) {
	metrics.IncrCounter([]string{jobMetricsPrefix, "failed", destChain}, 1)
}

// UpdateJobsAbandoned counts jobs that exhausted MAX_RETRIES.
func UpdateJobsAbandoned(destChain string) {
	metrics.IncrCounter([]string{jobMetricsPrefix, "abandoned", destChain}, 1)
}

// UpdateProofRequests counts Proof Client request attempts.
func UpdateProofRequests(outcome string) {
	metrics.IncrCounter([]string{proofMetricsPrefix, "requests", outcome}, 1)
}

// UpdateExecutorConfirmations records the number of confirmations an
// Executor waited for before accepting a destination receipt.
func UpdateExecutorConfirmations(chain string, confirmations int) {
	metrics.SetGauge([]string{executorMetricsPrefix, "confirmations", chain}, float32(confirmations))
}

// UpdateSchedulerTickDuration records how long one Queue tick's
// concurrent dispatch took to settle, in milliseconds.
func UpdateSchedulerTickDuration(ms float32) {
	metrics.SetGauge([]string{schedulerMetricsPrefix, "tick_duration_ms"}, ms)
}

// UpdateSchedulerQueueDepth records the in-memory work list size left
// after a tick has taken its batch.
func UpdateSchedulerQueueDepth(depth int) {
	metrics.SetGauge([]string{schedulerMetricsPrefix, "queue_depth"}, float32(depth))
}
