// Package queue drives the job state machine of spec.md §4.3: a
// cooperative ticking scheduler that pulls pending and retryable jobs
// from the Job Store, dispatches each to a status-specific handler under
// a bounded worker pool, and writes the outcome back. Grounded on
// relayer/relayer/relayer.go's Start/execute ticker loop (generalized
// from one fixed action per tick to a dispatch table) and
// cardano/bridging_tx.go's WaitForTx (the sync.WaitGroup +
// per-item-error-slot pattern used here for the same "wait for every
// concurrent handler to settle before continuing" requirement, spec §4.3
// step 3).
package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/polymer-relay/relayer/chainrpc"
	"github.com/polymer-relay/relayer/executor"
	"github.com/polymer-relay/relayer/jobstore"
	"github.com/polymer-relay/relayer/proofclient"
	"github.com/polymer-relay/relayer/telemetry"
)

const (
	// concurrency is the worker pool size spec §4.3 step 2 fixes at 5.
	concurrency = 5
	// maxRetries is the retry budget spec §4.3 names MAX_RETRIES.
	maxRetries = 3
	// retryCooldown is the fixed delay spec §4.3's retry policy requires
	// since last_retry_at before a failed job re-enters.
	retryCooldown = 5 * time.Second
	// tickInterval is the scheduling loop's cooperative tick period.
	tickInterval = 1 * time.Second
)

// Stats is a point-in-time snapshot of queue depth by status, served by
// the dashboard API (spec §4.12's read-only surface has no
// core contract of its own, so this shape is this package's own).
type Stats struct {
	Pending        int
	ProofRequested int
	ProofReady     int
	Executing      int
	Completed      int
	Failed         int
	Abandoned      int
}

// Scheduler is the Queue of spec §4.3. It owns no long-term data of its
// own; all durable state lives in the Job Store.
type Scheduler struct {
	jobStore    *jobstore.Store
	proofClient *proofclient.Client

	// chainClients covers every configured chain (source and
	// destination): the §4.5.1 global-log-index translation needs a
	// source chain's RPC client, not just a destination's.
	chainClients map[string]chainrpc.Client
	executors    map[string]*executor.Executor

	logger hclog.Logger

	mu       sync.Mutex
	workList []*jobstore.Job

	drainWG sync.WaitGroup
	closeCh chan struct{}
}

func New(
	jobStore *jobstore.Store,
	proofClient *proofclient.Client,
	chainClients map[string]chainrpc.Client,
	executors map[string]*executor.Executor,
	logger hclog.Logger,
) *Scheduler {
	return &Scheduler{
		jobStore:     jobStore,
		proofClient:  proofClient,
		chainClients: chainClients,
		executors:    executors,
		logger:       logger.Named("queue"),
		closeCh:      make(chan struct{}),
	}
}

// Start runs the scheduling loop until ctx is cancelled or Stop is
// called, mirroring RelayerImpl.Start's ticker shape.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting job queue", "concurrency", concurrency, "maxRetries", maxRetries)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeCh:
			return
		case <-ticker.C:
		}

		start := time.Now()

		if err := s.tick(ctx); err != nil {
			s.logger.Error("tick failed", "error", err)
		}

		telemetry.UpdateSchedulerTickDuration(float32(time.Since(start).Milliseconds()))
	}
}

// Stop signals the loop to exit and waits (bounded by ctx) for any
// in-flight dispatch to settle, per spec §5's drain-deadline requirement.
func (s *Scheduler) Stop(ctx context.Context) {
	close(s.closeCh)

	done := make(chan struct{})

	go func() {
		s.drainWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("drain deadline exceeded, forcing shutdown with handlers still in flight")
	}
}

// tick runs one scheduling iteration, spec §4.3 steps 1-3.
func (s *Scheduler) tick(ctx context.Context) error {
	if err := s.refillWorkList(); err != nil {
		return fmt.Errorf("queue: could not refill work list: %w", err)
	}

	batch := s.takeBatch(concurrency)
	if len(batch) == 0 {
		return nil
	}

	telemetry.UpdateSchedulerQueueDepth(len(s.workList))

	errs := make([]error, len(batch))

	s.drainWG.Add(1)
	defer s.drainWG.Done()

	var wg sync.WaitGroup

	for i, job := range batch {
		wg.Add(1)

		go func(idx int, j *jobstore.Job) {
			defer wg.Done()

			errs[idx] = s.dispatch(ctx, j)
		}(i, job)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			s.logger.Warn("handler error", "jobId", batch[i].ID, "error", err)
		}
	}

	return nil
}

// refillWorkList pulls find_retryable and find_pending when the
// in-memory work list is empty (spec §4.3 step 1).
func (s *Scheduler) refillWorkList() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.workList) > 0 {
		return nil
	}

	retryable, err := s.jobStore.FindRetryable(maxRetries)
	if err != nil {
		return err
	}

	pending, err := s.jobStore.FindPending()
	if err != nil {
		return err
	}

	eligible := make([]*jobstore.Job, 0, len(retryable)+len(pending))

	for _, job := range retryable {
		if readyForRetry(job) {
			eligible = append(eligible, job)
		}
	}

	eligible = append(eligible, pending...)

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	s.workList = eligible

	return nil
}

// readyForRetry reports whether a failed job's cooldown since
// last_retry_at has elapsed (spec §4.3's retry policy).
func readyForRetry(job *jobstore.Job) bool {
	if job.LastRetryAt == nil {
		return true
	}

	return time.Since(*job.LastRetryAt) >= retryCooldown
}

func (s *Scheduler) takeBatch(n int) []*jobstore.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.workList) {
		n = len(s.workList)
	}

	batch := s.workList[:n]
	s.workList = s.workList[n:]

	return batch
}

// Stats aggregates a point-in-time job count by status for the
// dashboard API. "Abandoned" is not a distinct Job Store
// status — it is a failed job that has exhausted MAX_RETRIES — so it is
// computed here rather than stored.
func (s *Scheduler) Stats() (Stats, error) {
	var stats Stats

	counts := map[jobstore.Status]*int{
		jobstore.StatusPending:        &stats.Pending,
		jobstore.StatusProofRequested: &stats.ProofRequested,
		jobstore.StatusProofReady:     &stats.ProofReady,
		jobstore.StatusExecuting:      &stats.Executing,
		jobstore.StatusCompleted:      &stats.Completed,
	}

	for status, dest := range counts {
		jobs, err := s.jobStore.FindByStatus(status)
		if err != nil {
			return Stats{}, err
		}

		*dest = len(jobs)
	}

	failedJobs, err := s.jobStore.FindByStatus(jobstore.StatusFailed)
	if err != nil {
		return Stats{}, err
	}

	for _, job := range failedJobs {
		if job.RetryCount >= maxRetries {
			stats.Abandoned++
		} else {
			stats.Failed++
		}
	}

	return stats, nil
}

// dispatch routes job to its status-specific handler (spec §4.3 step 2)
// and catches any handler error, converting it to a failed transition
// rather than letting it escape the Queue (spec §4.3's "Failure
// semantics inside a handler").
func (s *Scheduler) dispatch(ctx context.Context, job *jobstore.Job) error {
	var err error

	switch job.Status {
	case jobstore.StatusPending, jobstore.StatusProofRequested:
		err = s.handleProof(ctx, job)
		// A job that needs no proof is now executing; nothing else picks
		// executing jobs up, so it is executed in this same dispatch.
		if err == nil && !job.ProofRequired {
			job.Status = jobstore.StatusExecuting
			err = s.handleExecute(ctx, job)
		}
	case jobstore.StatusProofReady:
		err = s.handleExecute(ctx, job)
	case jobstore.StatusFailed:
		err = s.handleRetry(ctx, job)
	default:
		return nil
	}

	if err != nil {
		msg := err.Error()
		if patchErr := s.jobStore.UpdateStatus(job.ID, jobstore.StatusFailed, jobstore.Patch{ErrorMessage: &msg}); patchErr != nil {
			s.logger.Error("could not record handler failure", "jobId", job.ID, "error", patchErr)
		}

		telemetry.UpdateJobsFailed(job.DestChain)
	}

	return err
}
