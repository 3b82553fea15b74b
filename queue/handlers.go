package queue

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polymer-relay/relayer/executor"
	"github.com/polymer-relay/relayer/jobstore"
	"github.com/polymer-relay/relayer/telemetry"
)

// handleProof services jobs in {pending, proof_requested} (spec §4.3's
// dispatch table). A job that does not require a proof skips straight
// to executing; one that does moves through proof_requested →
// proof_ready, resolving the global log index (§4.5.1) before calling
// the Proof Client.
func (s *Scheduler) handleProof(ctx context.Context, job *jobstore.Job) error {
	if !job.ProofRequired {
		return s.jobStore.UpdateStatus(job.ID, jobstore.StatusExecuting, jobstore.Patch{})
	}

	if job.Status == jobstore.StatusPending {
		if err := s.jobStore.UpdateStatus(job.ID, jobstore.StatusProofRequested, jobstore.Patch{}); err != nil {
			return err
		}
	}

	globalLogIndex := s.resolveGlobalLogIndex(ctx, job)

	proof, err := s.proofClient.RequestProof(ctx, job.SourceChainID, job.SourceBlockNumber, globalLogIndex)
	if err != nil {
		telemetry.UpdateProofRequests("error")

		return fmt.Errorf("proof request failed for job %d: %w", job.ID, err)
	}

	telemetry.UpdateProofRequests("success")

	return s.jobStore.UpdateStatus(job.ID, jobstore.StatusProofReady, jobstore.Patch{
		ProofData:      &jobstore.ProofData{Proof: proof},
		GlobalLogIndex: &globalLogIndex,
	})
}

// resolveGlobalLogIndex implements spec §4.5.1: translate the Listener's
// stored filter-local index into the transaction receipt's absolute
// logs[i].index. A cached value from a previous attempt is reused
// without refetching the receipt. If the receipt cannot be fetched, the
// filter-local index is used as a fallback and a warning plus metric are
// emitted — an acknowledged, known-weak fallback (spec §9), not a bug to
// be "fixed" here.
func (s *Scheduler) resolveGlobalLogIndex(ctx context.Context, job *jobstore.Job) uint {
	if job.GlobalLogIndex != nil {
		return *job.GlobalLogIndex
	}

	client, ok := s.chainClients[job.SourceChain]
	if !ok {
		s.logger.Warn("no rpc client for source chain, using filter-local log index",
			"jobId", job.ID, "sourceChain", job.SourceChain)
		telemetry.UpdateListenerGlobalLogIndexFallback(job.SourceChain)

		return job.FilterLogIndex
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(job.SourceTxHash))
	if err != nil || receipt == nil {
		s.logger.Warn("could not fetch source receipt, falling back to filter-local log index",
			"jobId", job.ID, "sourceTxHash", job.SourceTxHash, "error", err)
		telemetry.UpdateListenerGlobalLogIndexFallback(job.SourceChain)

		return job.FilterLogIndex
	}

	// receipt.Logs holds every log the transaction emitted, in on-chain
	// order. The Listener's filter-local position counts the logs one
	// mapping's filter matched across the whole swept block range, and it
	// is used here as a position within this one receipt. The two agree
	// only when they coincide (for example the first match of a sweep
	// that is also its receipt's first log); otherwise the index of a
	// different log of the receipt is returned.
	if int(job.FilterLogIndex) < len(receipt.Logs) {
		return uint(receipt.Logs[job.FilterLogIndex].Index)
	}

	s.logger.Warn("filter-local log index out of range of receipt logs, falling back",
		"jobId", job.ID, "filterLogIndex", job.FilterLogIndex, "receiptLogCount", len(receipt.Logs))
	telemetry.UpdateListenerGlobalLogIndexFallback(job.SourceChain)

	return job.FilterLogIndex
}

// handleExecute services jobs in proof_ready (spec §4.3's dispatch
// table): transition to executing, call the destination chain's
// Executor, and record the outcome.
func (s *Scheduler) handleExecute(ctx context.Context, job *jobstore.Job) error {
	exec, ok := s.executors[job.DestChain]
	if !ok {
		return fmt.Errorf("no executor configured for destination chain %q", job.DestChain)
	}

	if job.Status != jobstore.StatusExecuting {
		if err := s.jobStore.UpdateStatus(job.ID, jobstore.StatusExecuting, jobstore.Patch{}); err != nil {
			return err
		}
	}

	txHash, err := exec.Execute(ctx, executor.Params{
		ContractAddress: job.DestAddress,
		MethodSignature: job.DestMethodSignature,
		MappingName:     job.MappingName,
		EventData:       job.EventData,
		ProofData:       job.ProofData,
	})
	if err != nil {
		return fmt.Errorf("execution failed for job %d: %w", job.ID, err)
	}

	telemetry.UpdateJobsCompleted(job.DestChain)

	return s.jobStore.UpdateStatus(job.ID, jobstore.StatusCompleted, jobstore.Patch{DestTxHash: &txHash})
}

// handleRetry services jobs in failed (spec §4.3's dispatch table).
// Retry count is incremented on re-entry, not on every failure, per spec
// §4.3's retry policy; re-entry target is pending when no proof has been
// obtained yet, otherwise proof_ready.
func (s *Scheduler) handleRetry(_ context.Context, job *jobstore.Job) error {
	if job.RetryCount >= maxRetries {
		telemetry.UpdateJobsAbandoned(job.DestChain)

		return nil
	}

	if err := s.jobStore.IncrementRetry(job.ID); err != nil {
		return err
	}

	target := jobstore.StatusPending
	if job.ProofData != nil {
		target = jobstore.StatusProofReady
	}

	return s.jobStore.UpdateStatus(job.ID, target, jobstore.Patch{})
}
