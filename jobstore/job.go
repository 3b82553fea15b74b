package jobstore

import "time"

// Status is a job's position in the state machine driven by the Queue.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProofRequested Status = "proof_requested"
	StatusProofReady     Status = "proof_ready"
	StatusExecuting      Status = "executing"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
)

// EventData is the serialised snapshot of a decoded source event, stored
// verbatim on the job so retries and the Executor never need to re-observe
// the chain.
type EventData struct {
	Name             string           `json:"name"`
	Args             map[string]Value `json:"args"`
	BlockNumber      uint64           `json:"blockNumber"`
	TransactionIndex uint             `json:"transactionIndex"`
	LogIndex         uint             `json:"logIndex"`
}

// ProofData is the nullable, opaque proof envelope attached once the Proof
// Client completes a request for a job that requires one.
type ProofData struct {
	Proof []byte `json:"proof"`
}

// Job is the central entity of the store: the durable record of one
// source-event-to-destination-call relay intent.
type Job struct {
	ID       uint64 `json:"id"`
	UniqueID string `json:"uniqueId"`

	SourceChain       string `json:"sourceChain"`
	SourceChainID     int64  `json:"sourceChainId"`
	SourceTxHash      string `json:"sourceTxHash"`
	SourceBlockNumber uint64 `json:"sourceBlockNumber"`

	DestChain           string `json:"destChain"`
	DestAddress         string `json:"destAddress"`
	DestMethod          string `json:"destMethod"`
	DestMethodSignature string `json:"destMethodSignature"`

	MappingName string `json:"mappingName"`

	EventData EventData `json:"eventData"`

	// FilterLogIndex is the intra-filter position the Listener recorded.
	// GlobalLogIndex is filled in by the Queue once it resolves the
	// position within the transaction receipt (spec §4.5.1); it is cached
	// so a retried job does not refetch the receipt.
	FilterLogIndex uint  `json:"filterLogIndex"`
	GlobalLogIndex *uint `json:"globalLogIndex,omitempty"`

	ProofRequired bool       `json:"proofRequired"`
	ProofData     *ProofData `json:"proofData,omitempty"`

	Status       Status  `json:"status"`
	DestTxHash   *string `json:"destTxHash,omitempty"`
	RetryCount   int     `json:"retryCount"`
	ErrorMessage *string `json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	LastRetryAt *time.Time `json:"lastRetryAt,omitempty"`
}

// Spec is the caller-supplied shape for Create; the store assigns ID,
// Status, RetryCount and CreatedAt.
type Spec struct {
	UniqueID string

	SourceChain       string
	SourceChainID     int64
	SourceTxHash      string
	SourceBlockNumber uint64

	DestChain           string
	DestAddress         string
	DestMethod          string
	DestMethodSignature string

	MappingName string

	EventData      EventData
	FilterLogIndex uint

	ProofRequired bool
}

// Patch carries the optional fields UpdateStatus may set alongside a status
// transition. Nil fields are left unchanged.
type Patch struct {
	ProofData      *ProofData
	GlobalLogIndex *uint
	DestTxHash     *string
	ErrorMessage   *string
}
