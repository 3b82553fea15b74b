package proofclient

import "fmt"

// ProofRequestFailed reports that the request phase exhausted its retry
// budget without a successful polymer_requestProof call (spec §4.4).
type ProofRequestFailed struct {
	Err error
}

func (e *ProofRequestFailed) Error() string {
	return fmt.Sprintf("proofclient: request phase failed: %v", e.Err)
}

func (e *ProofRequestFailed) Unwrap() error { return e.Err }

// ProofPollingTimeout reports that the poll phase exhausted its 30
// attempts without reaching a complete or error status (spec §4.4).
type ProofPollingTimeout struct {
	JobID int64
}

func (e *ProofPollingTimeout) Error() string {
	return fmt.Sprintf("proofclient: polling timed out for job %d", e.JobID)
}

// ProofGenerationFailed reports that polymer_queryProof returned
// status=error, or status=complete with an empty proof (spec §4.4).
type ProofGenerationFailed struct {
	JobID   int64
	Message string
}

func (e *ProofGenerationFailed) Error() string {
	return fmt.Sprintf("proofclient: proof generation failed for job %d: %s", e.JobID, e.Message)
}
