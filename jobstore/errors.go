package jobstore

import "fmt"

// ErrDuplicate reports that a Create call's unique_id already exists.
// The caller-facing contract (spec §4.2) is an idempotent no-op, not a
// hard failure, so callers use errors.As to detect it and skip silently.
type ErrDuplicate struct {
	UniqueID string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("jobstore: job with unique_id %q already exists", e.UniqueID)
}

// ErrNotFound reports that a job id referenced by UpdateStatus or
// IncrementRetry does not exist in the store.
type ErrNotFound struct {
	ID uint64
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("jobstore: job %d not found", e.ID)
}
