// Package jobstore persists relay jobs in a bbolt-backed, restart-safe
// store. It is the only component permitted to mutate a Job row; every
// other package reads jobs through the query methods below and writes
// through Create/UpdateStatus/IncrementRetry.
package jobstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	jobsBucket         = []byte("Jobs")
	uniqueIndexBucket  = []byte("JobsByUniqueID")
	statusIndexBucket  = []byte("JobsByStatusCreatedAt")
	retryIndexBucket   = []byte("JobsByStatusLastRetryAt")
	mappingIndexBucket = []byte("JobsByMapping")
	sourceIndexBucket  = []byte("JobsBySourceChain")
	destIndexBucket    = []byte("JobsByDestChain")

	allBuckets = [][]byte{
		jobsBucket, uniqueIndexBucket, statusIndexBucket, retryIndexBucket,
		mappingIndexBucket, sourceIndexBucket, destIndexBucket,
	}
)

// pendingStatuses is the status set find_pending pulls, per spec §4.2.
var pendingStatuses = []Status{StatusPending, StatusProofRequested, StatusProofReady}

// Store is a bbolt handle opened over a single file shared with
// chainstore, per spec §6. Construct with Open.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at filePath and ensures
// every bucket this store needs exists, mirroring BBoltDBBase.Init's
// create-buckets-on-open convention.
func Open(filePath string) (*Store, error) {
	db, err := bbolt.Open(filePath, 0660, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: could not open db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("jobstore: could not create bucket %s: %w", b, err)
			}
		}

		return nil
	})
	if err != nil {
		db.Close()

		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenWithDB wraps an already-open bbolt handle, used when the Job Store
// shares a single file with chainstore per spec §6.
func OpenWithDB(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("jobstore: could not create bucket %s: %w", b, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts job_spec with status=pending, retry_count=0,
// created_at=now, failing with *ErrDuplicate if unique_id already exists
// (spec §4.2, invariant 1).
func (s *Store) Create(spec Spec) (uint64, error) {
	var id uint64

	err := s.db.Update(func(tx *bbolt.Tx) error {
		uniques := tx.Bucket(uniqueIndexBucket)

		if v := uniques.Get([]byte(spec.UniqueID)); v != nil {
			return &ErrDuplicate{UniqueID: spec.UniqueID}
		}

		jobs := tx.Bucket(jobsBucket)

		seq, err := jobs.NextSequence()
		if err != nil {
			return fmt.Errorf("jobstore: could not allocate id: %w", err)
		}

		id = seq
		now := time.Now().UTC()

		job := &Job{
			ID:                  id,
			UniqueID:            spec.UniqueID,
			SourceChain:         spec.SourceChain,
			SourceChainID:       spec.SourceChainID,
			SourceTxHash:        spec.SourceTxHash,
			SourceBlockNumber:   spec.SourceBlockNumber,
			DestChain:           spec.DestChain,
			DestAddress:         spec.DestAddress,
			DestMethod:          spec.DestMethod,
			DestMethodSignature: spec.DestMethodSignature,
			MappingName:         spec.MappingName,
			EventData:           spec.EventData,
			FilterLogIndex:      spec.FilterLogIndex,
			ProofRequired:       spec.ProofRequired,
			Status:              StatusPending,
			RetryCount:          0,
			CreatedAt:           now,
		}

		if err := putJob(tx, job); err != nil {
			return err
		}

		if err := uniques.Put([]byte(spec.UniqueID), encodeID(id)); err != nil {
			return fmt.Errorf("jobstore: unique index write error: %w", err)
		}

		putStatusIndexes(tx, job)

		return putSecondaryIndexes(tx, job)
	})

	return id, err
}

// UpdateStatus atomically sets id's status and applies patch in one
// transaction; the job's current status is not checked first.
// Setting new_status=completed also sets completed_at=now; every call
// sets last_retry_at=now, per spec §4.2.
func (s *Store) UpdateStatus(id uint64, newStatus Status, patch Patch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		job, err := getJob(tx, id)
		if err != nil {
			return err
		}

		removeStatusIndexes(tx, job)

		now := time.Now().UTC()
		job.Status = newStatus
		job.LastRetryAt = &now

		if patch.ProofData != nil {
			job.ProofData = patch.ProofData
		}

		if patch.GlobalLogIndex != nil {
			job.GlobalLogIndex = patch.GlobalLogIndex
		}

		if patch.DestTxHash != nil {
			job.DestTxHash = patch.DestTxHash
		}

		if patch.ErrorMessage != nil {
			job.ErrorMessage = patch.ErrorMessage
		}

		if newStatus == StatusCompleted {
			job.CompletedAt = &now
		}

		if err := putJob(tx, job); err != nil {
			return err
		}

		putStatusIndexes(tx, job)

		return nil
	})
}

// IncrementRetry atomically increments retry_count and sets
// last_retry_at=now, per spec §4.2.
func (s *Store) IncrementRetry(id uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		job, err := getJob(tx, id)
		if err != nil {
			return err
		}

		removeStatusIndexes(tx, job)

		now := time.Now().UTC()
		job.RetryCount++
		job.LastRetryAt = &now

		if err := putJob(tx, job); err != nil {
			return err
		}

		putStatusIndexes(tx, job)

		return nil
	})
}

// FindByID returns the job with the given id, or nil if absent.
func (s *Store) FindByID(id uint64) (*Job, error) {
	var job *Job

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(jobsBucket).Get(encodeID(id))
		if data == nil {
			return nil
		}

		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("jobstore: corrupt job %d: %w", id, err)
		}

		job = &j

		return nil
	})

	return job, err
}

// FindByUniqueID returns the job whose unique_id matches, or nil if none
// exists (spec §4.2's find_by_unique_id).
func (s *Store) FindByUniqueID(uniqueID string) (*Job, error) {
	var job *Job

	err := s.db.View(func(tx *bbolt.Tx) error {
		idBytes := tx.Bucket(uniqueIndexBucket).Get([]byte(uniqueID))
		if idBytes == nil {
			return nil
		}

		j, err := getJob(tx, decodeID(idBytes))
		if err != nil {
			return err
		}

		job = j

		return nil
	})

	return job, err
}

// FindByStatus returns every job currently in status, ordered by
// created_at ascending (spec §4.2's find_by_status).
func (s *Store) FindByStatus(status Status) ([]*Job, error) {
	var jobs []*Job

	err := s.db.View(func(tx *bbolt.Tx) error {
		found, err := scanStatusIndex(tx, status)
		if err != nil {
			return err
		}

		jobs = found

		return nil
	})

	return jobs, err
}

// FindPending returns every job in {pending, proof_requested,
// proof_ready}, ordered by created_at ascending (spec §4.2, §4.3 step 1).
func (s *Store) FindPending() ([]*Job, error) {
	var jobs []*Job

	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, status := range pendingStatuses {
			found, err := scanStatusIndex(tx, status)
			if err != nil {
				return err
			}

			jobs = append(jobs, found...)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	return jobs, nil
}

// FindRetryable returns every job with status=failed and
// retry_count < maxRetries, ordered by last_retry_at ascending (spec
// §4.2, §4.3 step 1).
func (s *Store) FindRetryable(maxRetries int) ([]*Job, error) {
	var jobs []*Job

	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(retryIndexBucket).Cursor()
		prefix := indexPrefix(StatusFailed)

		for k, _ := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = cursor.Next() {
			id := decodeID(k[len(k)-8:])

			job, err := getJob(tx, id)
			if err != nil {
				return err
			}

			if job.RetryCount < maxRetries {
				jobs = append(jobs, job)
			}
		}

		return nil
	})

	return jobs, err
}

// All returns every job in the store, ordered by created_at ascending,
// serving the dashboard API's unfiltered job listing (spec §4.12).
func (s *Store) All() ([]*Job, error) {
	var jobs []*Job

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(_, data []byte) error {
			var job Job
			if err := json.Unmarshal(data, &job); err != nil {
				return fmt.Errorf("jobstore: corrupt job record: %w", err)
			}

			jobs = append(jobs, &job)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	return jobs, nil
}

// FindByMapping, FindBySourceChain and FindByDestChain query the
// secondary indexes spec §4.2 requires the store to maintain even though
// no core operation names them explicitly. No other package calls them;
// the dashboard API filters by status only.
func (s *Store) FindByMapping(mappingName string) ([]*Job, error) {
	return s.scanSimpleIndex(mappingIndexBucket, mappingName)
}

func (s *Store) FindBySourceChain(chain string) ([]*Job, error) {
	return s.scanSimpleIndex(sourceIndexBucket, chain)
}

func (s *Store) FindByDestChain(chain string) ([]*Job, error) {
	return s.scanSimpleIndex(destIndexBucket, chain)
}

func (s *Store) scanSimpleIndex(bucket []byte, value string) ([]*Job, error) {
	var jobs []*Job

	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucket).Cursor()
		prefix := append([]byte(value), 0)

		for k, _ := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = cursor.Next() {
			id := decodeID(k[len(k)-8:])

			job, err := getJob(tx, id)
			if err != nil {
				return err
			}

			jobs = append(jobs, job)
		}

		return nil
	})

	return jobs, err
}

func scanStatusIndex(tx *bbolt.Tx, status Status) ([]*Job, error) {
	var jobs []*Job

	cursor := tx.Bucket(statusIndexBucket).Cursor()
	prefix := indexPrefix(status)

	for k, _ := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = cursor.Next() {
		id := decodeID(k[len(k)-8:])

		job, err := getJob(tx, id)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

func getJob(tx *bbolt.Tx, id uint64) (*Job, error) {
	data := tx.Bucket(jobsBucket).Get(encodeID(id))
	if data == nil {
		return nil, &ErrNotFound{ID: id}
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("jobstore: corrupt job %d: %w", id, err)
	}

	return &job, nil
}

func putJob(tx *bbolt.Tx, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobstore: could not marshal job %d: %w", job.ID, err)
	}

	if err := tx.Bucket(jobsBucket).Put(encodeID(job.ID), data); err != nil {
		return fmt.Errorf("jobstore: job write error: %w", err)
	}

	return nil
}

func putSecondaryIndexes(tx *bbolt.Tx, job *Job) error {
	puts := []struct {
		bucket []byte
		value  string
	}{
		{mappingIndexBucket, job.MappingName},
		{sourceIndexBucket, job.SourceChain},
		{destIndexBucket, job.DestChain},
	}

	for _, p := range puts {
		key := append(append([]byte(p.value), 0), encodeID(job.ID)...)
		if err := tx.Bucket(p.bucket).Put(key, nil); err != nil {
			return fmt.Errorf("jobstore: secondary index write error: %w", err)
		}
	}

	return nil
}

// putStatusIndexes writes the statusIndexBucket (ordered by created_at)
// and retryIndexBucket (ordered by last_retry_at) entries for job's
// current status. Callers must removeStatusIndexes for the prior status
// first when updating an existing job.
func putStatusIndexes(tx *bbolt.Tx, job *Job) {
	retryTs := job.CreatedAt
	if job.LastRetryAt != nil {
		retryTs = *job.LastRetryAt
	}

	tx.Bucket(statusIndexBucket).Put(statusIndexKey(job.Status, job.CreatedAt, job.ID), nil)
	tx.Bucket(retryIndexBucket).Put(statusIndexKey(job.Status, retryTs, job.ID), nil)
}

// removeStatusIndexes deletes job's current index entries, computed from
// job as read from the store before the caller mutates it.
func removeStatusIndexes(tx *bbolt.Tx, job *Job) {
	retryTs := job.CreatedAt
	if job.LastRetryAt != nil {
		retryTs = *job.LastRetryAt
	}

	tx.Bucket(statusIndexBucket).Delete(statusIndexKey(job.Status, job.CreatedAt, job.ID))
	tx.Bucket(retryIndexBucket).Delete(statusIndexKey(job.Status, retryTs, job.ID))
}

func statusIndexKey(status Status, ts time.Time, id uint64) []byte {
	key := indexPrefix(status)
	key = append(key, []byte(fmt.Sprintf("%020d", ts.UnixNano()))...)
	key = append(key, 0)
	key = append(key, encodeID(id)...)

	return key
}

func indexPrefix(status Status) []byte {
	return append([]byte(status), 0)
}

func encodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)

	return b
}

func decodeID(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}

	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}

	return true
}
