package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/polymer-relay/relayer/chainrpc"
	"github.com/polymer-relay/relayer/jobstore"
	"github.com/polymer-relay/relayer/proofclient"
)

func newTestJobStore(t *testing.T) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// fakeProofServer serves the two-phase JSON-RPC protocol spec §6
// describes, always completing on the first poll.
func fakeProofServer(t *testing.T) *httptest.Server {
	t.Helper()

	proof := base64.StdEncoding.EncodeToString([]byte{0xde, 0xad, 0xbe, 0xef})

	var requested bool

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "polymer_requestProof":
			requested = true
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":1}`))
		case "polymer_queryProof":
			require.True(t, requested)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"status":"complete","proof":"` + proof + `"}}`))
		}
	}))
}

func insertJob(t *testing.T, store *jobstore.Store, spec jobstore.Spec) *jobstore.Job {
	t.Helper()

	id, err := store.Create(spec)
	require.NoError(t, err)

	job, err := store.FindByID(id)
	require.NoError(t, err)

	return job
}

func TestHandleProofSkipsStraightToExecutingWhenNotRequired(t *testing.T) {
	store := newTestJobStore(t)
	s := New(store, nil, nil, nil, hclog.NewNullLogger())

	job := insertJob(t, store, jobstore.Spec{UniqueID: "u1", SourceChain: "A", DestChain: "B", ProofRequired: false})

	require.NoError(t, s.handleProof(context.Background(), job))

	updated, err := store.FindByID(job.ID)
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusExecuting, updated.Status)
}

func TestHandleProofRequestsAndStoresProof(t *testing.T) {
	server := fakeProofServer(t)
	defer server.Close()

	store := newTestJobStore(t)
	pc := proofclient.New(proofclient.Config{BaseURL: server.URL, Timeout: 5 * time.Second, RetryAttempts: 1})

	s := New(store, pc, map[string]chainrpc.Client{}, nil, hclog.NewNullLogger())

	job := insertJob(t, store, jobstore.Spec{
		UniqueID: "u2", SourceChain: "A", SourceChainID: 1, SourceBlockNumber: 10,
		DestChain: "B", ProofRequired: true, FilterLogIndex: 0,
	})

	require.NoError(t, s.handleProof(context.Background(), job))

	updated, err := store.FindByID(job.ID)
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusProofReady, updated.Status)
	require.NotNil(t, updated.ProofData)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, updated.ProofData.Proof)
}

func TestResolveGlobalLogIndexFallsBackWithoutClient(t *testing.T) {
	store := newTestJobStore(t)
	s := New(store, nil, map[string]chainrpc.Client{}, nil, hclog.NewNullLogger())

	job := insertJob(t, store, jobstore.Spec{UniqueID: "u3", SourceChain: "A", FilterLogIndex: 7})

	idx := s.resolveGlobalLogIndex(context.Background(), job)
	require.Equal(t, uint(7), idx)
}

func TestHandleRetryAbandonsAtMaxRetries(t *testing.T) {
	store := newTestJobStore(t)
	s := New(store, nil, nil, nil, hclog.NewNullLogger())

	job := insertJob(t, store, jobstore.Spec{UniqueID: "u4", SourceChain: "A", DestChain: "B"})
	require.NoError(t, store.UpdateStatus(job.ID, jobstore.StatusFailed, jobstore.Patch{}))

	for i := 0; i < maxRetries; i++ {
		require.NoError(t, store.IncrementRetry(job.ID))
	}

	updated, err := store.FindByID(job.ID)
	require.NoError(t, err)
	require.Equal(t, maxRetries, updated.RetryCount)

	require.NoError(t, s.handleRetry(context.Background(), updated))

	final, err := store.FindByID(job.ID)
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusFailed, final.Status)
	require.Equal(t, maxRetries, final.RetryCount)
}

func TestHandleRetryReentersPendingWithoutProof(t *testing.T) {
	store := newTestJobStore(t)
	s := New(store, nil, nil, nil, hclog.NewNullLogger())

	job := insertJob(t, store, jobstore.Spec{UniqueID: "u5", SourceChain: "A", DestChain: "B"})
	require.NoError(t, store.UpdateStatus(job.ID, jobstore.StatusFailed, jobstore.Patch{}))

	updated, err := store.FindByID(job.ID)
	require.NoError(t, err)

	require.NoError(t, s.handleRetry(context.Background(), updated))

	final, err := store.FindByID(job.ID)
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusPending, final.Status)
	require.Equal(t, 1, final.RetryCount)
}

func TestReadyForRetryRespectsCooldown(t *testing.T) {
	now := time.Now()
	job := &jobstore.Job{LastRetryAt: &now}
	require.False(t, readyForRetry(job))

	past := now.Add(-10 * time.Second)
	job.LastRetryAt = &past
	require.True(t, readyForRetry(job))
}
