package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/polymer-relay/relayer/chainstore"
	"github.com/polymer-relay/relayer/jobstore"
	"github.com/polymer-relay/relayer/queue"
)

func TestJobsControllerListAndGet(t *testing.T) {
	store, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	id, err := store.Create(jobstore.Spec{UniqueID: "u1", SourceChain: "A", DestChain: "B"})
	require.NoError(t, err)

	controller := NewJobsController(store, hclog.NewNullLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Jobs", nil)
	controller.listJobs(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []*jobstore.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/Jobs/1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	controller.getJob(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var job jobstore.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, id, job.ID)
}

func TestJobsControllerGetMissingReturnsNotFound(t *testing.T) {
	store, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	controller := NewJobsController(store, hclog.NewNullLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Jobs/999", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "999"})
	controller.getJob(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChainsControllerListsPersistedCursors(t *testing.T) {
	store, err := chainstore.Open(filepath.Join(t.TempDir(), "chains.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SetLastProcessed("A", 100))

	controller := NewChainsController(store, hclog.NewNullLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Chains", nil)
	controller.listChains(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var chains []chainstore.ChainState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chains))
	require.Len(t, chains, 1)
	require.Equal(t, "A", chains[0].Chain)
	require.Equal(t, uint64(100), chains[0].LastProcessedBlock)
}

func TestStatsControllerCountsByStatus(t *testing.T) {
	store, err := jobstore.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Create(jobstore.Spec{UniqueID: "u1", SourceChain: "A", DestChain: "B"})
	require.NoError(t, err)

	scheduler := queue.New(store, nil, nil, nil, hclog.NewNullLogger())
	controller := NewStatsController(scheduler, hclog.NewNullLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Stats", nil)
	controller.getStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats queue.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.Pending)
}
