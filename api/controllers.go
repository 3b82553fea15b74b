package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/polymer-relay/relayer/chainstore"
	"github.com/polymer-relay/relayer/jobstore"
	"github.com/polymer-relay/relayer/queue"
)

// JobsController serves GET /api/jobs and GET /api/jobs/{id}, grounded
// on OracleStateControllerImpl's GetPathPrefix/GetEndpoints shape.
type JobsController struct {
	jobStore *jobstore.Store
	logger   hclog.Logger
}

func NewJobsController(jobStore *jobstore.Store, logger hclog.Logger) *JobsController {
	return &JobsController{jobStore: jobStore, logger: logger.Named("jobs-controller")}
}

func (c *JobsController) GetPathPrefix() string { return "jobs" }

func (c *JobsController) GetEndpoints() []*Endpoint {
	return []*Endpoint{
		{Path: "", Method: http.MethodGet, Handler: c.listJobs, APIKeyAuth: true},
		{Path: "{id}", Method: http.MethodGet, Handler: c.getJob, APIKeyAuth: true},
	}
}

func (c *JobsController) listJobs(w http.ResponseWriter, r *http.Request) {
	var (
		jobs []*jobstore.Job
		err  error
	)

	switch status := r.URL.Query().Get("status"); status {
	case "":
		jobs, err = c.jobStore.All()
	default:
		jobs, err = c.jobStore.FindByStatus(jobstore.Status(status))
	}

	if err != nil {
		WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	WriteResponse(w, r, http.StatusOK, jobs, c.logger)
}

func (c *JobsController) getJob(w http.ResponseWriter, r *http.Request) {
	idParam := mux.Vars(r)["id"]

	id, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		WriteErrorResponse(w, r, http.StatusBadRequest, fmt.Errorf("invalid job id %q: %w", idParam, err), c.logger)

		return
	}

	job, err := c.jobStore.FindByID(id)
	if err != nil {
		WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	if job == nil {
		WriteErrorResponse(w, r, http.StatusNotFound, fmt.Errorf("job %d not found", id), c.logger)

		return
	}

	WriteResponse(w, r, http.StatusOK, job, c.logger)
}

// ChainsController serves GET /api/chains.
type ChainsController struct {
	chainStore *chainstore.Store
	logger     hclog.Logger
}

func NewChainsController(chainStore *chainstore.Store, logger hclog.Logger) *ChainsController {
	return &ChainsController{chainStore: chainStore, logger: logger.Named("chains-controller")}
}

func (c *ChainsController) GetPathPrefix() string { return "chains" }

func (c *ChainsController) GetEndpoints() []*Endpoint {
	return []*Endpoint{
		{Path: "", Method: http.MethodGet, Handler: c.listChains, APIKeyAuth: true},
	}
}

func (c *ChainsController) listChains(w http.ResponseWriter, r *http.Request) {
	chains, err := c.chainStore.ListChains()
	if err != nil {
		WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	WriteResponse(w, r, http.StatusOK, chains, c.logger)
}

// StatsController serves GET /api/stats over the Queue's Stats snapshot.
type StatsController struct {
	scheduler *queue.Scheduler
	logger    hclog.Logger
}

func NewStatsController(scheduler *queue.Scheduler, logger hclog.Logger) *StatsController {
	return &StatsController{scheduler: scheduler, logger: logger.Named("stats-controller")}
}

func (c *StatsController) GetPathPrefix() string { return "stats" }

func (c *StatsController) GetEndpoints() []*Endpoint {
	return []*Endpoint{
		{Path: "", Method: http.MethodGet, Handler: c.getStats, APIKeyAuth: true},
	}
}

func (c *StatsController) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.scheduler.Stats()
	if err != nil {
		WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	WriteResponse(w, r, http.StatusOK, stats, c.logger)
}
