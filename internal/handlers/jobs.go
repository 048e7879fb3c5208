package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/scheduler"
)

type jobRequest struct {
	Name    string   `json:"name"`
	Paths   []string `json:"paths"`
	Cron    string   `json:"cron"`
	Action  string   `json:"action"`
	Enabled *bool    `json:"enabled,omitempty"`
	filterRequest
}

// toJob validates the request and builds a job with its next run set
func (h *Handler) toJob(req jobRequest) (*db.ScheduledJob, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New("name is required")
	}

	paths, err := h.checkPaths(req.Paths)
	if err != nil {
		return nil, err
	}

	cronExpr := strings.TrimSpace(req.Cron)
	next, err := scheduler.NextRun(cronExpr, time.Now())
	if err != nil {
		return nil, err
	}

	action := db.JobAction(req.Action)
	if action == "" {
		action = db.JobActionScan
	}
	if !action.Valid() {
		return nil, errors.New("action must be scan or scan_trash")
	}

	policy, err := req.policy(h.cfg.Filter)
	if err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return &db.ScheduledJob{
		Name:           name,
		Paths:          paths,
		Options:        db.OptionsFromPolicy(policy),
		CronExpression: cronExpr,
		Action:         action,
		Enabled:        enabled,
		NextRunAt:      &next,
	}, nil
}

// ListJobs handles GET /api/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.db.ListScheduledJobs()
	if err != nil {
		h.sendDBError(w, err, "jobs")
		return
	}

	items := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, toJobView(job))
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job, err := h.toJob(req)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.db.CreateScheduledJob(job)
	if err != nil {
		h.sendDBError(w, err, "job")
		return
	}

	h.log.Info("job created", zap.Int64("job_id", created.ID), zap.String("name", created.Name))
	writeJSON(w, http.StatusCreated, toJobView(created))
}

// UpdateJob handles PUT /api/jobs/{id}
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	existing, err := h.db.GetScheduledJob(id)
	if err != nil {
		h.sendDBError(w, err, "job")
		return
	}

	var req jobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		req.Enabled = &existing.Enabled
	}

	job, err := h.toJob(req)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	job.ID = id

	if err := h.db.UpdateScheduledJob(job); err != nil {
		h.sendDBError(w, err, "job")
		return
	}

	updated, err := h.db.GetScheduledJob(id)
	if err != nil {
		h.sendDBError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, toJobView(updated))
}

// DeleteJob handles DELETE /api/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.db.GetScheduledJob(id); err != nil {
		h.sendDBError(w, err, "job")
		return
	}
	if err := h.db.DeleteScheduledJob(id); err != nil {
		h.sendDBError(w, err, "job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleJob handles POST /api/jobs/{id}/toggle. Enabling a job recomputes
// its next run so it does not fire immediately for missed activations.
func (h *Handler) ToggleJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	job, err := h.db.GetScheduledJob(id)
	if err != nil {
		h.sendDBError(w, err, "job")
		return
	}

	job.Enabled = !job.Enabled
	if job.Enabled {
		if next, err := scheduler.NextRun(job.CronExpression, time.Now()); err == nil {
			job.NextRunAt = &next
		}
	}
	if err := h.db.UpdateScheduledJob(job); err != nil {
		h.sendDBError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

// RunJob handles POST /api/jobs/{id}/run
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	run, err := h.scheduler.RunNow(id)
	if err != nil {
		h.sendDBError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusAccepted, toScanRunView(run, true))
}
