package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/services"
	"github.com/lyallcooper/reclaim/internal/types"
)

// filterRequest carries optional policy overrides. Omitted fields fall back
// to the configured defaults.
type filterRequest struct {
	MinSize             *string  `json:"min_size,omitempty"`
	ExcludeHidden       *bool    `json:"exclude_hidden,omitempty"`
	ExcludeSystem       *bool    `json:"exclude_system,omitempty"`
	ExcludedExtensions  []string `json:"excluded_extensions,omitempty"`
	ExcludedDirectories []string `json:"excluded_directories,omitempty"`
}

// policy applies the overrides to base and validates the result
func (f filterRequest) policy(base filter.Policy) (filter.Policy, error) {
	p := base
	if f.MinSize != nil {
		n, err := parseSizeWithError(*f.MinSize)
		if err != nil {
			return p, err
		}
		p.MinimumFileSize = n
	}
	if f.ExcludeHidden != nil {
		p.ExcludeHiddenFiles = *f.ExcludeHidden
	}
	if f.ExcludeSystem != nil {
		p.ExcludeSystemDirectories = *f.ExcludeSystem
	}
	if f.ExcludedExtensions != nil {
		p.ExcludedExtensions = f.ExcludedExtensions
	}
	if f.ExcludedDirectories != nil {
		p.ExcludedDirectoryNames = f.ExcludedDirectories
	}
	return p, p.Validate()
}

type scanRequest struct {
	Paths []string `json:"paths"`
	filterRequest
}

// StartScan handles POST /api/scans
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	paths, err := h.checkPaths(req.Paths)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	policy, err := req.policy(h.cfg.Filter)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.scanner.StartScan(r.Context(), &services.ScanConfig{Paths: paths, Policy: policy}, nil)
	if err != nil {
		h.log.Error("failed to start scan", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "failed to start scan")
		return
	}

	writeJSON(w, http.StatusAccepted, toScanRunView(run, true))
}

// ListScans handles GET /api/scans
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	runs, err := h.db.ListScanRuns(limit, offset)
	if err != nil {
		h.sendDBError(w, err, "scan runs")
		return
	}
	total, err := h.db.CountScanRuns()
	if err != nil {
		h.sendDBError(w, err, "scan runs")
		return
	}

	items := make([]ScanRunView, 0, len(runs))
	for _, run := range runs {
		items = append(items, toScanRunView(run, h.scanner.IsActive(run.ID)))
	}
	writeJSON(w, http.StatusOK, page[ScanRunView]{Items: items, Total: total, Limit: limit, Offset: offset})
}

// GetScan handles GET /api/scans/{id}
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	run, err := h.db.GetScanRun(id)
	if err != nil {
		h.sendDBError(w, err, "scan run")
		return
	}
	writeJSON(w, http.StatusOK, toScanRunView(run, h.scanner.IsActive(id)))
}

// CancelScan handles POST /api/scans/{id}/cancel
func (h *Handler) CancelScan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if !h.scanner.CancelScan(id) {
		sendError(w, http.StatusConflict, "scan is not running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// ListGroups handles GET /api/scans/{id}/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.db.GetScanRun(id); err != nil {
		h.sendDBError(w, err, "scan run")
		return
	}

	q := r.URL.Query()
	limit, offset := pagination(r)
	status := q.Get("status")

	groups, err := h.db.ListDuplicateGroupsPaginated(db.DuplicateGroupQuery{
		ScanRunID: id,
		Status:    status,
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.sendDBError(w, err, "duplicate groups")
		return
	}
	total, err := h.db.CountDuplicateGroups(id, status)
	if err != nil {
		h.sendDBError(w, err, "duplicate groups")
		return
	}

	items := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		items = append(items, toGroupView(g))
	}
	writeJSON(w, http.StatusOK, page[GroupView]{Items: items, Total: total, Limit: limit, Offset: offset})
}

// ListSkipped handles GET /api/scans/{id}/skipped
func (h *Handler) ListSkipped(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	run, err := h.db.GetScanRun(id)
	if err != nil {
		h.sendDBError(w, err, "scan run")
		return
	}

	limit, offset := pagination(r)
	skipped, err := h.db.ListSkippedFiles(id, limit, offset)
	if err != nil {
		h.sendDBError(w, err, "skipped files")
		return
	}

	items := make([]types.SkippedFile, 0, len(skipped))
	for _, s := range skipped {
		items = append(items, s.SkippedFile)
	}
	writeJSON(w, http.StatusOK, page[types.SkippedFile]{Items: items, Total: int(run.SkippedCount), Limit: limit, Offset: offset})
}

type trashRequest struct {
	GroupID   int64    `json:"group_id"`
	Paths     []string `json:"paths"`
	Permanent bool     `json:"permanent,omitempty"`
}

// TrashFiles handles POST /api/scans/{id}/trash
func (h *Handler) TrashFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req trashRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.requireCompleted(w, id) {
		return
	}

	result, err := h.scanner.TrashFiles(services.TrashRequest{RunID: id, Permanent: req.Permanent}, req.GroupID, req.Paths)
	h.sendTrashResult(w, result, err)
}

type dedupeRequest struct {
	GroupIDs  []int64 `json:"group_ids"`
	Keep      string  `json:"keep"`
	Permanent bool    `json:"permanent,omitempty"`
}

// Dedupe handles POST /api/scans/{id}/dedupe
func (h *Handler) Dedupe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dedupeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	keep, err := engine.ParseKeepStrategy(req.Keep)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.requireCompleted(w, id) {
		return
	}

	result, err := h.scanner.TrashGroupsKeeping(services.TrashRequest{RunID: id, Permanent: req.Permanent}, req.GroupIDs, keep)
	h.sendTrashResult(w, result, err)
}

// requireCompleted rejects file operations on runs without stored results
func (h *Handler) requireCompleted(w http.ResponseWriter, runID int64) bool {
	run, err := h.db.GetScanRun(runID)
	if err != nil {
		h.sendDBError(w, err, "scan run")
		return false
	}
	if run.Status != db.ScanRunStatusCompleted {
		sendError(w, http.StatusConflict, "scan has not completed")
		return false
	}
	return true
}

// sendTrashResult maps a trash outcome to a response. Partial failures are
// still a 200 so clients see what was freed.
func (h *Handler) sendTrashResult(w http.ResponseWriter, result types.TrashResult, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toTrashResponse(result, nil))
	case errors.Is(err, services.ErrNothingSelected),
		errors.Is(err, services.ErrUnknownFile),
		errors.Is(err, services.ErrWouldRemoveAll):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrGroupNotInRun), errors.Is(err, sql.ErrNoRows):
		sendError(w, http.StatusNotFound, "duplicate group not found")
	case result.TrashedCount > 0:
		writeJSON(w, http.StatusOK, toTrashResponse(result, err))
	case len(result.FailedFiles) > 0:
		writeJSON(w, http.StatusUnprocessableEntity, toTrashResponse(result, err))
	default:
		h.log.Error("trash failed", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
	}
}
