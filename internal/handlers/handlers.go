package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/logging"
	"github.com/lyallcooper/reclaim/internal/metrics"
	"github.com/lyallcooper/reclaim/internal/scheduler"
	"github.com/lyallcooper/reclaim/internal/services"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxBodyBytes    = 1 << 20
)

// Handler holds all HTTP handlers
type Handler struct {
	db        *db.DB
	cfg       *config.Config
	engine    engine.Interface
	scanner   *services.Scanner
	scheduler *scheduler.Scheduler
	log       *zap.Logger
}

// New creates a new Handler
func New(database *db.DB, cfg *config.Config, eng engine.Interface, scanner *services.Scanner, sched *scheduler.Scheduler) *Handler {
	return &Handler{
		db:        database,
		cfg:       cfg,
		engine:    eng,
		scanner:   scanner,
		scheduler: sched,
		log:       logging.Component("handlers"),
	}
}

// Routes returns the API mux wrapped in logging and metrics middleware
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return logging.Middleware(metrics.Middleware(mux))
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	// Scans
	mux.HandleFunc("GET /api/scans", h.ListScans)
	mux.HandleFunc("POST /api/scans", h.StartScan)
	mux.HandleFunc("GET /api/scans/{id}", h.GetScan)
	mux.HandleFunc("POST /api/scans/{id}/cancel", h.CancelScan)
	mux.HandleFunc("GET /api/scans/{id}/groups", h.ListGroups)
	mux.HandleFunc("GET /api/scans/{id}/skipped", h.ListSkipped)
	mux.HandleFunc("POST /api/scans/{id}/trash", h.TrashFiles)
	mux.HandleFunc("POST /api/scans/{id}/dedupe", h.Dedupe)

	// History
	mux.HandleFunc("GET /api/history", h.History)
	mux.HandleFunc("DELETE /api/history/{id}", h.DeleteHistory)
	mux.HandleFunc("GET /api/stats", h.Stats)

	// Jobs
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("PUT /api/jobs/{id}", h.UpdateJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.DeleteJob)
	mux.HandleFunc("POST /api/jobs/{id}/toggle", h.ToggleJob)
	mux.HandleFunc("POST /api/jobs/{id}/run", h.RunJob)

	// Files
	mux.HandleFunc("GET /api/files/reveal", h.RevealFile)

	// SSE
	mux.HandleFunc("GET /sse/scans/{id}", h.ScanProgressSSE)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		sendError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorResponse is the body of every non-2xx API response
type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message, Code: code})
}

// sendDBError maps a lookup failure to 404 or 500
func (h *Handler) sendDBError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, sql.ErrNoRows) {
		sendError(w, http.StatusNotFound, what+" not found")
		return
	}
	h.log.Error("database error", zap.String("entity", what), zap.Error(err))
	sendError(w, http.StatusInternalServerError, "internal error")
}

// decodeJSON reads a size-limited JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathID parses the {id} path segment
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		sendError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// pagination reads limit and offset query parameters
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// checkPaths expands paths and rejects any outside the allowed roots
func (h *Handler) checkPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one path is required")
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expanded := config.ExpandPath(p)
		if !h.cfg.IsPathAllowed(expanded) {
			return nil, fmt.Errorf("path not allowed: %s", p)
		}
		out = append(out, expanded)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one path is required")
	}
	return out, nil
}

// parseSizeWithError parses a human readable size such as "10 MB" or
// "1.5 GiB". Empty input is zero.
func parseSizeWithError(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(n), nil
}
