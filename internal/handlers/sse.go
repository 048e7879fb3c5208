package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/types"
)

// ScanProgressSSE handles GET /sse/scans/{id}. It streams "progress" events
// until the run finishes, then a single "complete" event.
func (h *Handler) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before reading the run so no terminal event is missed
	updates := h.scanner.Subscribe(runID)
	defer h.scanner.Unsubscribe(runID, updates)

	run, err := h.db.GetScanRun(runID)
	if err != nil {
		h.sendDBError(w, err, "scan run")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	if run.Status != db.ScanRunStatusRunning {
		h.sendComplete(w, flusher, string(run.Status))
		return
	}
	h.sendProgress(w, flusher, &types.ScanProgress{
		Phase:          types.PhaseEnumerating,
		ProcessedFiles: run.FilesScanned,
		ProcessedBytes: run.BytesScanned,
		StartedAt:      run.StartedAt,
	})

	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				status := string(db.ScanRunStatusCompleted)
				if final, err := h.db.GetScanRun(runID); err == nil {
					status = string(final.Status)
				}
				h.sendComplete(w, flusher, status)
				return
			}
			h.sendProgress(w, flusher, update)
			if !update.Phase.IsActive() {
				h.sendComplete(w, flusher, string(update.Phase))
				return
			}
		}
	}
}

// progressEvent adds display fields to a progress signal
type progressEvent struct {
	*types.ScanProgress
	Description  string  `json:"description"`
	FileFraction float64 `json:"file_fraction"`
	ByteFraction float64 `json:"byte_fraction"`
}

func (h *Handler) sendProgress(w http.ResponseWriter, flusher http.Flusher, progress *types.ScanProgress) {
	data, _ := json.Marshal(progressEvent{
		ScanProgress: progress,
		Description:  progress.Phase.Description(),
		FileFraction: progress.FileFraction(),
		ByteFraction: progress.ByteFraction(),
	})
	sendEvent(w, flusher, "progress", string(data))
}

func (h *Handler) sendComplete(w http.ResponseWriter, flusher http.Flusher, status string) {
	data, _ := json.Marshal(map[string]string{"status": status})
	sendEvent(w, flusher, "complete", string(data))
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
