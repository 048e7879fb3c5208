package handlers

import (
	"net/http"

	"github.com/dustin/go-humanize"
)

// History handles GET /api/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	sessions, err := h.db.ListCleanupSessions(limit, offset)
	if err != nil {
		h.sendDBError(w, err, "cleanup sessions")
		return
	}
	total, err := h.db.CountCleanupSessions()
	if err != nil {
		h.sendDBError(w, err, "cleanup sessions")
		return
	}

	items := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionView(s))
	}
	writeJSON(w, http.StatusOK, page[SessionView]{Items: items, Total: total, Limit: limit, Offset: offset})
}

// DeleteHistory handles DELETE /api/history/{id}
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.db.DeleteCleanupSession(id); err != nil {
		h.sendDBError(w, err, "cleanup session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetSavingsStats()
	if err != nil {
		h.sendDBError(w, err, "stats")
		return
	}
	writeJSON(w, http.StatusOK, StatsView{
		BytesFreed:      stats.BytesFreed,
		BytesFreedHuman: humanize.Bytes(uint64(stats.BytesFreed)),
		FilesTrashed:    stats.FilesTrashed,
		Sessions:        stats.Sessions,
		PendingGroups:   stats.PendingGroups,
		RecentScans:     stats.RecentScans,
	})
}
