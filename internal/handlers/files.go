package handlers

import (
	"net/http"
	"path/filepath"

	"go.uber.org/zap"
)

// RevealFile handles GET /api/files/reveal?path=
func (h *Handler) RevealFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" || !filepath.IsAbs(path) {
		sendError(w, http.StatusBadRequest, "absolute path required")
		return
	}
	if !h.cfg.IsPathAllowed(path) {
		sendError(w, http.StatusForbidden, "path not allowed")
		return
	}

	if err := h.engine.Reveal(path); err != nil {
		h.log.Warn("reveal failed", zap.String("path", path), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "could not reveal file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
