package handlers

import (
	"net/http"

	"github.com/floridasonconsulting/quoteit-sync/internal/repo"
)

// CacheHandler serves the cache and quota debug surface.
type CacheHandler struct {
	repo *repo.Repository
}

// Stats handles GET /api/cache/stats: read cache size plus store quota
// consumption.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	usage, err := h.repo.Usage()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// Clear handles POST /api/cache/clear: drops the ephemeral read cache.
// Records and queues are untouched; the next read repopulates.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	h.repo.ClearCache()
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
