// Package handlers provides the REST API over the local cache and sync
// layer. All endpoints are scope-bound: the caller identifies the user via
// the X-User-ID header and optionally the organization via X-Org-ID.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/repo"
)

// Register mounts all API routes on the mux.
func Register(mux *http.ServeMux, r *repo.Repository) {
	e := &EntityHandler{repo: r}
	mux.HandleFunc("/api/customers", e.Customers)
	mux.HandleFunc("/api/customers/", e.CustomerByID)
	mux.HandleFunc("/api/items", e.Items)
	mux.HandleFunc("/api/items/", e.ItemByID)
	mux.HandleFunc("/api/quotes", e.Quotes)
	mux.HandleFunc("/api/quotes/", e.QuoteByID)
	mux.HandleFunc("/api/settings", e.Settings)

	s := &SyncHandler{repo: r}
	mux.HandleFunc("/api/sync/status", s.Status)
	mux.HandleFunc("/api/sync/now", s.Now)
	mux.HandleFunc("/api/sync/online", s.Online)
	mux.HandleFunc("/api/sync/failed", s.Failed)
	mux.HandleFunc("/api/sync/failed/retry", s.RetryFailed)
	mux.HandleFunc("/api/sync/failed/discard", s.DiscardFailed)
	mux.HandleFunc("/api/sync/anomalies", s.Anomalies)

	c := &CacheHandler{repo: r}
	mux.HandleFunc("/api/cache/stats", c.Stats)
	mux.HandleFunc("/api/cache/clear", c.Clear)
}

// scopeFrom extracts the caller's scope from the request headers.
func scopeFrom(r *http.Request) (models.Scope, error) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return models.Scope{}, apperrors.New(apperrors.ErrValidation, "X-User-ID header is required")
	}
	return models.Scope{UserID: userID, OrgID: r.Header.Get("X-Org-ID")}, nil
}

// getOptions reads per-request read tuning from the query string.
func getOptions(r *http.Request) repo.GetOptions {
	return repo.GetOptions{ForceRefresh: r.URL.Query().Get("forceRefresh") == "true"}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps application error codes to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apperrors.ErrInternal

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		switch appErr.Code {
		case apperrors.ErrValidation, apperrors.ErrInvalid:
			status = http.StatusBadRequest
		case apperrors.ErrNotFound:
			status = http.StatusNotFound
		case apperrors.ErrQuotaExceeded:
			status = http.StatusInsufficientStorage
		case apperrors.ErrOffline:
			status = http.StatusServiceUnavailable
		case apperrors.ErrSyncInProgress:
			status = http.StatusConflict
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(code),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"error": "method not allowed",
	})
}
