package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/repo"
)

// SyncHandler serves sync status, manual triggers and failed-queue
// management.
type SyncHandler struct {
	repo *repo.Repository
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, h.repo.Status())
}

// Now handles POST /api/sync/now: an immediate drain of the pending queue.
func (h *SyncHandler) Now(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := h.repo.SyncNow(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.repo.Status())
}

// Online handles POST /api/sync/online: the connectivity signal from the
// client shell.
func (h *SyncHandler) Online(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrValidation, "invalid request body", err))
		return
	}
	h.repo.SetOnline(body.Online)
	writeJSON(w, http.StatusOK, h.repo.Status())
}

// Failed handles GET /api/sync/failed.
func (h *SyncHandler) Failed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	entries, err := h.repo.FailedChanges()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// seqBody is the request body for failed-queue management calls.
type seqBody struct {
	Seq int64 `json:"seq"`
}

// RetryFailed handles POST /api/sync/failed/retry.
func (h *SyncHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body seqBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrValidation, "invalid request body", err))
		return
	}
	if err := h.repo.RetryFailed(body.Seq); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.repo.Status())
}

// DiscardFailed handles POST /api/sync/failed/discard.
func (h *SyncHandler) DiscardFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body seqBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrValidation, "invalid request body", err))
		return
	}
	if err := h.repo.DiscardFailed(body.Seq); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.repo.Status())
}

// Anomalies handles GET /api/sync/anomalies: durable records of conflicts
// resolved automatically (for example an update lost to a remote delete).
func (h *SyncHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	anomalies, err := h.repo.Anomalies()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anomalies)
}
