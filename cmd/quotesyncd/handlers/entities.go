package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/repo"
)

// EntityHandler serves the CRUD endpoints for all cached entities.
type EntityHandler struct {
	repo *repo.Repository
}

// pathID extracts the trailing id segment from a /api/<entity>/<id> path.
func pathID(r *http.Request, prefix string) models.UUID {
	return models.UUID(strings.TrimPrefix(r.URL.Path, prefix))
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid request body", err)
	}
	return nil
}

// =====================
// Customers
// =====================

// Customers handles GET and POST /api/customers.
func (h *EntityHandler) Customers(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		customers, err := h.repo.GetCustomers(r.Context(), scope, getOptions(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, customers)

	case http.MethodPost:
		var c models.Customer
		if err := decodeBody(r, &c); err != nil {
			writeError(w, err)
			return
		}
		if err := h.repo.AddCustomer(r.Context(), scope, &c); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)

	default:
		methodNotAllowed(w)
	}
}

// CustomerByID handles PUT and DELETE /api/customers/{id}.
func (h *EntityHandler) CustomerByID(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := pathID(r, "/api/customers/")

	switch r.Method {
	case http.MethodPut:
		var c models.Customer
		if err := decodeBody(r, &c); err != nil {
			writeError(w, err)
			return
		}
		c.ID = id
		if err := h.repo.UpdateCustomer(r.Context(), scope, &c); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)

	case http.MethodDelete:
		if err := h.repo.DeleteCustomer(r.Context(), scope, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": string(id)})

	default:
		methodNotAllowed(w)
	}
}

// =====================
// Items
// =====================

// Items handles GET and POST /api/items.
func (h *EntityHandler) Items(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := h.repo.GetItems(r.Context(), scope, getOptions(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)

	case http.MethodPost:
		var item models.Item
		if err := decodeBody(r, &item); err != nil {
			writeError(w, err)
			return
		}
		if err := h.repo.AddItem(r.Context(), scope, &item); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)

	default:
		methodNotAllowed(w)
	}
}

// ItemByID handles PUT and DELETE /api/items/{id}.
func (h *EntityHandler) ItemByID(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := pathID(r, "/api/items/")

	switch r.Method {
	case http.MethodPut:
		var item models.Item
		if err := decodeBody(r, &item); err != nil {
			writeError(w, err)
			return
		}
		item.ID = id
		if err := h.repo.UpdateItem(r.Context(), scope, &item); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)

	case http.MethodDelete:
		if err := h.repo.DeleteItem(r.Context(), scope, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": string(id)})

	default:
		methodNotAllowed(w)
	}
}

// =====================
// Quotes
// =====================

// Quotes handles GET and POST /api/quotes.
func (h *EntityHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		quotes, err := h.repo.GetQuotes(r.Context(), scope, getOptions(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quotes)

	case http.MethodPost:
		var q models.Quote
		if err := decodeBody(r, &q); err != nil {
			writeError(w, err)
			return
		}
		if err := h.repo.AddQuote(r.Context(), scope, &q); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)

	default:
		methodNotAllowed(w)
	}
}

// QuoteByID handles PUT and DELETE /api/quotes/{id}.
func (h *EntityHandler) QuoteByID(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := pathID(r, "/api/quotes/")

	switch r.Method {
	case http.MethodPut:
		var q models.Quote
		if err := decodeBody(r, &q); err != nil {
			writeError(w, err)
			return
		}
		q.ID = id
		if err := h.repo.UpdateQuote(r.Context(), scope, &q); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)

	case http.MethodDelete:
		if err := h.repo.DeleteQuote(r.Context(), scope, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": string(id)})

	default:
		methodNotAllowed(w)
	}
}

// =====================
// Company settings
// =====================

// Settings handles GET and PUT /api/settings. Settings are a single record
// per scope; PUT creates or replaces it.
func (h *EntityHandler) Settings(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := h.repo.GetSettings(r.Context(), scope, getOptions(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if settings == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"configured": false})
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPut:
		var s models.CompanySettings
		if err := decodeBody(r, &s); err != nil {
			writeError(w, err)
			return
		}
		if err := h.repo.SaveSettings(r.Context(), scope, &s); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)

	default:
		methodNotAllowed(w)
	}
}
