package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/floridasonconsulting/quoteit-sync/internal/models"
)

// TestErrorClassification tests the transient/permanent split the drain loop
// relies on.
func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"500", NewError(500, "internal"), true},
		{"503", NewError(503, "unavailable"), true},
		{"429", NewError(429, "rate limited"), true},
		{"408", NewError(408, "timeout"), true},
		{"401 auth", NewError(401, "jwt expired"), true},
		{"403 auth", NewError(403, "forbidden"), true},
		{"400 validation", NewError(400, "bad payload"), false},
		{"404", NewError(404, "no such row"), false},
		{"409 conflict", NewError(409, "duplicate key"), false},
		{"422", NewError(422, "unprocessable"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain transport", errors.New("connection refused"), true},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.transient {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.transient)
		}
		if got := IsPermanent(tc.err); got != !tc.transient {
			t.Errorf("%s: IsPermanent = %v, want %v", tc.name, got, !tc.transient)
		}
	}

	if IsTransient(nil) || IsPermanent(nil) {
		t.Error("nil error must be neither transient nor permanent")
	}
}

// TestIsNotFound tests 404 detection through wrapping.
func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewError(404, "gone")) {
		t.Error("expected 404 to be not-found")
	}
	if IsNotFound(NewError(400, "bad")) {
		t.Error("400 must not be not-found")
	}
	if IsNotFound(errors.New("nope")) {
		t.Error("plain error must not be not-found")
	}
}

// TestHTTPBackendSelect tests scoped selects against a fake table API.
func TestHTTPBackendSelect(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]Row{{"id": "c1", "name": "Acme"}})
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPConfig{BaseURL: server.URL, APIKey: "test-key"})

	rows, err := backend.Select(context.Background(), "customers", models.Scope{UserID: "u1"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if gotPath != "/rest/v1/customers" {
		t.Errorf("path = %q, want /rest/v1/customers", gotPath)
	}
	if gotQuery != "user_id=eq.u1" {
		t.Errorf("query = %q, want user_id=eq.u1", gotQuery)
	}
	if len(rows) != 1 || rows[0].ID() != "c1" {
		t.Errorf("rows = %v, want one row with id c1", rows)
	}
}

// TestHTTPBackendInsertEchoesRow tests that the representation is returned.
func TestHTTPBackendInsertEchoesRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var rows []Row
		var row Row
		json.NewDecoder(r.Body).Decode(&row)
		row["created_at"] = int64(1700000000)
		rows = append(rows, row)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPConfig{BaseURL: server.URL})

	row, err := backend.Insert(context.Background(), "customers", Row{"id": "c1", "name": "Acme"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if row["created_at"] == nil {
		t.Error("expected server-assigned created_at in echoed row")
	}
}

// TestHTTPBackendErrorBody tests that error responses become structured errors.
func TestHTTPBackendErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":"23502","message":"null value in column name"}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPConfig{BaseURL: server.URL})

	_, err := backend.Insert(context.Background(), "customers", Row{"id": "c1"})
	var remoteErr *Error
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if remoteErr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Code = %d, want 422", remoteErr.Code)
	}
	if remoteErr.Message != "null value in column name" {
		t.Errorf("Message = %q, want parsed backend message", remoteErr.Message)
	}
	if !IsPermanent(err) {
		t.Error("422 must classify as permanent")
	}
}

// TestHTTPBackendDeleteMissingIsNoError tests delete idempotency at the boundary.
func TestHTTPBackendDeleteMissingIsNoError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPConfig{BaseURL: server.URL})

	if err := backend.Delete(context.Background(), "customers", "missing"); err != nil {
		t.Errorf("Delete of missing row returned error: %v", err)
	}
}
