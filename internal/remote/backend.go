// Package remote defines the boundary to the authoritative backend: a
// table-addressed request interface returning rows or a structured error.
// The sync layer depends only on the Backend interface; the HTTP
// implementation in this package is what the daemon wires in.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/floridasonconsulting/quoteit-sync/internal/models"
)

// Row is a backend-shaped record: snake_case keys, JSON-compatible values.
type Row map[string]interface{}

// ID returns the row's id field, if present.
func (r Row) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

// Backend is the remote persistence boundary. Every call is bounded by its
// context; implementations return *Error for remote-side rejections and
// plain errors for transport failures.
type Backend interface {
	// Select returns all rows in table visible to scope.
	Select(ctx context.Context, table string, scope models.Scope) ([]Row, error)

	// Insert creates a row and returns it with server-assigned fields.
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update replaces the row with the given id and returns the stored row.
	Update(ctx context.Context, table, id string, row Row) (Row, error)

	// Upsert inserts or replaces by id and returns the stored row.
	Upsert(ctx context.Context, table string, row Row) (Row, error)

	// Delete removes the row with the given id. Deleting a missing row is
	// not an error.
	Delete(ctx context.Context, table, id string) error
}

// Error is a structured remote-side rejection: an HTTP-style status code
// plus a human-readable message.
type Error struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// NewError creates a remote Error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// IsTransient reports whether err should be retried: transport failures,
// timeouts, rate limiting, server-side errors, and auth errors (credentials
// may refresh out of band). Transient failures keep the queue entry pending.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		switch {
		case remoteErr.Code >= 500:
			return true
		case remoteErr.Code == http.StatusRequestTimeout,
			remoteErr.Code == http.StatusTooManyRequests,
			remoteErr.Code == http.StatusUnauthorized,
			remoteErr.Code == http.StatusForbidden:
			return true
		}
		return false
	}
	// Unclassified transport-level failure: retrying is the safe default.
	return true
}

// IsPermanent reports whether err is a remote rejection that retrying
// cannot fix (validation errors, conflicts, malformed payloads). Permanent
// failures move the entry to the failed-queue.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return !IsTransient(err)
}

// IsNotFound reports whether err is a remote 404. The drain loop uses this
// to detect an update racing a remote delete (the delete wins).
func IsNotFound(err error) bool {
	var remoteErr *Error
	return errors.As(err, &remoteErr) && remoteErr.Code == http.StatusNotFound
}
