// Package remote defines the boundary to the authoritative backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/floridasonconsulting/quoteit-sync/internal/models"
)

// HTTPBackend talks to a PostgREST-style table API: one resource per table
// under /rest/v1, filters as query parameters, mutated rows echoed back
// with Prefer: return=representation.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPConfig configures an HTTPBackend.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per-request cap in addition to the caller's context
}

// NewHTTPBackend creates an HTTPBackend.
func NewHTTPBackend(cfg HTTPConfig) *HTTPBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Select implements Backend.Select.
func (b *HTTPBackend) Select(ctx context.Context, table string, scope models.Scope) ([]Row, error) {
	query := url.Values{}
	if scope.OrgID != "" {
		query.Set("or", fmt.Sprintf("(user_id.eq.%s,org_id.eq.%s)", scope.UserID, scope.OrgID))
	} else {
		query.Set("user_id", "eq."+scope.UserID)
	}

	var rows []Row
	if err := b.do(ctx, http.MethodGet, table, query, nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

// Insert implements Backend.Insert.
func (b *HTTPBackend) Insert(ctx context.Context, table string, row Row) (Row, error) {
	return b.writeOne(ctx, http.MethodPost, table, nil, row, nil)
}

// Update implements Backend.Update.
func (b *HTTPBackend) Update(ctx context.Context, table, id string, row Row) (Row, error) {
	query := url.Values{}
	query.Set("id", "eq."+id)
	return b.writeOne(ctx, http.MethodPatch, table, query, row, nil)
}

// Upsert implements Backend.Upsert.
func (b *HTTPBackend) Upsert(ctx context.Context, table string, row Row) (Row, error) {
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=representation"}
	return b.writeOne(ctx, http.MethodPost, table, nil, row, headers)
}

// Delete implements Backend.Delete.
func (b *HTTPBackend) Delete(ctx context.Context, table, id string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)
	err := b.do(ctx, http.MethodDelete, table, query, nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// writeOne sends a mutation and decodes the single echoed row.
func (b *HTTPBackend) writeOne(ctx context.Context, method, table string, query url.Values, row Row, headers map[string]string) (Row, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}

	var rows []Row
	if err := b.doWithHeaders(ctx, method, table, query, body, &rows, headers); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// Backend accepted the write but returned no representation;
		// echo the input so callers still have a row to mirror.
		return row, nil
	}
	return rows[0], nil
}

// do is doWithHeaders without extra headers.
func (b *HTTPBackend) do(ctx context.Context, method, table string, query url.Values, body []byte, out interface{}) error {
	return b.doWithHeaders(ctx, method, table, query, body, out, nil)
}

// doWithHeaders performs one request against the table endpoint and decodes
// the JSON response into out if out is non-nil.
func (b *HTTPBackend) doWithHeaders(ctx context.Context, method, table string, query url.Values, body []byte, out interface{}, headers map[string]string) error {
	endpoint := b.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("apikey", b.apiKey)
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	if method == http.MethodPost || method == http.MethodPatch {
		if _, ok := headers["Prefer"]; !ok {
			req.Header.Set("Prefer", "return=representation")
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readError turns a non-2xx response into a structured *Error.
func readError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	message := strings.TrimSpace(string(payload))
	if err := json.Unmarshal(payload, &parsed); err == nil && parsed.Message != "" {
		message = parsed.Message
	}
	if message == "" {
		message = resp.Status
	}

	return NewError(resp.StatusCode, message)
}
