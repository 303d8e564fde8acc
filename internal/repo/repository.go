// Package repo exposes the app-facing repository functions. Every read
// goes through the ephemeral cache and the record store; every write
// commits locally before any network I/O and reaches the backend either
// directly or through the durable sync queue.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/floridasonconsulting/quoteit-sync/internal/cache"
	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/logging"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/queue"
	"github.com/floridasonconsulting/quoteit-sync/internal/remote"
	"github.com/floridasonconsulting/quoteit-sync/internal/store"
	syncmgr "github.com/floridasonconsulting/quoteit-sync/internal/sync"
	"github.com/floridasonconsulting/quoteit-sync/internal/wire"
)

// remoteTimeout bounds direct remote calls made on the write and read
// paths. Queued replays use the sync manager's own timeout.
const remoteTimeout = 15 * time.Second

// Options configures a Repository.
type Options struct {
	DataDir string         // location of the sqlite database
	Backend remote.Backend // remote side; required
	Logger  *logging.Logger

	MaxStoreBytes int64          // 0 means the default quota
	CacheVersion  string         // "" means the current schema version
	SyncConfig    syncmgr.Config // zero fields take defaults
}

// GetOptions tunes a single read.
type GetOptions struct {
	ForceRefresh bool // bypass both caches and hit the backend
}

// UsageStats is the debug view over both storage layers.
type UsageStats struct {
	StoreBytes    int64 `json:"storeBytes"`
	StoreMaxBytes int64 `json:"storeMaxBytes"`
	CacheEntries  int   `json:"cacheEntries"`
	CacheBytes    int64 `json:"cacheBytes"`
}

// Repository owns the local store, the read cache, the sync queue and the
// sync manager, and is the only entry point the application uses.
type Repository struct {
	store   *store.Store
	cache   *cache.ReadCache
	queue   *queue.Queue
	manager *syncmgr.Manager
	backend remote.Backend
	logger  *logging.Logger
}

// New opens the local database and wires up the full stack. The returned
// repository starts offline; feed connectivity via SetOnline.
func New(opts Options) (*Repository, error) {
	if opts.Backend == nil {
		return nil, apperrors.New(apperrors.ErrInvalid, "repo: backend is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Get()
	}

	var storeOpts []store.Option
	if opts.MaxStoreBytes > 0 {
		storeOpts = append(storeOpts, store.WithMaxBytes(opts.MaxStoreBytes))
	}
	s, err := store.Open(opts.DataDir, storeOpts...)
	if err != nil {
		return nil, err
	}

	var cacheOpts []cache.Option
	if opts.CacheVersion != "" {
		cacheOpts = append(cacheOpts, cache.WithVersion(opts.CacheVersion))
	}

	q := queue.New(s.DB())
	r := &Repository{
		store:   s,
		cache:   cache.New(cacheOpts...),
		queue:   q,
		manager: syncmgr.New(s, q, opts.Backend, logger, opts.SyncConfig),
		backend: opts.Backend,
		logger:  logger,
	}
	return r, nil
}

// Start launches the background sync loop.
func (r *Repository) Start(ctx context.Context) {
	r.manager.Start(ctx)
}

// Close stops the sync loop and closes the local database.
func (r *Repository) Close() error {
	r.manager.Stop()
	return r.store.Close()
}

// =====================
// Sync surface
// =====================

// SetOnline feeds the connectivity signal through to the sync manager.
func (r *Repository) SetOnline(online bool) { r.manager.SetOnline(online) }

// Status returns the current sync status.
func (r *Repository) Status() models.SyncStatus { return r.manager.Status() }

// SyncNow triggers an immediate drain of the pending queue.
func (r *Repository) SyncNow(ctx context.Context) error { return r.manager.SyncNow(ctx) }

// Subscribe registers a status callback and returns its unsubscribe function.
func (r *Repository) Subscribe(fn func(models.SyncStatus)) func() { return r.manager.Subscribe(fn) }

// PendingChanges lists the pending queue in replay order.
func (r *Repository) PendingChanges() ([]models.QueueChange, error) { return r.queue.List() }

// FailedChanges lists the entries parked in the failed-queue.
func (r *Repository) FailedChanges() ([]models.FailedChange, error) { return r.queue.ListFailed() }

// RetryFailed requeues a failed entry with a fresh retry budget.
func (r *Repository) RetryFailed(seq int64) error { return r.queue.RetryFailed(seq) }

// DiscardFailed drops a failed entry permanently.
func (r *Repository) DiscardFailed(seq int64) error { return r.queue.DiscardFailed(seq) }

// Anomalies lists recorded conflict resolutions.
func (r *Repository) Anomalies() ([]models.SyncAnomaly, error) { return r.store.ListAnomalies() }

// =====================
// Maintenance surface
// =====================

// ClearAll wipes records, the pending queue and the failed-queue in one
// transaction, then drops the read cache. Partial clears are not possible.
func (r *Repository) ClearAll() error {
	err := r.store.Tx(func(tx *sql.Tx) error {
		if err := r.store.ClearRecordsTx(tx); err != nil {
			return err
		}
		return r.queue.ClearTx(tx)
	})
	if err != nil {
		return err
	}
	r.cache.Clear()
	r.logger.Info("local data cleared", nil)
	return nil
}

// Usage reports store quota consumption and cache size.
func (r *Repository) Usage() (UsageStats, error) {
	used, max, err := r.store.Usage()
	if err != nil {
		return UsageStats{}, err
	}
	entries, bytes := r.cache.Stats()
	return UsageStats{
		StoreBytes:    used,
		StoreMaxBytes: max,
		CacheEntries:  entries,
		CacheBytes:    bytes,
	}, nil
}

// ClearCache drops every cached list without touching the store. The next
// read repopulates from the backend or the store.
func (r *Repository) ClearCache() {
	r.cache.Clear()
}

// InvalidateCache drops a single cached list without touching the store.
func (r *Repository) InvalidateCache(table string, scope models.Scope) {
	r.cache.Invalidate(cacheKey(table, scope))
}

// =====================
// Shared read/write paths
// =====================

func cacheKey(table string, scope models.Scope) string {
	return table + ":" + scope.UserID + ":" + scope.OrgID
}

// list returns the client-shaped JSON array for one table and scope,
// following the read path: cache, then backend when online, then store.
// A remote failure degrades to store contents rather than an error.
func (r *Repository) list(ctx context.Context, table string, scope models.Scope, opts GetOptions) (json.RawMessage, error) {
	key := cacheKey(table, scope)

	if !opts.ForceRefresh {
		if raw, ok := r.cache.Get(key); ok {
			return raw, nil
		}
	}

	if r.manager.Online() {
		raw, err := r.refreshFromRemote(ctx, table, scope)
		if err == nil {
			r.cache.Set(key, raw)
			return raw, nil
		}
		r.logger.Warn("remote read failed, serving local records", map[string]interface{}{
			"table": table, "error": err.Error(),
		})
	}

	raw, err := r.listFromStore(table, scope)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, raw)
	return raw, nil
}

// refreshFromRemote fetches the authoritative rows and mirrors them into
// the record store.
func (r *Repository) refreshFromRemote(ctx context.Context, table string, scope models.Scope) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	rows, err := r.backend.Select(callCtx, table, scope)
	if err != nil {
		return nil, err
	}

	items := make([]json.RawMessage, 0, len(rows))
	now := time.Now().Unix()
	for _, row := range rows {
		clientJSON, err := wire.FromRow(table, row)
		if err != nil {
			return nil, err
		}
		rec := store.Record{
			ID:        models.UUID(row.ID()),
			Scope:     scope,
			Payload:   clientJSON,
			UpdatedAt: now,
		}
		if err := r.store.Put(table, rec); err != nil {
			return nil, err
		}
		items = append(items, clientJSON)
	}
	return marshalArray(items)
}

// listFromStore serves whatever the local store holds for the scope.
func (r *Repository) listFromStore(table string, scope models.Scope) (json.RawMessage, error) {
	records, err := r.store.Get(table, scope)
	if err != nil {
		return nil, err
	}
	items := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.Payload)
	}
	return marshalArray(items)
}

func marshalArray(items []json.RawMessage) (json.RawMessage, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode list", err)
	}
	return raw, nil
}

// write is the central local-first write path. The record commits to the
// store before any network I/O. When offline the record write and the
// queue append share one transaction; when an online remote call fails
// the already-committed write is followed by a queue append.
func (r *Repository) write(ctx context.Context, table string, op models.ChangeOp, id models.UUID, scope models.Scope, clientJSON json.RawMessage) error {
	var wirePayload json.RawMessage
	if op != models.OpDelete {
		row, err := wire.ToRow(table, clientJSON)
		if err != nil {
			return err
		}
		wirePayload, err = json.Marshal(row)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to encode change payload", err)
		}
	}

	rec := store.Record{ID: id, Scope: scope, Payload: clientJSON, UpdatedAt: time.Now().Unix()}

	if !r.manager.Online() {
		err := r.store.Tx(func(tx *sql.Tx) error {
			if op == models.OpDelete {
				if err := r.store.RemoveTx(tx, table, string(id)); err != nil {
					return err
				}
			} else {
				if err := r.store.PutTx(tx, table, rec); err != nil {
					return err
				}
			}
			return r.queue.EnqueueTx(tx, r.change(op, table, id, scope, wirePayload))
		})
		if err != nil {
			return err
		}
		r.cache.Invalidate(cacheKey(table, scope))
		return nil
	}

	// Online: commit locally first, then try the backend directly.
	if op == models.OpDelete {
		if err := r.store.Remove(table, string(id)); err != nil {
			return err
		}
	} else {
		if err := r.store.Put(table, rec); err != nil {
			return err
		}
	}
	r.cache.Invalidate(cacheKey(table, scope))

	if err := r.applyRemote(ctx, table, op, id, scope, wirePayload); err != nil {
		r.logger.Warn("direct remote write failed, queueing change", map[string]interface{}{
			"table": table, "op": string(op), "id": string(id), "error": err.Error(),
		})
		return r.queue.Enqueue(r.change(op, table, id, scope, wirePayload))
	}
	return nil
}

func (r *Repository) change(op models.ChangeOp, table string, id models.UUID, scope models.Scope, payload json.RawMessage) *models.QueueChange {
	return &models.QueueChange{
		ID:      id,
		Op:      op,
		Table:   table,
		Payload: payload,
		UserID:  scope.UserID,
		OrgID:   scope.OrgID,
	}
}

// applyRemote performs the direct remote call for an online write and
// mirrors server-assigned fields back into the store.
func (r *Repository) applyRemote(ctx context.Context, table string, op models.ChangeOp, id models.UUID, scope models.Scope, wirePayload json.RawMessage) error {
	callCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	if op == models.OpDelete {
		return r.backend.Delete(callCtx, table, string(id))
	}

	var row remote.Row
	if err := json.Unmarshal(wirePayload, &row); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to decode change payload", err)
	}

	var serverRow remote.Row
	var err error
	switch op {
	case models.OpCreate:
		serverRow, err = r.backend.Insert(callCtx, table, row)
	case models.OpUpdate:
		serverRow, err = r.backend.Update(callCtx, table, string(id), row)
	case models.OpUpsert:
		serverRow, err = r.backend.Upsert(callCtx, table, row)
	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown change op")
	}
	if err != nil {
		return err
	}

	if serverRow != nil {
		clientJSON, err := wire.FromRow(table, serverRow)
		if err != nil {
			return err
		}
		rec := store.Record{ID: id, Scope: scope, Payload: clientJSON, UpdatedAt: time.Now().Unix()}
		if err := r.store.Put(table, rec); err != nil {
			return err
		}
	}
	return nil
}
