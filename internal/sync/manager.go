// Package sync provides the sync manager: the single component that drains
// the durable queue against the remote backend, retries transient failures
// with capped exponential backoff, isolates poison entries in the
// failed-queue, and publishes sync status to subscribers. Only the manager
// dequeues; repositories append.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/logging"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/queue"
	"github.com/floridasonconsulting/quoteit-sync/internal/remote"
	"github.com/floridasonconsulting/quoteit-sync/internal/store"
	"github.com/floridasonconsulting/quoteit-sync/internal/wire"
)

// Config holds the manager's retry and scheduling parameters.
type Config struct {
	Interval    time.Duration // periodic drain cadence
	CallTimeout time.Duration // bound on each remote call in the drain loop
	MaxAttempts int           // attempts per entry before it moves to the failed-queue
	BackoffBase time.Duration // first retry delay; doubles per attempt
	BackoffCap  time.Duration // ceiling on the retry delay
}

// DefaultConfig returns the default manager configuration: 5 attempts with
// a 2s..5m capped exponential backoff, 15s per remote call, 30s cadence.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		CallTimeout: 15 * time.Second,
		MaxAttempts: 5,
		BackoffBase: 2 * time.Second,
		BackoffCap:  5 * time.Minute,
	}
}

// Manager drives convergence between the sync queue and the remote backend.
type Manager struct {
	store   *store.Store
	queue   *queue.Queue
	backend remote.Backend
	logger  *logging.Logger
	cfg     Config

	mu          sync.Mutex
	online      bool
	syncing     bool
	nextAttempt time.Time // backoff gate for periodic drains
	subs        map[int]func(models.SyncStatus)
	nextSubID   int
	running     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
	now         func() time.Time
}

// New creates a Manager. The manager starts offline; the connectivity
// signal arrives via SetOnline.
func New(s *store.Store, q *queue.Queue, backend remote.Backend, logger *logging.Logger, cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultConfig().BackoffCap
	}
	if logger == nil {
		logger = logging.Get()
	}
	return &Manager{
		store:   s,
		queue:   q,
		backend: backend,
		logger:  logger,
		cfg:     cfg,
		subs:    make(map[int]func(models.SyncStatus)),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// Start launches the periodic drain loop. Calling Start on a running
// manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("sync manager started", map[string]interface{}{
		"interval":     m.cfg.Interval.String(),
		"max_attempts": m.cfg.MaxAttempts,
	})
}

// Stop halts the periodic loop and waits for it to exit. Draining is safe
// to interrupt: queue state is durable at every step.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("sync manager stopped", nil)
}

// loop drains on a timer while online, respecting the backoff gate.
func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			ready := m.online && m.now().After(m.nextAttempt)
			m.mu.Unlock()
			if ready {
				if err := m.SyncNow(ctx); err != nil && !apperrors.Is(err, apperrors.ErrOffline) {
					m.logger.Warn("periodic drain failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}
}

// SetOnline feeds the external connectivity signal. Transitioning to
// online triggers an immediate drain.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	running := m.running
	m.mu.Unlock()

	if wasOnline != online {
		m.logger.Info("connectivity changed", map[string]interface{}{"online": online})
		m.publish()
	}

	if online && !wasOnline && running {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			m.SyncNow(ctx)
		}()
	}
}

// Online reports the last connectivity signal received.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Status returns the current derived sync status. Queue read failures are
// logged and reported as zero counts rather than failing the caller.
func (m *Manager) Status() models.SyncStatus {
	pending, err := m.queue.Len()
	if err != nil {
		m.logger.Error("failed to read pending count", err, nil)
	}
	failed, err := m.queue.FailedLen()
	if err != nil {
		m.logger.Error("failed to read failed count", err, nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return models.SyncStatus{
		IsOnline:     m.online,
		IsSyncing:    m.syncing,
		PendingCount: pending,
		FailedCount:  failed,
	}
}

// Subscribe registers a status callback and returns its unsubscribe
// function. Callbacks run synchronously on the publishing goroutine and
// must not block.
func (m *Manager) Subscribe(fn func(models.SyncStatus)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// publish pushes the current status to all subscribers.
func (m *Manager) publish() {
	status := m.Status()

	m.mu.Lock()
	fns := make([]func(models.SyncStatus), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
}

// SyncNow drains the queue once, front to back. A second trigger while a
// drain is in progress is a no-op. Manual triggers bypass the backoff gate.
func (m *Manager) SyncNow(ctx context.Context) error {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		return nil
	}
	if !m.online {
		m.mu.Unlock()
		return apperrors.New(apperrors.ErrOffline, "cannot sync while offline")
	}
	m.syncing = true
	m.mu.Unlock()

	m.publish()
	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
		m.publish()
	}()

	return m.drain(ctx)
}

// drain processes queue entries in insertion order until the queue empties,
// a transient failure stops the round, or the context is done.
func (m *Manager) drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ch, err := m.queue.Peek()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrSyncFailed, "failed to read queue front", err)
		}
		if ch == nil {
			return nil
		}

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		serverRow, callErr := m.apply(callCtx, ch)
		cancel()

		switch {
		case callErr == nil:
			if err := m.confirm(ch, serverRow); err != nil {
				return err
			}

		case remote.IsNotFound(callErr) && (ch.Op == models.OpUpdate || ch.Op == models.OpUpsert):
			// The record was deleted remotely after this change was queued.
			// The delete wins; the local copy goes away and the outcome is
			// recorded as an anomaly, not a failure.
			if err := m.resolveDeleteWins(ch); err != nil {
				return err
			}

		case remote.IsTransient(callErr):
			stop, err := m.handleTransient(ch, callErr)
			if err != nil {
				return err
			}
			if stop {
				// Leave the entry at the front: draining past it would
				// reorder the replay.
				return nil
			}

		default: // permanent rejection: isolate and keep draining
			m.logger.Warn("change rejected permanently", map[string]interface{}{
				"seq": ch.Seq, "table": ch.Table, "op": string(ch.Op), "error": callErr.Error(),
			})
			if err := m.queue.MoveToFailed(ch.Seq, callErr.Error()); err != nil {
				return err
			}
			m.publish()
		}
	}
}

// apply performs the remote operation for one queued change.
func (m *Manager) apply(ctx context.Context, ch *models.QueueChange) (remote.Row, error) {
	if ch.Op == models.OpDelete {
		return nil, m.backend.Delete(ctx, ch.Table, string(ch.ID))
	}

	var row remote.Row
	if err := json.Unmarshal(ch.Payload, &row); err != nil {
		// A payload that cannot even decode is a poison entry.
		return nil, remote.NewError(400, fmt.Sprintf("undecodable payload: %v", err))
	}

	switch ch.Op {
	case models.OpCreate:
		return m.backend.Insert(ctx, ch.Table, row)
	case models.OpUpdate:
		return m.backend.Update(ctx, ch.Table, string(ch.ID), row)
	case models.OpUpsert:
		return m.backend.Upsert(ctx, ch.Table, row)
	}
	return nil, remote.NewError(400, fmt.Sprintf("unknown op %q", ch.Op))
}

// confirm removes the entry and mirrors server-assigned fields back into
// the record store.
func (m *Manager) confirm(ch *models.QueueChange, serverRow remote.Row) error {
	if ch.Op == models.OpDelete {
		if err := m.store.Remove(ch.Table, string(ch.ID)); err != nil {
			return err
		}
	} else if serverRow != nil {
		clientJSON, err := wire.FromRow(ch.Table, serverRow)
		if err != nil {
			return err
		}
		rec := store.Record{
			ID:        ch.ID,
			Scope:     ch.Scope(),
			Payload:   clientJSON,
			UpdatedAt: m.now().Unix(),
		}
		if err := m.store.Put(ch.Table, rec); err != nil {
			return err
		}
	}

	if err := m.queue.Confirm(ch.Seq); err != nil {
		return err
	}

	m.logger.Debug("change confirmed", map[string]interface{}{
		"seq": ch.Seq, "table": ch.Table, "op": string(ch.Op),
	})
	m.publish()
	return nil
}

// resolveDeleteWins applies the delete-wins rule for a change that raced a
// remote delete.
func (m *Manager) resolveDeleteWins(ch *models.QueueChange) error {
	if err := m.store.Remove(ch.Table, string(ch.ID)); err != nil {
		return err
	}
	if err := m.queue.Confirm(ch.Seq); err != nil {
		return err
	}
	anomaly := &models.SyncAnomaly{
		Table:    ch.Table,
		EntityID: ch.ID,
		Kind:     models.AnomalyUpdateAfterDelete,
		Detail:   fmt.Sprintf("queued %s discarded: record deleted remotely", ch.Op),
	}
	if err := m.store.RecordAnomaly(anomaly); err != nil {
		return err
	}
	m.logger.Warn("queued change lost to remote delete", map[string]interface{}{
		"table": ch.Table, "id": string(ch.ID), "op": string(ch.Op),
	})
	m.publish()
	return nil
}

// handleTransient bumps the retry counter; the entry either stays pending
// (stop=true ends this round with the queue order intact) or, once the
// attempt budget is spent, moves to the failed-queue (stop=false).
func (m *Manager) handleTransient(ch *models.QueueChange, callErr error) (stop bool, err error) {
	count, err := m.queue.MarkRetry(ch.Seq, callErr.Error())
	if err != nil {
		return false, err
	}

	if count >= m.cfg.MaxAttempts {
		m.logger.Warn("retry budget exhausted", map[string]interface{}{
			"seq": ch.Seq, "attempts": count, "error": callErr.Error(),
		})
		if err := m.queue.MoveToFailed(ch.Seq, fmt.Sprintf("gave up after %d attempts: %v", count, callErr)); err != nil {
			return false, err
		}
		m.publish()
		return false, nil
	}

	delay := m.backoff(count)
	m.mu.Lock()
	m.nextAttempt = m.now().Add(delay)
	m.mu.Unlock()

	m.logger.Debug("transient failure, will retry", map[string]interface{}{
		"seq": ch.Seq, "attempt": count, "delay": delay.String(), "error": callErr.Error(),
	})
	return true, nil
}

// backoff returns the capped exponential delay for the given attempt count.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.BackoffCap {
			return m.cfg.BackoffCap
		}
	}
	if delay > m.cfg.BackoffCap {
		return m.cfg.BackoffCap
	}
	return delay
}
