package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/logging"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/queue"
	"github.com/floridasonconsulting/quoteit-sync/internal/remote"
	"github.com/floridasonconsulting/quoteit-sync/internal/store"
)

// recordedCall is one remote operation observed by the mock backend.
type recordedCall struct {
	Op    string
	Table string
	ID    string
}

// mockBackend records calls in order and answers via the respond hook.
type mockBackend struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(op, table, id string, row remote.Row) (remote.Row, error)
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		respond: func(op, table, id string, row remote.Row) (remote.Row, error) {
			return row, nil
		},
	}
}

func (b *mockBackend) record(op, table, id string, row remote.Row) (remote.Row, error) {
	b.mu.Lock()
	b.calls = append(b.calls, recordedCall{Op: op, Table: table, ID: id})
	respond := b.respond
	b.mu.Unlock()
	return respond(op, table, id, row)
}

func (b *mockBackend) Calls() []recordedCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedCall(nil), b.calls...)
}

func (b *mockBackend) Select(ctx context.Context, table string, scope models.Scope) ([]remote.Row, error) {
	_, err := b.record("select", table, "", nil)
	return []remote.Row{}, err
}

func (b *mockBackend) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	return b.record("create", table, row.ID(), row)
}

func (b *mockBackend) Update(ctx context.Context, table, id string, row remote.Row) (remote.Row, error) {
	return b.record("update", table, id, row)
}

func (b *mockBackend) Upsert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	return b.record("upsert", table, row.ID(), row)
}

func (b *mockBackend) Delete(ctx context.Context, table, id string) error {
	_, err := b.record("delete", table, id, nil)
	return err
}

// newTestManager wires a manager over a fresh store and queue.
func newTestManager(t *testing.T, backend remote.Backend) (*Manager, *store.Store, *queue.Queue) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	q := queue.New(s.DB())
	m := New(s, q, backend, nil, DefaultConfig())
	m.SetOnline(true)
	return m, s, q
}

func enqueue(t *testing.T, q *queue.Queue, id string, op models.ChangeOp, payload string) *models.QueueChange {
	t.Helper()
	ch := &models.QueueChange{
		ID:      models.UUID(id),
		Op:      op,
		Table:   models.TableCustomers,
		Payload: json.RawMessage(payload),
		UserID:  "u1",
	}
	if err := q.Enqueue(ch); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return ch
}

// TestDrainReplaysInInsertionOrder tests that offline mutations on the same
// entity replay against the backend in the order they were made.
func TestDrainReplaysInInsertionOrder(t *testing.T) {
	backend := newMockBackend()
	m, _, q := newTestManager(t, backend)

	enqueue(t, q, "c1", models.OpCreate, `{"id":"c1","name":"v1"}`)
	enqueue(t, q, "c1", models.OpUpdate, `{"id":"c1","name":"v2"}`)
	enqueue(t, q, "c1", models.OpUpdate, `{"id":"c1","name":"v3"}`)
	enqueue(t, q, "c1", models.OpDelete, ``)

	if err := m.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	wantOps := []string{"create", "update", "update", "delete"}
	calls := backend.Calls()
	if len(calls) != len(wantOps) {
		t.Fatalf("got %d remote calls, want %d", len(calls), len(wantOps))
	}
	for i, want := range wantOps {
		if calls[i].Op != want {
			t.Errorf("call %d = %s, want %s", i, calls[i].Op, want)
		}
	}

	if n, _ := q.Len(); n != 0 {
		t.Errorf("queue len after drain = %d, want 0", n)
	}
}

// TestPoisonEntryIsolation tests that a permanently failing entry lands in
// the failed-queue alone while entries before and after it confirm.
func TestPoisonEntryIsolation(t *testing.T) {
	backend := newMockBackend()
	backend.respond = func(op, table, id string, row remote.Row) (remote.Row, error) {
		if id == "poison" {
			return nil, remote.NewError(422, "unprocessable")
		}
		return row, nil
	}
	m, _, q := newTestManager(t, backend)

	enqueue(t, q, "a", models.OpCreate, `{"id":"a"}`)
	enqueue(t, q, "poison", models.OpCreate, `{"id":"poison"}`)
	enqueue(t, q, "c", models.OpCreate, `{"id":"c"}`)

	if err := m.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	if n, _ := q.Len(); n != 0 {
		t.Errorf("pending len = %d, want 0", n)
	}
	failed, _ := q.ListFailed()
	if len(failed) != 1 || failed[0].ID != "poison" {
		t.Fatalf("failed queue = %+v, want only the poison entry", failed)
	}

	// a and c both reached the backend.
	var confirmed []string
	for _, c := range backend.Calls() {
		confirmed = append(confirmed, c.ID)
	}
	if len(confirmed) != 3 || confirmed[0] != "a" || confirmed[2] != "c" {
		t.Errorf("call order = %v, want a, poison, c", confirmed)
	}
}

// TestTransientFailureStopsRound tests that a transient failure keeps the
// entry at the front and does not drain later entries out of order.
func TestTransientFailureStopsRound(t *testing.T) {
	backend := newMockBackend()
	backend.respond = func(op, table, id string, row remote.Row) (remote.Row, error) {
		return nil, remote.NewError(503, "unavailable")
	}
	m, _, q := newTestManager(t, backend)

	enqueue(t, q, "c1", models.OpCreate, `{"id":"c1"}`)
	enqueue(t, q, "c2", models.OpCreate, `{"id":"c2"}`)

	if err := m.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	if len(backend.Calls()) != 1 {
		t.Errorf("remote calls = %d, want 1 (round stops at first transient failure)", len(backend.Calls()))
	}
	if n, _ := q.Len(); n != 2 {
		t.Errorf("pending len = %d, want 2 (nothing confirmed)", n)
	}
	front, _ := q.Peek()
	if front.ID != "c1" || front.RetryCount != 1 {
		t.Errorf("front = %+v, want c1 with retry count 1", front)
	}
}

// TestRetryBudgetExhaustionMovesToFailed tests the PENDING to FAILED
// transition after MaxAttempts transient failures.
func TestRetryBudgetExhaustionMovesToFailed(t *testing.T) {
	backend := newMockBackend()
	backend.respond = func(op, table, id string, row remote.Row) (remote.Row, error) {
		return nil, remote.NewError(500, "boom")
	}
	m, _, q := newTestManager(t, backend)
	m.cfg.MaxAttempts = 3
	m.cfg.BackoffBase = time.Millisecond

	enqueue(t, q, "c1", models.OpCreate, `{"id":"c1"}`)

	// Each round marks one more retry; the third moves it to failed.
	for i := 0; i < 3; i++ {
		if err := m.SyncNow(context.Background()); err != nil {
			t.Fatalf("SyncNow round %d failed: %v", i, err)
		}
	}

	if n, _ := q.Len(); n != 0 {
		t.Errorf("pending len = %d, want 0", n)
	}
	failed, _ := q.ListFailed()
	if len(failed) != 1 {
		t.Fatalf("failed len = %d, want 1", len(failed))
	}
	if failed[0].RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", failed[0].RetryCount)
	}
}

// TestAtMostOneConcurrentDrain tests that a second trigger during an
// in-flight drain is a no-op.
func TestAtMostOneConcurrentDrain(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	backend := newMockBackend()
	backend.respond = func(op, table, id string, row remote.Row) (remote.Row, error) {
		entered <- struct{}{}
		<-release
		return row, nil
	}
	m, _, q := newTestManager(t, backend)

	enqueue(t, q, "c1", models.OpCreate, `{"id":"c1"}`)

	done := make(chan error, 1)
	go func() { done <- m.SyncNow(context.Background()) }()

	<-entered // first drain is now mid-call

	// Second trigger must return immediately without a second drain.
	if err := m.SyncNow(context.Background()); err != nil {
		t.Errorf("second trigger returned error: %v", err)
	}
	if got := len(backend.Calls()); got != 1 {
		t.Errorf("remote calls during overlap = %d, want 1", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first drain failed: %v", err)
	}
	if got := len(backend.Calls()); got != 1 {
		t.Errorf("total remote calls = %d, want 1", got)
	}
}

// TestSyncNowWhileOffline tests that a manual trigger surfaces OFFLINE.
func TestSyncNowWhileOffline(t *testing.T) {
	m, _, q := newTestManager(t, newMockBackend())
	m.SetOnline(false)

	enqueue(t, q, "c1", models.OpCreate, `{"id":"c1"}`)

	err := m.SyncNow(context.Background())
	if !apperrors.Is(err, apperrors.ErrOffline) {
		t.Errorf("error = %v, want OFFLINE", err)
	}
	if n, _ := q.Len(); n != 1 {
		t.Errorf("pending len = %d, want 1 (nothing drained)", n)
	}
}

// TestDeleteWinsOverQueuedUpdate tests the reconciliation rule for an
// update racing a remote delete: the record goes away locally, the queue
// entry confirms, and a durable anomaly is recorded.
func TestDeleteWinsOverQueuedUpdate(t *testing.T) {
	backend := newMockBackend()
	backend.respond = func(op, table, id string, row remote.Row) (remote.Row, error) {
		if op == "update" {
			return nil, remote.NewError(404, "row gone")
		}
		return row, nil
	}
	m, s, q := newTestManager(t, backend)

	// Local copy exists from before the remote delete.
	s.Put(models.TableCustomers, store.Record{
		ID: "c1", Scope: models.Scope{UserID: "u1"},
		Payload: json.RawMessage(`{"id":"c1","name":"stale"}`), UpdatedAt: 1,
	})
	enqueue(t, q, "c1", models.OpUpdate, `{"id":"c1","name":"newer"}`)

	if err := m.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	if n, _ := q.Len(); n != 0 {
		t.Errorf("pending len = %d, want 0 (entry confirmed, not failed)", n)
	}
	if n, _ := q.FailedLen(); n != 0 {
		t.Errorf("failed len = %d, want 0", n)
	}
	records, _ := s.Get(models.TableCustomers, models.Scope{UserID: "u1"})
	if len(records) != 0 {
		t.Errorf("local record survived a winning remote delete")
	}
	anomalies, _ := s.ListAnomalies()
	if len(anomalies) != 1 || anomalies[0].Kind != models.AnomalyUpdateAfterDelete {
		t.Errorf("anomalies = %+v, want one update_after_delete entry", anomalies)
	}
}

// TestServerFieldsMirroredToStore tests that server-assigned fields come
// back into the local record after confirmation.
func TestServerFieldsMirroredToStore(t *testing.T) {
	backend := newMockBackend()
	backend.respond = func(op, table, id string, row remote.Row) (remote.Row, error) {
		echoed := remote.Row{}
		for k, v := range row {
			echoed[k] = v
		}
		echoed["updated_at"] = float64(1_700_000_099)
		return echoed, nil
	}
	m, s, q := newTestManager(t, backend)

	enqueue(t, q, "c1", models.OpCreate, `{"id":"c1","name":"Acme"}`)

	if err := m.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	records, _ := s.Get(models.TableCustomers, models.Scope{UserID: "u1"})
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	var got map[string]interface{}
	json.Unmarshal(records[0].Payload, &got)
	if got["updatedAt"] != float64(1_700_000_099) {
		t.Errorf("mirrored record = %v, want server updatedAt", got)
	}
}

// TestStatusTransitionsDuringDrain tests the pendingCount 1 to 0 transition
// and the isSyncing pulse, observed through a subscription.
func TestStatusTransitionsDuringDrain(t *testing.T) {
	backend := newMockBackend()
	m, _, q := newTestManager(t, backend)

	enqueue(t, q, "c1", models.OpCreate, `{"id":"c1"}`)

	if got := m.Status(); got.PendingCount != 1 || got.IsSyncing {
		t.Fatalf("status before drain = %+v, want pending 1, not syncing", got)
	}

	var mu sync.Mutex
	var sawSyncing bool
	var last models.SyncStatus
	unsubscribe := m.Subscribe(func(st models.SyncStatus) {
		mu.Lock()
		defer mu.Unlock()
		if st.IsSyncing {
			sawSyncing = true
		}
		last = st
	})
	defer unsubscribe()

	if err := m.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !sawSyncing {
		t.Error("subscribers never saw isSyncing=true")
	}
	if last.PendingCount != 0 || last.IsSyncing {
		t.Errorf("final status = %+v, want pending 0, not syncing", last)
	}
}

// TestUnsubscribeStopsCallbacks tests the subscription lifecycle.
func TestUnsubscribeStopsCallbacks(t *testing.T) {
	m, _, _ := newTestManager(t, newMockBackend())

	calls := 0
	unsubscribe := m.Subscribe(func(models.SyncStatus) { calls++ })

	m.SetOnline(false) // publishes
	if calls == 0 {
		t.Fatal("subscriber not called on status change")
	}

	unsubscribe()
	before := calls
	m.SetOnline(true)
	if calls != before {
		t.Error("subscriber called after unsubscribe")
	}
}

// TestStatusLogsQueueReadFailure tests that a broken queue surfaces in the
// log instead of silently reporting zero counts.
func TestStatusLogsQueueReadFailure(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	q := queue.New(s.DB())

	var buf bytes.Buffer
	m := New(s, q, newMockBackend(), logging.New(&buf, logging.LevelDebug), DefaultConfig())

	s.Close() // every queue read now fails

	st := m.Status()
	if st.PendingCount != 0 || st.FailedCount != 0 {
		t.Errorf("status over broken queue = %+v, want zero counts", st)
	}
	if !strings.Contains(buf.String(), "failed to read pending count") {
		t.Errorf("log = %q, want the queue read failure recorded", buf.String())
	}
}

// TestBackoffCurve tests the capped exponential delay schedule.
func TestBackoffCurve(t *testing.T) {
	m := &Manager{cfg: Config{BackoffBase: 2 * time.Second, BackoffCap: 5 * time.Minute}}

	want := []time.Duration{
		2 * time.Second,  // attempt 1
		4 * time.Second,  // attempt 2
		8 * time.Second,  // attempt 3
		16 * time.Second, // attempt 4
	}
	for i, w := range want {
		if got := m.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := m.backoff(30); got != 5*time.Minute {
		t.Errorf("backoff(30) = %v, want capped at 5m", got)
	}
}

// TestUndecodablePayloadIsPoison tests that a corrupt queue payload moves
// to the failed-queue instead of blocking the drain forever.
func TestUndecodablePayloadIsPoison(t *testing.T) {
	backend := newMockBackend()
	m, _, q := newTestManager(t, backend)

	enqueue(t, q, "bad", models.OpCreate, `{corrupt`)
	enqueue(t, q, "ok", models.OpCreate, `{"id":"ok"}`)

	if err := m.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow failed: %v", err)
	}

	failed, _ := q.ListFailed()
	if len(failed) != 1 || failed[0].ID != "bad" {
		t.Errorf("failed = %+v, want only the corrupt entry", failed)
	}
	if n, _ := q.Len(); n != 0 {
		t.Errorf("pending len = %d, want 0 (the healthy entry drained)", n)
	}
	if fmt.Sprint(backend.Calls()) != "[{create customers ok}]" {
		t.Errorf("backend calls = %v, want only the healthy create", backend.Calls())
	}
}
