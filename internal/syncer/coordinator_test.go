package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hpungsan/snapfood/internal/connectivity"
	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/kv"
	"github.com/hpungsan/snapfood/internal/nutrition"
	"github.com/hpungsan/snapfood/internal/queue"
	"github.com/hpungsan/snapfood/internal/scan"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSink can be told to succeed, fail or hang per record id.
type fakeSink struct {
	mu        sync.Mutex
	submitted []string
	inFlight  int
	maxFlight int
	fail      map[string]error
	hang      map[string]bool
	entered   chan string
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		fail:    make(map[string]error),
		hang:    make(map[string]bool),
		entered: make(chan string, 64),
	}
}

func (s *fakeSink) Submit(ctx context.Context, rec scan.Record) error {
	s.mu.Lock()
	s.submitted = append(s.submitted, rec.ID)
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	err := s.fail[rec.ID]
	hang := s.hang[rec.ID]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	s.entered <- rec.ID
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *fakeSink) setFail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, id)
		return
	}
	s.fail[id] = err
}

func (s *fakeSink) setHang(id string, hang bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang[id] = hang
}

func (s *fakeSink) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.submitted...)
}

type harness struct {
	queue   *queue.Queue
	store   *kv.Memory
	monitor *connectivity.Monitor
	sink    *fakeSink
	coord   *Coordinator
}

func newHarness(t *testing.T, opts Options, ids ...string) *harness {
	t.Helper()
	store := kv.NewMemory()
	q := queue.New(store, nil)

	profile, err := nutrition.NewProfile(map[string]float64{"sodium": 500})
	if err != nil {
		t.Fatalf("NewProfile() error = %v", err)
	}
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, id := range ids {
		result := nutrition.Evaluate(profile, nutrition.Hypertensive)
		rec := scan.Record{
			ID:              id,
			Nutrients:       profile,
			Condition:       nutrition.Hypertensive,
			Flags:           result.Flags,
			Recommendations: result.Recommendations,
			CreatedAt:       base.Add(time.Duration(i) * time.Second),
			SyncState:       scan.StatePending,
		}
		if _, err := q.Enqueue(rec); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	h := &harness{
		queue:   q,
		store:   store,
		monitor: connectivity.NewMonitor(true, nil),
		sink:    newFakeSink(),
	}
	if opts.Backoff == 0 {
		opts.Backoff = time.Hour
	}
	h.coord = New(q, h.sink, h.monitor, opts)
	h.coord.Start(context.Background())
	t.Cleanup(h.coord.Close)
	return h
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coord.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
}

func (h *harness) expectEntered(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-h.sink.entered:
		if got != want {
			t.Fatalf("submitted %s, want %s", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for submit of %s", want)
	}
}

func queueIDs(q *queue.Queue) []string {
	var out []string
	for _, r := range q.Snapshot() {
		out = append(out, r.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDrain_SubmitsInOrder(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1", "r2", "r3", "r4")

	if got := h.coord.RequestSync(); got != TriggerAccepted {
		t.Fatalf("RequestSync() = %q, want accepted", got)
	}
	h.waitIdle(t)

	if got := h.sink.calls(); !equalIDs(got, []string{"r1", "r2", "r3", "r4"}) {
		t.Errorf("submit order = %v", got)
	}
	if h.sink.maxFlight != 1 {
		t.Errorf("max concurrent submits = %d, want 1", h.sink.maxFlight)
	}
	if h.queue.Len() != 0 {
		t.Errorf("queue Len() = %d, want 0", h.queue.Len())
	}

	st := h.coord.Status()
	if st.LastSyncResult != ResultCompleted || st.LastSynced != 4 || st.State != StateIdle {
		t.Errorf("Status() = %+v", st)
	}
	if st.LastSyncAt == nil {
		t.Error("LastSyncAt not set")
	}

	data, _, _ := h.store.Load(kv.KeyPendingScans)
	if string(data) != "[]" {
		t.Errorf("persisted snapshot = %s, want []", data)
	}
}

func TestDrain_StopsAtFirstFailure(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1", "r2", "r3", "r4", "r5")
	h.sink.setFail("r3", fmt.Errorf("502 bad gateway"))

	h.coord.RequestSync()
	h.waitIdle(t)

	if got := h.sink.calls(); !equalIDs(got, []string{"r1", "r2", "r3"}) {
		t.Errorf("submitted = %v, want r1..r3 only", got)
	}
	if got := queueIDs(h.queue); !equalIDs(got, []string{"r3", "r4", "r5"}) {
		t.Fatalf("queue = %v, want [r3 r4 r5]", got)
	}

	snap := h.queue.Snapshot()
	if snap[0].SyncState != scan.StateFailed {
		t.Errorf("r3 state = %q, want failed", snap[0].SyncState)
	}
	for _, r := range snap[1:] {
		if r.SyncState != scan.StatePending {
			t.Errorf("%s state = %q, want pending", r.ID, r.SyncState)
		}
	}

	st := h.coord.Status()
	if st.LastSyncResult != ResultPartiallyFailed {
		t.Errorf("LastSyncResult = %q", st.LastSyncResult)
	}
	if st.PendingCount != 3 || st.ConsecutiveFailures != 1 || !st.RetryScheduled {
		t.Errorf("Status() = %+v", st)
	}
	if st.LastError == "" {
		t.Error("LastError empty after failure")
	}
}

func TestDrain_OfflineMidCycleRevertsToPending(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1", "r2", "r3")
	h.sink.setHang("r2", true)
	before := h.queue.Len()

	h.coord.RequestSync()
	h.expectEntered(t, "r1")
	h.expectEntered(t, "r2")

	rec, ok := h.queue.Get("r2")
	if !ok || rec.SyncState != scan.StateSyncing {
		t.Fatalf("r2 = %q, %v; want syncing", rec.SyncState, ok)
	}
	if err := h.queue.Remove("r2"); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("Remove(syncing) error = %v, want CONFLICT", err)
	}

	h.monitor.Set(false)
	h.waitIdle(t)

	rec, _ = h.queue.Get("r2")
	if rec.SyncState != scan.StatePending {
		t.Errorf("r2 state = %q, want pending", rec.SyncState)
	}
	if got := queueIDs(h.queue); !equalIDs(got, []string{"r2", "r3"}) {
		t.Errorf("queue = %v, want [r2 r3]", got)
	}
	if h.queue.Len() != before-1 {
		t.Errorf("pending = %d, want %d (only r1 delivered)", h.queue.Len(), before-1)
	}
	if st := h.coord.Status(); st.LastSyncResult != ResultAborted || st.ConsecutiveFailures != 0 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestDrain_OfflineBeforeFirstSubmitKeepsPendingCount(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1", "r2")
	h.sink.setHang("r1", true)

	h.coord.RequestSync()
	h.expectEntered(t, "r1")
	h.monitor.Set(false)
	h.waitIdle(t)

	if h.queue.Len() != 2 {
		t.Errorf("pending = %d, want 2", h.queue.Len())
	}
	for _, r := range h.queue.Snapshot() {
		if r.SyncState != scan.StatePending {
			t.Errorf("%s state = %q, want pending", r.ID, r.SyncState)
		}
	}
}

func TestRequestSync_CoalescesWhileDraining(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1")
	h.sink.setHang("r1", true)

	h.coord.RequestSync()
	h.expectEntered(t, "r1")

	for i := 0; i < 5; i++ {
		if got := h.coord.RequestSync(); got != TriggerAlreadyDraining {
			t.Fatalf("RequestSync() during drain = %q, want already_draining", got)
		}
	}
	if st := h.coord.Status(); st.State != StateDraining {
		t.Errorf("State = %q, want draining", st.State)
	}

	// Abort the first cycle; the single coalesced rerun then finds the
	// monitor offline.
	h.monitor.Set(false)
	h.waitIdle(t)

	st := h.coord.Status()
	if st.Cycles != 2 {
		t.Errorf("Cycles = %d, want 2 (one cycle plus one coalesced rerun)", st.Cycles)
	}
	if st.LastSyncResult != ResultOffline {
		t.Errorf("LastSyncResult = %q, want offline", st.LastSyncResult)
	}
}

func TestConnectivity_OnlineTransitionTriggersDrain(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1", "r2")
	h.monitor.Set(false)

	if got := h.coord.RequestSync(); got != TriggerAccepted {
		t.Fatalf("RequestSync() = %q", got)
	}
	h.waitIdle(t)
	if st := h.coord.Status(); st.LastSyncResult != ResultOffline || st.PendingCount != 2 {
		t.Fatalf("offline Status() = %+v", st)
	}

	h.monitor.Set(true)
	h.waitIdle(t)

	if h.queue.Len() != 0 {
		t.Errorf("queue Len() = %d after reconnect, want 0", h.queue.Len())
	}
}

func TestRetry_BoundedThenPersistentFailure(t *testing.T) {
	h := newHarness(t, Options{Backoff: 5 * time.Millisecond, MaxRetries: 2}, "r1", "r2")
	h.sink.setFail("r1", fmt.Errorf("connection refused"))

	h.coord.RequestSync()

	deadline := time.Now().Add(5 * time.Second)
	for {
		st := h.coord.Status()
		if st.PersistentFailure && st.State == StateIdle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no persistent failure, Status() = %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	st := h.coord.Status()
	if st.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", st.ConsecutiveFailures)
	}
	if st.RetryScheduled {
		t.Error("RetryScheduled after persistent failure")
	}
	if st.PendingCount != 2 {
		t.Errorf("PendingCount = %d, want 2 (records are never dropped)", st.PendingCount)
	}

	time.Sleep(30 * time.Millisecond)
	if got := len(h.sink.calls()); got != 3 {
		t.Errorf("submits = %d, want 3 (initial + 2 retries)", got)
	}

	// Recovery resets the failure signal.
	h.sink.setFail("r1", nil)
	h.coord.RequestSync()
	h.waitIdle(t)
	st = h.coord.Status()
	if st.PersistentFailure || st.ConsecutiveFailures != 0 || st.PendingCount != 0 {
		t.Errorf("Status() after recovery = %+v", st)
	}
}

func TestRetry_CancelledByOffline(t *testing.T) {
	h := newHarness(t, Options{Backoff: time.Hour, MaxRetries: 3}, "r1")
	h.sink.setFail("r1", fmt.Errorf("boom"))

	h.coord.RequestSync()
	h.waitIdle(t)
	if !h.coord.Status().RetryScheduled {
		t.Fatal("RetryScheduled = false after failure")
	}

	h.monitor.Set(false)
	if h.coord.Status().RetryScheduled {
		t.Error("RetryScheduled still set after going offline")
	}
}

func TestRetry_StaleTimerDoesNotClearNewer(t *testing.T) {
	h := newHarness(t, Options{Backoff: time.Hour, MaxRetries: 3})

	h.coord.mu.Lock()
	h.coord.scheduleRetryLocked(ResultPartiallyFailed)
	stale := h.coord.retryGen
	h.coord.scheduleRetryLocked(ResultPartiallyFailed)
	current := h.coord.retry
	h.coord.mu.Unlock()

	// The first timer fires after it was replaced.
	h.coord.retryFired(stale)

	h.coord.mu.Lock()
	got := h.coord.retry
	h.coord.mu.Unlock()
	if got != current {
		t.Fatal("stale timer cleared the current retry")
	}
	st := h.coord.Status()
	if !st.RetryScheduled {
		t.Error("RetryScheduled = false, want true")
	}
	if st.Cycles != 0 {
		t.Errorf("Cycles = %d, stale timer started a cycle", st.Cycles)
	}

	// Close can still stop the current timer.
	h.coord.Close()
	h.coord.mu.Lock()
	defer h.coord.mu.Unlock()
	if h.coord.retry != nil {
		t.Error("retry timer left running after Close")
	}
}

func TestHold_SuppressesAutomaticCycles(t *testing.T) {
	var held atomic.Bool
	held.Store(true)
	h := newHarness(t, Options{MaxRetries: 3, Hold: held.Load}, "r1", "r2")
	later := h.queue.Snapshot()[1]

	h.monitor.Set(false)
	h.monitor.Set(true)
	h.waitIdle(t)
	if calls := h.sink.calls(); len(calls) != 0 {
		t.Fatalf("submitted %v while held", calls)
	}
	if st := h.coord.Status(); st.Cycles != 0 || st.PendingCount != 2 {
		t.Fatalf("Status() while held = %+v", st)
	}

	// Explicit requests still run.
	if got := h.coord.RequestSync(); got != TriggerAccepted {
		t.Fatalf("RequestSync() = %q", got)
	}
	h.waitIdle(t)
	if h.queue.Len() != 0 {
		t.Errorf("queue Len() = %d after explicit sync, want 0", h.queue.Len())
	}

	// Released: a reconnect drains again.
	held.Store(false)
	later.ID = "r3"
	later.CreatedAt = later.CreatedAt.Add(time.Minute)
	if _, err := h.queue.Enqueue(later); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	h.monitor.Set(false)
	h.monitor.Set(true)
	h.waitIdle(t)
	if h.queue.Len() != 0 {
		t.Errorf("queue Len() = %d after reconnect, want 0", h.queue.Len())
	}
}

func TestDrain_PersistenceFailureKeepsRecord(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1")
	h.store.SetFailSaves(fmt.Errorf("disk full"))

	h.coord.RequestSync()
	h.waitIdle(t)

	if len(h.sink.calls()) != 0 {
		t.Errorf("submitted %v with an unwritable queue", h.sink.calls())
	}
	if h.queue.Len() != 1 {
		t.Errorf("queue Len() = %d, want 1", h.queue.Len())
	}
	if st := h.coord.Status(); st.LastSyncResult != ResultPartiallyFailed {
		t.Errorf("LastSyncResult = %q", st.LastSyncResult)
	}
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1")

	var mu sync.Mutex
	var states []State
	unsub := h.coord.Subscribe(func(s Status) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	h.coord.RequestSync()
	h.waitIdle(t)

	// The idle notification is sent after the idle channel closes.
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(states)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	unsub()

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != StateDraining || states[1] != StateIdle {
		t.Errorf("notified states = %v, want [draining idle]", states)
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3}, "r1")
	h.sink.setHang("r1", true)

	h.coord.RequestSync()
	h.expectEntered(t, "r1")

	h.coord.Close()
	h.coord.Close()

	if rec, _ := h.queue.Get("r1"); rec.SyncState != scan.StatePending {
		t.Errorf("r1 state after Close = %q, want pending", rec.SyncState)
	}
	if got := h.coord.RequestSync(); got != TriggerClosed {
		t.Errorf("RequestSync() after Close = %q, want closed", got)
	}
}
