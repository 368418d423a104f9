// Package queue implements the durable FIFO of scan records awaiting delivery.
//
// Every mutation builds the next snapshot, writes it through the kv.Store and
// only then swaps it in, so the in-memory view never gets ahead of disk. A
// failed write leaves the previous state in place and returns
// PERSISTENCE_ERROR.
package queue

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/kv"
	"github.com/hpungsan/snapfood/internal/logging"
	"github.com/hpungsan/snapfood/internal/scan"
)

// Queue is the durable queue. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	store   kv.Store
	key     string
	records []scan.Record
	log     *zap.Logger
}

// New creates an empty queue persisting under kv.KeyPendingScans.
// Call Reload to restore the last snapshot.
func New(store kv.Store, log *zap.Logger) *Queue {
	return &Queue{
		store: store,
		key:   kv.KeyPendingScans,
		log:   logging.OrNop(log).Named("queue"),
	}
}

// Reload replaces the in-memory queue with the persisted snapshot.
//
// A corrupt snapshot is logged and treated as empty; the bytes stay on disk
// until the next successful write replaces them. Records left syncing by a
// previous process revert to pending, and synced records are dropped.
func (q *Queue) Reload() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, ok, err := q.store.Load(q.key)
	if err != nil {
		return err
	}
	if !ok {
		q.records = nil
		return nil
	}

	decoded, err := DecodeSnapshot(data)
	if err != nil {
		q.log.Warn("discarding corrupt snapshot",
			zap.Error(errors.NewCorruptSnapshot(q.key, err)),
			zap.Int("bytes", len(data)))
		q.records = nil
		return nil
	}

	records := make([]scan.Record, 0, len(decoded))
	seen := make(map[string]bool, len(decoded))
	for _, r := range decoded {
		if seen[r.ID] || r.SyncState == scan.StateSynced {
			continue
		}
		seen[r.ID] = true
		if r.SyncState == scan.StateSyncing {
			r.SyncState = scan.StatePending
		}
		records = append(records, r)
	}
	q.records = records

	q.log.Debug("reloaded", zap.Int("records", len(records)))
	return nil
}

// Enqueue appends rec in createdAt order. Re-enqueuing an id already present
// is a no-op and reports added=false.
func (q *Queue) Enqueue(rec scan.Record) (added bool, err error) {
	if rec.ID == "" {
		return false, errors.NewInvalidRequest("record id is required")
	}
	switch rec.SyncState {
	case scan.StatePending, scan.StateFailed:
	case "":
		rec.SyncState = scan.StatePending
	default:
		return false, errors.NewInvalidRequest("cannot enqueue a record in state " + string(rec.SyncState))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexLocked(rec.ID) >= 0 {
		return false, nil
	}

	// Insert after every record created at or before rec.
	pos := sort.Search(len(q.records), func(i int) bool {
		return q.records[i].CreatedAt.After(rec.CreatedAt)
	})
	next := make([]scan.Record, 0, len(q.records)+1)
	next = append(next, q.records[:pos]...)
	next = append(next, rec.Clone())
	next = append(next, q.records[pos:]...)

	if err := q.commitLocked(next); err != nil {
		return false, err
	}
	q.log.Debug("enqueued", zap.String("id", rec.ID), zap.Int("pending", len(next)))
	return true, nil
}

// Snapshot returns a copy of the queue in FIFO order.
func (q *Queue) Snapshot() []scan.Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]scan.Record, len(q.records))
	for i, r := range q.records {
		out[i] = r.Clone()
	}
	return out
}

// Get returns the queued record with the given id.
func (q *Queue) Get(id string) (scan.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(id); i >= 0 {
		return q.records[i].Clone(), true
	}
	return scan.Record{}, false
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Remove deletes the given ids. Absent ids are ignored. Records currently
// syncing belong to the running drain and are refused with CONFLICT.
func (q *Queue) Remove(ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		i := q.indexLocked(id)
		if i < 0 {
			continue
		}
		if q.records[i].SyncState == scan.StateSyncing {
			sErr := errors.NewConflict("scan is being synced: " + id)
			sErr.Details = map[string]any{"id": id}
			return sErr
		}
		drop[id] = true
	}
	if len(drop) == 0 {
		return nil
	}

	next := make([]scan.Record, 0, len(q.records)-len(drop))
	for _, r := range q.records {
		if !drop[r.ID] {
			next = append(next, r)
		}
	}
	return q.commitLocked(next)
}

// MarkState persists a new sync state for id. Synced is not a queue state;
// use Acknowledge.
func (q *Queue) MarkState(id string, state scan.SyncState) error {
	if !state.Valid() || state == scan.StateSynced {
		return errors.NewInvalidRequest("invalid queue state: " + string(state))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return errors.NewNotFound(id)
	}
	if q.records[i].SyncState == state {
		return nil
	}

	next := append([]scan.Record(nil), q.records...)
	next[i].SyncState = state
	return q.commitLocked(next)
}

// Acknowledge removes id after the remote sink confirmed it. Unlike Remove it
// accepts a syncing record. Absent ids are a no-op.
func (q *Queue) Acknowledge(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return nil
	}

	next := make([]scan.Record, 0, len(q.records)-1)
	next = append(next, q.records[:i]...)
	next = append(next, q.records[i+1:]...)
	return q.commitLocked(next)
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.records {
		if q.records[i].ID == id {
			return i
		}
	}
	return -1
}

// commitLocked writes next and, only on success, makes it the live state.
func (q *Queue) commitLocked(next []scan.Record) error {
	data, err := EncodeSnapshot(next)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := q.store.Save(q.key, data); err != nil {
		q.log.Warn("snapshot write failed", zap.Error(err), zap.Int("pending", len(q.records)))
		if errors.Is(err, errors.ErrPersistence) {
			return err
		}
		return errors.NewPersistence(q.key, err)
	}
	q.records = next
	return nil
}
