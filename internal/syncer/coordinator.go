// Package syncer drains the durable queue into the remote sink.
//
// A Coordinator runs at most one drain cycle at a time. Requests arriving
// during a cycle collapse into a single follow-up cycle. A cycle walks the
// queue in FIFO order and stops at the first failure; going offline cancels
// the in-flight submission and returns that record to pending.
package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/connectivity"
	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/logging"
	"github.com/hpungsan/snapfood/internal/queue"
	"github.com/hpungsan/snapfood/internal/scan"
)

// Sink delivers one record to the remote store. Transport failures and
// rejections are treated the same.
type Sink interface {
	Submit(ctx context.Context, rec scan.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec scan.Record) error

// Submit implements Sink.
func (f SinkFunc) Submit(ctx context.Context, rec scan.Record) error {
	return f(ctx, rec)
}

// Options configures a Coordinator.
type Options struct {
	// Backoff is the delay before retrying a failed cycle.
	Backoff time.Duration

	// MaxRetries bounds automatic retries after consecutive failures.
	MaxRetries int

	// Hold, when it reports true, suppresses automatic cycles (reconnects
	// and retries). Explicit RequestSync calls still run.
	Hold func() bool

	Clock  scan.Clock
	Logger *zap.Logger
}

// Coordinator owns drain cycles for one queue.
type Coordinator struct {
	queue      *queue.Queue
	sink       Sink
	monitor    *connectivity.Monitor
	backoff    time.Duration
	maxRetries int
	hold       func() bool
	clock      scan.Clock
	log        *zap.Logger

	mu       sync.Mutex
	baseCtx  context.Context
	draining bool
	rerun    bool
	closed   bool
	cancel   context.CancelFunc // in-flight cycle
	retry    *time.Timer
	retryGen uint64 // bumped whenever retry is replaced or stopped
	idle     chan struct{}
	status   Status
	subs     map[int]func(Status)
	nextSub  int
	unsubNet func()

	wg sync.WaitGroup
}

// New creates a coordinator. Call Start to follow connectivity changes.
func New(q *queue.Queue, sink Sink, monitor *connectivity.Monitor, opts Options) *Coordinator {
	clock := opts.Clock
	if clock == nil {
		clock = scan.SystemClock{}
	}
	hold := opts.Hold
	if hold == nil {
		hold = func() bool { return false }
	}
	idle := make(chan struct{})
	close(idle)
	return &Coordinator{
		queue:      q,
		sink:       sink,
		monitor:    monitor,
		backoff:    opts.Backoff,
		maxRetries: opts.MaxRetries,
		hold:       hold,
		clock:      clock,
		log:        logging.OrNop(opts.Logger).Named("syncer"),
		baseCtx:    context.Background(),
		idle:       idle,
		status:     Status{State: StateIdle, LastSyncResult: ResultNone},
		subs:       make(map[int]func(Status)),
	}
}

// Start subscribes to the monitor. Cycles run under ctx; cancelling it
// aborts the in-flight submission the same way going offline does.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.unsubNet != nil {
		return
	}
	c.baseCtx = ctx
	c.unsubNet = c.monitor.Subscribe(c.onConnectivity)
}

// Close stops following the monitor, cancels any in-flight submission and
// waits for the running cycle to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopRetryLocked()
	if c.cancel != nil {
		c.cancel()
	}
	unsub := c.unsubNet
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.wg.Wait()
}

// RequestSync starts a drain cycle and returns without waiting for it. If a
// cycle is already running, one follow-up cycle is scheduled instead.
func (c *Coordinator) RequestSync() Trigger {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return TriggerClosed
	}
	if c.draining {
		c.rerun = true
		c.mu.Unlock()
		return TriggerAlreadyDraining
	}
	c.draining = true
	c.idle = make(chan struct{})
	c.stopRetryLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.notify()
	go c.run()
	return TriggerAccepted
}

// Status returns the current status.
func (c *Coordinator) Status() Status {
	pending := c.queue.Len()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(pending)
}

// Subscribe registers fn for status changes (cycle start and end).
func (c *Coordinator) Subscribe(fn func(Status)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// WaitIdle blocks until no cycle is running (including a coalesced
// follow-up) or ctx is done.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) onConnectivity(online bool) {
	if online {
		if c.hold() {
			c.log.Info("back online, queue held")
			return
		}
		if c.RequestSync() == TriggerAccepted {
			c.log.Info("back online, draining queue")
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRetryLocked()
	if c.cancel != nil {
		c.log.Info("went offline, cancelling in-flight submission")
		c.cancel()
	}
}

func (c *Coordinator) run() {
	defer c.wg.Done()

	for {
		result, synced, err := c.cycle()

		c.mu.Lock()
		c.finishCycleLocked(result, synced, err)
		if c.rerun && !c.closed {
			c.rerun = false
			c.mu.Unlock()
			c.notify()
			continue
		}
		c.rerun = false
		c.draining = false
		close(c.idle)
		c.scheduleRetryLocked(result)
		c.mu.Unlock()

		c.notify()
		return
	}
}

// cycle performs one drain pass and reports how many records were delivered.
func (c *Coordinator) cycle() (Result, int, error) {
	c.mu.Lock()
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	closed := c.closed
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	// The cancel func is registered before this check, so a transition
	// racing with it either shows here or cancels ctx.
	if closed || !c.monitor.Online() {
		return ResultOffline, 0, nil
	}

	synced := 0
	for _, rec := range c.queue.Snapshot() {
		if ctx.Err() != nil {
			return ResultAborted, synced, nil
		}

		if err := c.queue.MarkState(rec.ID, scan.StateSyncing); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return ResultPartiallyFailed, synced, err
		}
		rec.SyncState = scan.StateSyncing

		err := c.sink.Submit(ctx, rec)
		if err == nil {
			if err := c.queue.Acknowledge(rec.ID); err != nil {
				// Delivered but not durably removed; it will be sent again.
				c.log.Error("acknowledge failed", zap.String("id", rec.ID), zap.Error(err))
				c.revert(rec.ID, scan.StatePending)
				return ResultPartiallyFailed, synced, err
			}
			synced++
			c.log.Debug("synced", zap.String("id", rec.ID))
			continue
		}

		if ctx.Err() != nil {
			// Outcome unknown; treat as not yet delivered.
			c.revert(rec.ID, scan.StatePending)
			return ResultAborted, synced, nil
		}

		c.log.Warn("submit failed", zap.String("id", rec.ID), zap.Error(err))
		c.revert(rec.ID, scan.StateFailed)
		return ResultPartiallyFailed, synced, errors.NewSync(rec.ID, err)
	}
	return ResultCompleted, synced, nil
}

func (c *Coordinator) revert(id string, state scan.SyncState) {
	if err := c.queue.MarkState(id, state); err != nil {
		c.log.Error("failed to update sync state",
			zap.String("id", id), zap.String("state", string(state)), zap.Error(err))
	}
}

func (c *Coordinator) finishCycleLocked(result Result, synced int, err error) {
	now := c.clock.Now()
	c.status.LastSyncResult = result
	c.status.LastSyncAt = &now
	c.status.LastSynced = synced
	c.status.Cycles++
	c.status.LastError = ""
	if err != nil {
		c.status.LastError = err.Error()
	}

	switch result {
	case ResultCompleted:
		c.status.ConsecutiveFailures = 0
		c.status.PersistentFailure = false
	case ResultPartiallyFailed:
		c.status.ConsecutiveFailures++
		if c.status.ConsecutiveFailures > c.maxRetries && !c.status.PersistentFailure {
			c.status.PersistentFailure = true
			c.log.Error("sync keeps failing, automatic retries stopped",
				zap.Int("failures", c.status.ConsecutiveFailures),
				zap.Int("pending", c.queue.Len()))
		}
	}

	c.log.Info("drain cycle finished",
		zap.String("result", string(result)),
		zap.Int("synced", synced),
		zap.Int("pending", c.queue.Len()))
}

func (c *Coordinator) scheduleRetryLocked(result Result) {
	if result != ResultPartiallyFailed || c.closed || c.status.PersistentFailure {
		return
	}
	c.stopRetryLocked()
	gen := c.retryGen
	c.retry = time.AfterFunc(c.backoff, func() { c.retryFired(gen) })
	c.status.RetryScheduled = true
	c.log.Info("retry scheduled",
		zap.Duration("backoff", c.backoff),
		zap.Int("attempt", c.status.ConsecutiveFailures))
}

// retryFired runs on the timer goroutine. A timer that was stopped or
// replaced after firing finds a newer generation and does nothing.
func (c *Coordinator) retryFired(gen uint64) {
	c.mu.Lock()
	if gen != c.retryGen {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.retryGen++
	c.status.RetryScheduled = false
	c.mu.Unlock()

	// Going online again triggers a cycle by itself.
	if !c.monitor.Online() || c.hold() {
		return
	}
	c.RequestSync()
}

func (c *Coordinator) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.retryGen++
	c.status.RetryScheduled = false
}

func (c *Coordinator) statusLocked(pending int) Status {
	s := c.status
	s.PendingCount = pending
	s.State = StateIdle
	if c.draining {
		s.State = StateDraining
	}
	return s
}

func (c *Coordinator) notify() {
	pending := c.queue.Len()

	c.mu.Lock()
	s := c.statusLocked(pending)
	subs := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
