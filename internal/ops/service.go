package ops

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/config"
	"github.com/hpungsan/snapfood/internal/connectivity"
	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/kv"
	"github.com/hpungsan/snapfood/internal/logging"
	"github.com/hpungsan/snapfood/internal/nutrition"
	"github.com/hpungsan/snapfood/internal/queue"
	"github.com/hpungsan/snapfood/internal/scan"
	"github.com/hpungsan/snapfood/internal/syncer"
)

// Deps are the collaborators of a Service. Store, Sink and Monitor are
// required; the rest have defaults.
type Deps struct {
	Store   kv.Store
	Sink    syncer.Sink
	Monitor *connectivity.Monitor

	IDs    scan.IDGenerator
	Clock  scan.Clock
	Engine *nutrition.Engine
	Config *config.Config
	Logger *zap.Logger
}

// Service owns the queue, the connectivity monitor and the sync
// coordinator for one process. Construct it once at startup and Close it on
// shutdown.
//
// Offline mode holds the queue: while it is on, nothing drains on its own
// (not after a record or an import, not at Start, not on reconnect, not on
// a retry). An explicit RequestSync still drains, and turning offline mode
// off drains when online.
type Service struct {
	store   kv.Store
	monitor *connectivity.Monitor
	queue   *queue.Queue
	coord   *syncer.Coordinator
	builder *scan.Builder
	engine  *nutrition.Engine
	cfg     *config.Config
	clock   scan.Clock
	log     *zap.Logger

	mu      sync.Mutex
	offline bool

	closeOnce sync.Once
}

// New restores the queue and the offline-mode preference from the store.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Sink == nil || deps.Monitor == nil {
		return nil, errors.NewInvalidRequest("store, sink and monitor are required")
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := logging.OrNop(deps.Logger)
	ids := deps.IDs
	if ids == nil {
		ids = scan.NewULIDGenerator()
	}
	clock := deps.Clock
	if clock == nil {
		clock = scan.SystemClock{}
	}
	engine := deps.Engine
	if engine == nil {
		engine = nutrition.NewEngine(nutrition.DefaultTables(), nutrition.GeneralSuggestions)
	}

	q := queue.New(deps.Store, log)
	if err := q.Reload(); err != nil {
		return nil, err
	}

	s := &Service{
		store:   deps.Store,
		monitor: deps.Monitor,
		queue:   q,
		builder: scan.NewBuilder(engine, ids, clock),
		engine:  engine,
		cfg:     cfg,
		clock:   clock,
		log:     log.Named("ops"),
	}
	s.coord = syncer.New(q, deps.Sink, deps.Monitor, syncer.Options{
		Backoff:    cfg.SyncBackoff(),
		MaxRetries: cfg.SyncMaxRetries,
		Hold:       s.OfflineMode,
		Clock:      clock,
		Logger:     log,
	})

	offline, err := s.loadOfflineMode()
	if err != nil {
		return nil, err
	}
	s.offline = offline

	return s, nil
}

// Start follows connectivity changes and, if scans survived a restart,
// drains them when online.
func (s *Service) Start(ctx context.Context) {
	s.coord.Start(ctx)
	if s.monitor.Online() && s.queue.Len() > 0 && !s.OfflineMode() {
		s.coord.RequestSync()
	}
}

// Close stops the coordinator, waiting for an in-flight cycle to unwind.
func (s *Service) Close() {
	s.closeOnce.Do(s.coord.Close)
}

// PendingCount returns the number of queued scans.
func (s *Service) PendingCount() int {
	return s.queue.Len()
}

// RequestSync asks for a drain cycle without waiting for it.
func (s *Service) RequestSync() syncer.Trigger {
	return s.coord.RequestSync()
}

// QueueStatus returns the pending count and the last sync result.
func (s *Service) QueueStatus() syncer.Status {
	return s.coord.Status()
}

// SubscribeStatus registers fn for status changes.
func (s *Service) SubscribeStatus(fn func(syncer.Status)) (unsubscribe func()) {
	return s.coord.Subscribe(fn)
}

// WaitIdle blocks until no drain cycle is running.
func (s *Service) WaitIdle(ctx context.Context) error {
	return s.coord.WaitIdle(ctx)
}

// Online reports the monitor state.
func (s *Service) Online() bool {
	return s.monitor.Online()
}

// SetConnectivity feeds a host observation to the monitor and reports
// whether it was a transition.
func (s *Service) SetConnectivity(online bool) bool {
	return s.monitor.Set(online)
}

// OfflineMode reports the user's offline-mode preference.
func (s *Service) OfflineMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// SetOfflineMode persists the preference, then applies it. Leaving offline
// mode while online requests a sync of anything queued meanwhile.
func (s *Service) SetOfflineMode(on bool) error {
	s.mu.Lock()
	if err := s.store.Save(kv.KeyOfflineMode, []byte(strconv.FormatBool(on))); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errors.ErrPersistence) {
			return err
		}
		return errors.NewPersistence(kv.KeyOfflineMode, err)
	}
	s.offline = on
	s.mu.Unlock()

	s.log.Info("offline mode changed", zap.Bool("offline_mode", on))
	if !on && s.monitor.Online() && s.queue.Len() > 0 {
		s.coord.RequestSync()
	}
	return nil
}

func (s *Service) loadOfflineMode() (bool, error) {
	data, ok, err := s.store.Load(kv.KeyOfflineMode)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	on, err := strconv.ParseBool(string(data))
	if err != nil {
		s.log.Warn("ignoring unreadable offline-mode preference", zap.ByteString("value", data))
		return false, nil
	}
	return on, nil
}
