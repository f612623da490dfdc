// Package service provides the process-wide sync coordinator: lifecycle
// state machine, periodic hot-collection timer, connectivity handling
// and the manual trigger surface.
package service

import (
	"context"
	gosync "sync"
	"time"

	apperrors "github.com/hweilin/tillsync/internal/errors"
	"github.com/hweilin/tillsync/internal/logging"
	"github.com/hweilin/tillsync/internal/models"
)

// State is the coordinator's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateIdle          State = "idle"
	StateSyncing       State = "syncing"
	StateOffline       State = "offline"
)

// Orchestrator is the engine surface the coordinator drives.
type Orchestrator interface {
	SyncAll(ctx context.Context) models.SyncResult
	SyncCollection(ctx context.Context, name string) error
	DrainQueue(ctx context.Context) (int, error)
	SetOnline(online bool)
	Online() bool
	Pending() int
}

// ChangeListener is the realtime subscription surface. The coordinator
// tears it down on connectivity loss and re-establishes it on restore.
type ChangeListener interface {
	Start(ctx context.Context) error
	Close()
}

// Config holds the coordinator's injected dependencies.
type Config struct {
	Engine Orchestrator

	// Listener is optional; nil disables the realtime feed.
	Listener ChangeListener

	// HotCollections are re-synced on every timer tick. Empty means
	// the timer runs a full pass instead.
	HotCollections []string

	// SyncInterval is the hot-subset timer period. Zero selects the
	// default of one minute.
	SyncInterval time.Duration
}

const defaultSyncInterval = time.Minute

// syncRequest carries one manual trigger into the worker loop.
type syncRequest struct {
	reply chan models.SyncResult
}

// Service coordinates the whole engine. All sync passes run on one
// worker goroutine, so passes are serialized and never interleave; a
// trigger arriving mid-pass runs as an immediate follow-up, and
// connectivity kicks arriving mid-pass coalesce into a single one.
type Service struct {
	engine   Orchestrator
	listener ChangeListener
	hot      []string
	interval time.Duration

	mu        gosync.RWMutex
	state     State
	running   bool
	listening bool
	lastSync  time.Time
	lastError string

	syncCh chan syncRequest
	kickCh chan struct{}
	stopCh chan struct{}
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a coordinator in the Uninitialized state.
func New(cfg Config) *Service {
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Service{
		engine:   cfg.Engine,
		listener: cfg.Listener,
		hot:      cfg.HotCollections,
		interval: interval,
		state:    StateUninitialized,
		syncCh:   make(chan syncRequest),
		kickCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start moves the coordinator through Initializing: one full pass, then
// the realtime listener and the periodic timer. It returns immediately;
// the initial pass runs on the worker goroutine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrSyncInProgress, "sync service already started")
	}
	s.running = true
	s.state = StateInitializing
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	logging.Info("Sync service started", map[string]interface{}{
		"interval": s.interval.String(),
		"hot":      len(s.hot),
	})
	return nil
}

// Stop tears down the timer, the worker and the listener. In-flight
// network calls are not cancelled abruptly; the pass finishes or fails
// on its own and no new passes are scheduled.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()
	s.cancel()
	s.stopListener()

	s.mu.Lock()
	s.state = StateUninitialized
	s.mu.Unlock()

	logging.Info("Sync service stopped", nil)
}

// SetOnline feeds a connectivity signal into the coordinator. On the
// offline edge the listener is torn down and the engine gated; on the
// online edge the listener is re-established and a full pass triggered.
func (s *Service) SetOnline(online bool) {
	wasOnline := s.engine.Online()
	s.engine.SetOnline(online)
	if wasOnline == online {
		return
	}

	logging.Info("Connectivity changed", map[string]interface{}{"online": online})

	if !online {
		s.stopListener()
		s.mu.Lock()
		if s.state == StateIdle {
			s.state = StateOffline
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.state == StateOffline {
		s.state = StateIdle
	}
	running := s.running
	s.mu.Unlock()

	if running {
		s.startListener()
		s.kick()
	}
}

// TriggerSync runs one full pass and returns its result. If a pass is
// already in flight it waits for that pass to finish and then runs as
// the immediate follow-up; passes never interleave.
func (s *Service) TriggerSync(ctx context.Context) models.SyncResult {
	s.mu.RLock()
	running := s.running
	stopCh := s.stopCh
	s.mu.RUnlock()
	if !running {
		return models.SyncResult{Error: "sync service not running"}
	}

	req := syncRequest{reply: make(chan models.SyncResult, 1)}
	select {
	case s.syncCh <- req:
	case <-stopCh:
		return models.SyncResult{Error: "sync service stopped"}
	case <-ctx.Done():
		return models.SyncResult{Error: ctx.Err().Error()}
	}

	select {
	case result := <-req.reply:
		return result
	case <-ctx.Done():
		return models.SyncResult{Error: ctx.Err().Error()}
	}
}

// Status reports the coordinator's externally visible state.
func (s *Service) Status() models.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := models.SyncStatus{
		IsOnline:       s.engine.Online(),
		IsSyncing:      s.state == StateSyncing,
		PendingChanges: s.engine.Pending(),
		Error:          s.lastError,
	}
	if !s.lastSync.IsZero() {
		t := s.lastSync
		status.LastSyncTime = &t
	}
	return status
}

// CurrentState reports the lifecycle state.
func (s *Service) CurrentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// run is the worker loop: initial pass, listener start, then timer
// ticks, manual triggers and connectivity kicks, all serialized here.
func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	s.fullPass(ctx)
	s.startListener()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.hotPass(ctx)
		case <-s.kickCh:
			s.fullPass(ctx)
		case req := <-s.syncCh:
			req.reply <- s.fullPass(ctx)
		}
	}
}

// fullPass runs one full engine pass and records its outcome.
func (s *Service) fullPass(ctx context.Context) models.SyncResult {
	s.setState(StateSyncing)
	result := s.engine.SyncAll(ctx)
	s.recordResult(result)
	return result
}

// hotPass re-syncs the hot subset and drains the queue. Offline ticks
// are no-ops; an empty hot subset falls back to a full pass.
func (s *Service) hotPass(ctx context.Context) {
	if !s.engine.Online() {
		return
	}
	if len(s.hot) == 0 {
		s.fullPass(ctx)
		return
	}

	s.setState(StateSyncing)
	var lastErr string
	for _, name := range s.hot {
		if err := s.engine.SyncCollection(ctx, name); err != nil {
			lastErr = err.Error()
			logging.ErrorWithCode("Hot collection sync failed", string(apperrors.CodeOf(err)), err,
				map[string]interface{}{"collection": name})
		}
	}
	if _, err := s.engine.DrainQueue(ctx); err != nil {
		lastErr = err.Error()
		logging.ErrorWithCode("Queue drain failed", string(apperrors.CodeOf(err)), err, nil)
	}

	s.mu.Lock()
	s.lastSync = time.Now()
	s.lastError = lastErr
	s.mu.Unlock()
	s.settle()
}

// recordResult stores the pass outcome for Status and settles state.
func (s *Service) recordResult(result models.SyncResult) {
	s.mu.Lock()
	s.lastSync = time.Now()
	s.lastError = result.Error
	s.mu.Unlock()
	s.settle()
}

// settle returns the state to Idle or Offline after a pass.
func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Service) settle() {
	s.mu.Lock()
	if s.running {
		if s.engine.Online() {
			s.state = StateIdle
		} else {
			s.state = StateOffline
		}
	}
	s.mu.Unlock()
}

// kick requests a full pass without waiting for the result; kicks
// arriving while a pass runs coalesce into one.
func (s *Service) kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

func (s *Service) startListener() {
	if s.listener == nil || !s.engine.Online() {
		return
	}
	s.mu.Lock()
	if s.listening || !s.running {
		s.mu.Unlock()
		return
	}
	s.listening = true
	s.mu.Unlock()

	if err := s.listener.Start(context.Background()); err != nil {
		logging.ErrorWithCode("Failed to start change listener", string(apperrors.CodeOf(err)), err, nil)
		s.mu.Lock()
		s.listening = false
		s.mu.Unlock()
	}
}

func (s *Service) stopListener() {
	if s.listener == nil {
		return
	}
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	s.listening = false
	s.mu.Unlock()

	s.listener.Close()
}
