package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentcore-dev/agentcore/internal/agent"
	"github.com/agentcore-dev/agentcore/internal/observability"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

// MaxWorkers is the hard cap on concurrently live sessions (§4.8).
const MaxWorkers = 8

// workerReadyTimeout bounds how long CreateWorker waits for the new
// worker's "ready" event before giving up (§5).
const workerReadyTimeout = 10 * time.Second

// terminateGrace is how long TerminateWorker waits for a running worker to
// unwind after an abort before force-terminating it (§4.8).
const terminateGrace = 500 * time.Millisecond

// RegistryFactory builds a fresh, per-session Registry: the optional tool
// groups a deployment supports, registered but disabled, with no core
// handlers bound yet (NewHost binds those). Out of scope for this package:
// what those optional tools actually do.
type RegistryFactory func() *agent.Registry

// entry is everything the Manager tracks about one live worker.
type entry struct {
	host      *Host
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	attempts  int64
}

// Manager is the Worker Manager (C10): it creates and terminates Hosts
// under the 8-worker cap, relays every Host's outbound events to the UI,
// fans cross-session config changes out to every live worker, and caches
// per-session TODOs/titles so a tab switch does not need a worker
// round-trip (§4.8).
type Manager struct {
	mu       sync.Mutex
	workers  map[string]*entry
	registry RegistryFactory
	toUI     func(WorkerToMain)
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	obsLogger *observability.Logger

	cacheMu      sync.Mutex
	cachedTodos  map[string][]models.TodoItem
	cachedTitles map[string]string
}

// ManagerConfig configures a new Manager.
type ManagerConfig struct {
	RegistryFactory RegistryFactory
	// ToUI receives every event emitted by any worker, already tagged with
	// SessionID, for final relay to the desktop UI layer.
	ToUI    func(WorkerToMain)
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Tracer is optional; when set, every worker created by this Manager
	// traces its runs through it (built once at cmd/agentcore startup,
	// same lifecycle constraint as Metrics).
	Tracer *observability.Tracer
	// ObsLogger is optional; when set, every worker's run/tool event
	// timeline is summarized through it (see HostConfig.ObsLogger).
	ObsLogger *observability.Logger
}

// NewManager builds a Manager with no workers running.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		workers: make(map[string]*entry),
		registry: cfg.RegistryFactory,
		toUI:     cfg.ToUI,
		logger:   logger.With("component", "worker-manager"),
		// Metrics is nil unless the caller supplies one (observability.NewMetrics
		// registers against Prometheus's global default registry and must be
		// constructed exactly once per process, at cmd/agentcore startup).
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		obsLogger:    cfg.ObsLogger,
		cachedTodos:  make(map[string][]models.TodoItem),
		cachedTitles: make(map[string]string),
	}
}

func (m *Manager) recordSessionStarted() {
	if m.metrics != nil {
		m.metrics.SessionStarted("agentcore")
	}
}

func (m *Manager) recordSessionEnded(duration time.Duration) {
	if m.metrics != nil {
		m.metrics.SessionEnded("agentcore", duration.Seconds())
	}
}

func (m *Manager) recordRunAttempt(success bool) {
	if m.metrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.metrics.RecordRunAttempt(status)
}

// emitRunAttempt feeds the teacher's diagnostic event stream, separate from
// the Prometheus counter recordRunAttempt updates: diagnostics are an
// always-on, listener-driven feed (internal/observability.OnDiagnosticEvent)
// consumed by tooling that wants a live tap rather than a periodic scrape.
func (m *Manager) emitRunAttempt(sessionID string) {
	m.mu.Lock()
	e, ok := m.workers[sessionID]
	if ok {
		e.attempts++
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	observability.EmitRunAttempt(&observability.RunAttemptEvent{SessionID: sessionID, Attempt: int(e.attempts)})
}

func (m *Manager) recordContextWindow(sessionID string, usage models.ContextUsage) {
	if m.metrics != nil {
		m.metrics.RecordContextWindow("agentcore", sessionID, usage.CurrentTokens)
	}
}

// CreateWorker spins up a new Host for sessionID. It rejects creation once
// MaxWorkers are already live, and rejects creating a second worker for a
// sessionID that already has one.
func (m *Manager) CreateWorker(ctx context.Context, sessionID string, opts HostConfig) error {
	m.mu.Lock()
	if _, exists := m.workers[sessionID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("worker manager: session %q already has a worker", sessionID)
	}
	if len(m.workers) >= MaxWorkers {
		m.mu.Unlock()
		return fmt.Errorf("worker manager: max %d workers already running", MaxWorkers)
	}
	m.mu.Unlock()

	outbox := make(chan WorkerToMain, 64)
	opts.SessionID = sessionID
	opts.Outbox = outbox
	if opts.Registry == nil {
		opts.Registry = m.registry()
	}
	opts.Logger = m.logger
	if opts.Tracer == nil {
		opts.Tracer = m.tracer
	}
	if opts.Metrics == nil {
		opts.Metrics = m.metrics
	}
	if opts.ObsLogger == nil {
		opts.ObsLogger = m.obsLogger
	}

	host, err := NewHost(opts)
	if err != nil {
		return fmt.Errorf("worker manager: build host: %w", err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e := &entry{host: host, cancel: cancel, done: done, startedAt: time.Now()}

	m.mu.Lock()
	if _, exists := m.workers[sessionID]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("worker manager: session %q already has a worker", sessionID)
	}
	if len(m.workers) >= MaxWorkers {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("worker manager: max %d workers already running", MaxWorkers)
	}
	m.workers[sessionID] = e
	m.mu.Unlock()

	ready := make(chan struct{})
	go func() {
		host.Run(workerCtx)
		close(outbox)
	}()
	go func() {
		defer close(done)
		for msg := range outbox {
			if msg.Kind == EvtReady {
				select {
				case <-ready:
				default:
					close(ready)
				}
			}
			m.onWorkerEvent(sessionID, msg)
		}
	}()

	select {
	case <-ready:
		m.recordSessionStarted()
		observability.EmitSessionState(&observability.SessionStateEvent{SessionID: sessionID, State: observability.SessionStateIdle, Reason: "worker created"})
		return nil
	case <-time.After(workerReadyTimeout):
		m.logger.Warn("worker did not become ready in time", "session", sessionID)
		m.recordSessionStarted()
		observability.EmitSessionState(&observability.SessionStateEvent{SessionID: sessionID, State: observability.SessionStateIdle, Reason: "worker created (ready timeout)"})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onWorkerEvent intercepts cache-relevant events before relaying every
// event upward to the UI.
func (m *Manager) onWorkerEvent(sessionID string, msg WorkerToMain) {
	if msg.Kind == EvtBroadcast && msg.Broadcast != nil {
		switch msg.Broadcast.Channel {
		case "todoUpdate":
			if todos, ok := msg.Broadcast.Data.([]models.TodoItem); ok {
				m.cacheMu.Lock()
				m.cachedTodos[sessionID] = todos
				m.cacheMu.Unlock()
			}
		case "sessionTitle":
			if title, ok := msg.Broadcast.Data.(string); ok {
				m.cacheMu.Lock()
				m.cachedTitles[sessionID] = title
				m.cacheMu.Unlock()
			}
		case "contextUpdate":
			if usage, ok := msg.Broadcast.Data.(models.ContextUsage); ok {
				m.recordContextWindow(sessionID, usage)
			}
		}
	}

	if msg.Kind == EvtComplete && msg.Complete != nil {
		m.recordRunAttempt(msg.Complete.Result.Success)
		m.emitRunAttempt(sessionID)
	}
	if msg.Kind == EvtError {
		// A worker-level error (as opposed to a tool/run failure folded
		// into a successful Complete) dismisses any modal the UI may
		// still be showing for this session; the UI relay below carries
		// that signal upward.
		m.recordRunAttempt(false)
		m.emitRunAttempt(sessionID)
	}

	if m.toUI != nil {
		msg.SessionID = sessionID
		m.toUI(msg)
	}
}

// CachedTodos returns the last known TODO list for sessionID without a
// worker round-trip, or nil if none has been observed yet.
func (m *Manager) CachedTodos(sessionID string) []models.TodoItem {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return models.CloneTodos(m.cachedTodos[sessionID])
}

// CachedTitle returns the last known session title for sessionID, or "".
func (m *Manager) CachedTitle(sessionID string) string {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.cachedTitles[sessionID]
}

// Send delivers msg to sessionID's worker. It is the caller's
// responsibility to ensure the session exists; Send on an unknown session
// is a no-op, matching "terminating a worker that is not running succeeds
// silently" (§8) applied symmetrically to sends.
func (m *Manager) Send(sessionID string, msg MainToWorker) {
	m.mu.Lock()
	e, ok := m.workers[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case e.host.Inbox() <- msg:
	default:
		m.logger.Warn("worker inbox full, dropping message", "session", sessionID, "kind", msg.Kind)
	}
}

// Run is a convenience wrapper over Send for starting a run.
func (m *Manager) Run(sessionID string, payload RunPayload) {
	m.Send(sessionID, MainToWorker{Kind: MsgRun, Run: &payload})
}

// Abort is a convenience wrapper over Send for aborting the active run.
func (m *Manager) Abort(sessionID string) {
	m.Send(sessionID, MainToWorker{Kind: MsgAbort})
}

// IsRunning reports whether sessionID's worker has a run in flight.
func (m *Manager) IsRunning(sessionID string) bool {
	m.mu.Lock()
	e, ok := m.workers[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return e.host.IsRunning()
}

// BroadcastSetConfig fans a config change out to every live worker so a
// change made in one tab takes effect immediately in all (§4.8).
func (m *Manager) BroadcastSetConfig(payload SetConfigPayload) {
	m.mu.Lock()
	sessions := make([]string, 0, len(m.workers))
	for id := range m.workers {
		sessions = append(sessions, id)
	}
	m.mu.Unlock()
	for _, id := range sessions {
		m.Send(id, MainToWorker{Kind: MsgSetConfig, SetConfig: &payload})
	}
}

// BroadcastToolGroupChanged fans a tool-group toggle out to every live
// worker (§4.8).
func (m *Manager) BroadcastToolGroupChanged(payload ToolGroupChangedPayload) {
	m.mu.Lock()
	sessions := make([]string, 0, len(m.workers))
	for id := range m.workers {
		sessions = append(sessions, id)
	}
	m.mu.Unlock()
	for _, id := range sessions {
		m.Send(id, MainToWorker{Kind: MsgToolGroupChanged, ToolGroupChanged: &payload})
	}
}

// TerminateWorker tears down sessionID's worker. If a run is in flight it
// sends abort and waits up to terminateGrace before force-terminating;
// either way every pending approval/ask-user resolver is released and the
// session's cached TODOs/title are evicted. Terminating an unknown or
// already-stopped session succeeds silently (§8).
func (m *Manager) TerminateWorker(sessionID string) {
	m.mu.Lock()
	e, ok := m.workers[sessionID]
	if ok {
		delete(m.workers, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if e.host.IsRunning() {
		e.host.Inbox() <- MainToWorker{Kind: MsgAbort}
		select {
		case <-time.After(terminateGrace):
		case <-e.done:
		}
	}

	e.cancel()
	<-e.done
	m.recordSessionEnded(time.Since(e.startedAt))
	observability.EmitSessionState(&observability.SessionStateEvent{SessionID: sessionID, State: observability.SessionStateIdle, Reason: "worker terminated"})

	m.cacheMu.Lock()
	delete(m.cachedTodos, sessionID)
	delete(m.cachedTitles, sessionID)
	m.cacheMu.Unlock()
}

// ActiveSessions returns the session ids of every currently live worker.
func (m *Manager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.workers))
	for id := range m.workers {
		out = append(out, id)
	}
	return out
}
