// Package remedy drives automated remediation of unhealthy services. Each
// service moves through idle -> in_progress -> cooldown; at most one
// attempt runs per service at any time.
package remedy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"warden/api/audit"
	"warden/api/hub"
	"warden/api/model"
	"warden/api/probe"
	"warden/api/status"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseInProgress Phase = "in_progress"
	PhaseCooldown   Phase = "cooldown"
)

// Orchestrator is the scheduling platform behind the services.
type Orchestrator interface {
	ReplicaCount(ctx context.Context, svc *model.ServiceConfig) (int, error)
	ScaleTo(ctx context.Context, svc *model.ServiceConfig, n int) error
	Restart(ctx context.Context, svc *model.ServiceConfig) error
	WaitReady(ctx context.Context, svc *model.ServiceConfig, timeout time.Duration) error
}

// Tunnel restores local reachability to a service after a restart.
type Tunnel interface {
	EnsureReachable(ctx context.Context, svc *model.ServiceConfig) (string, error)
}

// Prober runs one direct health check.
type Prober interface {
	Check(ctx context.Context, svc *model.ServiceConfig) probe.Result
}

// Archiver persists finished audit entries to long-term storage.
type Archiver interface {
	ArchiveEntry(ctx context.Context, e *audit.Entry) error
}

// State is the externally visible remediation state of one service.
type State struct {
	Phase         Phase      `json:"phase"`
	AttemptID     string     `json:"attemptId,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CooldownUntil *time.Time `json:"cooldownUntil,omitempty"`
}

type serviceState struct {
	active        bool
	attemptID     string
	startedAt     time.Time
	cooldownUntil time.Time
}

// Cooldown expiry needs no timer: the phase is derived from the clock at
// every read.
func (s *serviceState) phase(now time.Time) Phase {
	if s.active {
		return PhaseInProgress
	}
	if now.Before(s.cooldownUntil) {
		return PhaseCooldown
	}
	return PhaseIdle
}

// Engine owns the per-service remediation state machines. The optional
// collaborators (WS, Archive) may stay nil; Orchestrator, Tunnel and
// Prober must be set before the first trigger.
type Engine struct {
	Store   *status.Store
	Audit   audit.Store
	Orch    Orchestrator
	Tunnel  Tunnel
	Prober  Prober
	WS      *hub.Hub
	Archive Archiver

	Cooldown       time.Duration
	AttemptTimeout time.Duration

	mu     sync.Mutex
	states map[string]*serviceState
}

func New(store *status.Store, auditStore audit.Store) *Engine {
	return &Engine{
		Store:          store,
		Audit:          auditStore,
		Cooldown:       5 * time.Minute,
		AttemptTimeout: 10 * time.Minute,
		states:         make(map[string]*serviceState),
	}
}

// Trigger starts a remediation attempt for the named service and returns
// its attempt ID without waiting for the attempt to finish.
//
// An attempt already in progress rejects the trigger regardless of force.
// During cooldown only a forced (manual override) trigger proceeds.
// Triggering a currently-healthy service is a valid forced remediation.
func (e *Engine) Trigger(name string, trigger audit.Trigger, force bool) (string, error) {
	svc, ok := e.Store.Registry().Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", model.ErrUnknownService, name)
	}

	now := time.Now()
	e.mu.Lock()
	st := e.stateLocked(name)
	switch st.phase(now) {
	case PhaseInProgress:
		e.mu.Unlock()
		return "", model.ErrAlreadyRemediating
	case PhaseCooldown:
		if !force {
			e.mu.Unlock()
			return "", model.ErrCooldown
		}
	}
	attemptID := uuid.New().String()
	st.active = true
	st.attemptID = attemptID
	st.startedAt = now
	st.cooldownUntil = time.Time{}
	e.mu.Unlock()

	log.Printf("remedy: %s remediation started for %s (attempt %s)", trigger, name, attemptID)
	e.broadcast(hub.Event{Type: "remediation.started", Service: name, Payload: map[string]string{
		"attemptId": attemptID,
		"trigger":   string(trigger),
	}})

	go e.run(svc, attemptID, trigger)
	return attemptID, nil
}

// ServiceDown is the intake's threshold notification. Rejections are
// expected while an attempt or cooldown is active.
func (e *Engine) ServiceDown(name string) {
	if _, err := e.Trigger(name, audit.TriggerAutomatic, false); err != nil {
		if errors.Is(err, model.ErrAlreadyRemediating) || errors.Is(err, model.ErrCooldown) {
			log.Printf("remedy: skipping automatic remediation for %s: %v", name, err)
			return
		}
		log.Printf("remedy: automatic trigger for %s: %v", name, err)
	}
}

// ServiceRecovered ends a cooldown early when the service comes back
// healthy on its own. An in-progress attempt is left alone.
func (e *Engine) ServiceRecovered(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[name]
	if !ok || st.active {
		return
	}
	if !st.cooldownUntil.IsZero() {
		st.cooldownUntil = time.Time{}
		log.Printf("remedy: %s recovered, cooldown cleared", name)
	}
}

// State reports the remediation phase of one service.
func (e *Engine) State(name string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateViewLocked(name, time.Now())
}

// States reports the remediation phase of every configured service.
func (e *Engine) States() map[string]State {
	now := time.Now()
	names := e.Store.Registry().Names()

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]State, len(names))
	for _, name := range names {
		out[name] = e.stateViewLocked(name, now)
	}
	return out
}

func (e *Engine) stateViewLocked(name string, now time.Time) State {
	st, ok := e.states[name]
	if !ok {
		return State{Phase: PhaseIdle}
	}
	switch st.phase(now) {
	case PhaseInProgress:
		started := st.startedAt
		return State{Phase: PhaseInProgress, AttemptID: st.attemptID, StartedAt: &started}
	case PhaseCooldown:
		until := st.cooldownUntil
		return State{Phase: PhaseCooldown, AttemptID: st.attemptID, CooldownUntil: &until}
	default:
		return State{Phase: PhaseIdle}
	}
}

func (e *Engine) stateLocked(name string) *serviceState {
	st, ok := e.states[name]
	if !ok {
		st = &serviceState{}
		e.states[name] = st
	}
	return st
}

func (e *Engine) run(svc *model.ServiceConfig, attemptID string, trigger audit.Trigger) {
	rec := audit.NewRecorder(attemptID, svc.Name, trigger)

	ctx, cancel := context.WithTimeout(context.Background(), e.AttemptTimeout)
	defer cancel()

	outcome := e.execute(ctx, svc, rec)
	e.finish(svc, rec, outcome)
}

// finish appends the audit entry and only then releases the service into
// cooldown, so a reader who observes the attempt as over can already see
// its entry.
func (e *Engine) finish(svc *model.ServiceConfig, rec *audit.Recorder, outcome audit.Outcome) {
	entry := rec.Complete(outcome)

	// The attempt context may be past its deadline; the append gets a
	// fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Audit.Append(ctx, entry); err != nil {
		log.Printf("remedy: audit append for %s: %v", svc.Name, err)
	}
	if e.Archive != nil {
		if err := e.Archive.ArchiveEntry(ctx, entry); err != nil {
			log.Printf("remedy: archive for %s: %v", svc.Name, err)
		}
	}

	e.mu.Lock()
	st := e.stateLocked(svc.Name)
	st.active = false
	st.startedAt = time.Time{}
	st.cooldownUntil = time.Now().Add(e.Cooldown)
	e.mu.Unlock()

	log.Printf("remedy: %s remediation for %s finished: %s (%d steps)",
		entry.Trigger, svc.Name, entry.Outcome, len(entry.Steps))
	e.broadcast(hub.Event{Type: "remediation.completed", Service: svc.Name, Payload: map[string]string{
		"attemptId": entry.AttemptID,
		"outcome":   string(entry.Outcome),
	}})
}

func (e *Engine) broadcast(evt hub.Event) {
	if e.WS != nil {
		e.WS.Broadcast(evt)
	}
}
