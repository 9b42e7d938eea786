package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/telemetry"
)

// DefaultTimeout is the inactivity timeout after which a session is
// discarded.
const DefaultTimeout = 30 * time.Minute

type (
	// Engine drives sessions through their capability's Machine. It is safe
	// for concurrent use across sessions.
	Engine struct {
		mu       sync.Mutex
		machines map[string]*Machine
		store    Store
		timeout  time.Duration
		now      func() time.Time
		logger   telemetry.Logger
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// WithTimeout overrides the inactivity timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock overrides the clock used for activity timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an Engine persisting sessions in store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		machines: make(map[string]*Machine),
		store:    store,
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Register adds the machine of a stateful capability.
func (e *Engine) Register(m *Machine) error {
	if err := m.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.machines[m.CapabilityID] = m
	e.mu.Unlock()
	return nil
}

// Timeout returns the inactivity timeout.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Begin starts a session at phase 1, replacing any session stored under the
// same id. Fields derived from input by the machine's Prefill extractor seed
// the data bag.
func (e *Engine) Begin(ctx context.Context, capabilityID, sessionID, input string) (*Reply, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.machines[capabilityID]
	if !ok {
		return nil, agenterr.NotFound("conversation machine", capabilityID)
	}
	now := e.now()
	s := Session{
		ID:           sessionID,
		CapabilityID: capabilityID,
		Phase:        1,
		Data:         Fields{},
		Initial:      input,
		CreatedAt:    now,
		LastActivity: now,
	}
	if m.Prefill != nil {
		s.Data.Merge(m.Prefill(input))
	}
	if err := e.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	e.logger.Info(ctx, "session started", "session", sessionID, "capability", capabilityID)
	return e.reply(m, s), nil
}

// Continue runs one turn of a session. It returns an error wrapping
// agenterr.ErrNotFound for unknown sessions and agenterr.ErrSessionExpired
// for sessions idle past the timeout, which are discarded. Turns sent to a
// finalized session report NothingPending. A failed finalization keeps the
// session at its terminal phase and returns an *agenterr.OperationError.
func (e *Engine) Continue(ctx context.Context, sessionID, input string, cmds commands.Commands) (*Reply, error) {
	e.mu.Lock()
	s, m, err := e.live(ctx, sessionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if s.Finalized() {
		e.mu.Unlock()
		return &Reply{SessionID: s.ID, CapabilityID: s.CapabilityID, NothingPending: true}, nil
	}

	s.Responses = append(s.Responses, input)
	phase := m.Phases[s.Phase-1]
	var answered, corrected Fields
	if phase.Extract != nil {
		answered = phase.Extract(input)
	}
	if m.Correct != nil {
		corrected = m.Correct(input)
	}
	s.Data.Merge(answered)
	s.Data.Merge(corrected)
	s.LastActivity = e.now()

	// A turn that only corrects earlier answers repeats the current
	// question.
	if len(answered) == 0 && len(corrected) > 0 && corrected[phase.Name] == "" {
		err := e.store.Save(ctx, s)
		e.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		return e.reply(m, s), nil
	}

	if s.Phase < len(m.Phases) {
		s.Phase = m.next(s.Phase, s.Data)
		err := e.store.Save(ctx, s)
		e.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		return e.reply(m, s), nil
	}
	if err := e.store.Save(ctx, s); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("save session: %w", err)
	}
	e.mu.Unlock()

	res, ferr := m.Finalize(ctx, s.Clone(), cmds)
	if ferr != nil {
		e.logger.Warn(ctx, "session finalization failed", "session", s.ID, "capability", s.CapabilityID, "error", ferr)
		return nil, agenterr.FromError(s.CapabilityID, "finalize", input, ferr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s.FinalizedAt = e.now()
	s.Data = Fields{}
	s.Responses = nil
	if err := e.store.Save(ctx, s); err != nil {
		e.logger.Warn(ctx, "session finalization marker not saved", "session", s.ID, "error", err)
	}
	e.logger.Info(ctx, "session finalized", "session", s.ID, "capability", s.CapabilityID)
	return &Reply{
		SessionID:    s.ID,
		CapabilityID: s.CapabilityID,
		Phase:        s.Phase,
		Phases:       len(m.Phases),
		Done:         true,
		Result:       res,
	}, nil
}

// Lookup returns the capability owning a live session. Finalized sessions
// are reported as not found. Expired sessions are discarded; the owning
// capability is still returned alongside agenterr.ErrSessionExpired so the
// caller can point the user at the command that starts over.
func (e *Engine) Lookup(ctx context.Context, sessionID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, _, err := e.live(ctx, sessionID)
	if err != nil {
		return s.CapabilityID, err
	}
	if s.Finalized() {
		return "", agenterr.NotFound("session", sessionID)
	}
	return s.CapabilityID, nil
}

// Get returns a copy of a live session with the same expiry rules as Lookup.
func (e *Engine) Get(ctx context.Context, sessionID string) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, _, err := e.live(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if s.Finalized() {
		return Session{}, agenterr.NotFound("session", sessionID)
	}
	return s.Clone(), nil
}

// Cancel discards a live session.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	if _, err := e.Get(ctx, sessionID); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	e.logger.Info(ctx, "session cancelled", "session", sessionID)
	return nil
}

// live loads a session and applies the expiry rules. Expired sessions and
// finalization markers older than the timeout are deleted. The caller holds
// the lock.
func (e *Engine) live(ctx context.Context, sessionID string) (Session, *Machine, error) {
	s, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return Session{}, nil, err
	}
	idle := e.now().Sub(s.LastActivity)
	if s.Finalized() {
		idle = e.now().Sub(s.FinalizedAt)
	}
	if idle > e.timeout {
		if derr := e.store.Delete(ctx, sessionID); derr != nil {
			e.logger.Warn(ctx, "expired session not deleted", "session", sessionID, "error", derr)
		}
		if s.Finalized() {
			return Session{}, nil, agenterr.NotFound("session", sessionID)
		}
		e.logger.Info(ctx, "session expired", "session", sessionID, "capability", s.CapabilityID)
		return Session{ID: sessionID, CapabilityID: s.CapabilityID}, nil, agenterr.Expired(sessionID)
	}
	m, ok := e.machines[s.CapabilityID]
	if !ok {
		return Session{}, nil, agenterr.NotFound("conversation machine", s.CapabilityID)
	}
	return s, m, nil
}

func (e *Engine) reply(m *Machine, s Session) *Reply {
	return &Reply{
		SessionID:    s.ID,
		CapabilityID: s.CapabilityID,
		Phase:        s.Phase,
		Phases:       len(m.Phases),
		Prompt:       m.prompt(s.Phase, s.Data),
		Data:         s.Data.Clone(),
	}
}
