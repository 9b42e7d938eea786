// Package tracker records capability executions and maintains per-capability
// metrics.
//
// Every capability invocation, whether routed from chat, run as a workflow
// step or continued in a conversational session, reports into one Tracker.
// The Tracker keeps a bounded in-memory history and forwards terminal
// executions to optional HistorySinks for durable storage.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/telemetry"
)

type (
	// Tracker records executions and aggregates metrics. It is safe for
	// concurrent use; metric updates are read-modify-write under one lock.
	Tracker struct {
		mu           sync.Mutex
		running      map[string]*record
		history      []*Execution
		historyLimit int
		metrics      map[string]*aggregate
		sinks        []HistorySink
		now          func() time.Time
		obs          *Observability
	}

	// Invocation identifies what an execution runs.
	Invocation struct {
		CapabilityID string
		OperationID  string
		SessionID    string
		Input        string
	}

	// Execution is one invocation attempt.
	Execution struct {
		ID           string
		CapabilityID string
		OperationID  string
		SessionID    string
		Input        string
		Status       Status
		Output       string
		Error        string
		CreatedAt    time.Time
		CompletedAt  time.Time
		// ResponseTimeMs is the time from start to the terminal transition.
		ResponseTimeMs int64
	}

	// Status is the lifecycle state of an Execution.
	Status string

	// HistorySink receives every execution that reaches a terminal status.
	HistorySink interface {
		Append(ctx context.Context, exec Execution) error
	}

	// Option configures a Tracker.
	Option func(*Tracker)

	record struct {
		exec *Execution
		span telemetry.Span
	}
)

// Execution statuses. Transitions are pending, running, then completed or
// error.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// DefaultHistoryLimit bounds the in-memory execution history.
const DefaultHistoryLimit = 100

// ErrIllegalTransition is returned when an execution is moved to a status
// that does not follow its current one.
var ErrIllegalTransition = errors.New("illegal execution status transition")

// WithHistoryLimit bounds the in-memory history. Non-positive values keep
// the default.
func WithHistoryLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.historyLimit = n
		}
	}
}

// WithClock overrides the clock used for timestamps and response times.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithTelemetry sets the logger, metrics and tracer.
func WithTelemetry(set telemetry.Set) Option {
	return func(t *Tracker) { t.obs = NewObservability(set) }
}

// WithSink adds a history sink.
func WithSink(s HistorySink) Option {
	return func(t *Tracker) {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
}

// New returns an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		running:      make(map[string]*record),
		historyLimit: DefaultHistoryLimit,
		metrics:      make(map[string]*aggregate),
		now:          time.Now,
		obs:          NewObservability(telemetry.Noop()),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start records a new execution and moves it to running. The returned
// context carries the execution span.
func (t *Tracker) Start(ctx context.Context, inv Invocation) (context.Context, string) {
	ctx, span := t.obs.StartSpan(ctx, inv)
	exec := &Execution{
		ID:           uuid.NewString(),
		CapabilityID: inv.CapabilityID,
		OperationID:  inv.OperationID,
		SessionID:    inv.SessionID,
		Input:        inv.Input,
		Status:       StatusPending,
		CreatedAt:    t.now(),
	}
	t.mu.Lock()
	exec.Status = StatusRunning
	t.running[exec.ID] = &record{exec: exec, span: span}
	t.mu.Unlock()
	return ctx, exec.ID
}

// Complete moves a running execution to completed with the given output.
func (t *Tracker) Complete(ctx context.Context, id, output string) (Execution, error) {
	return t.finish(ctx, id, StatusCompleted, output, nil)
}

// Fail moves a running execution to error and appends cause to the
// capability error log.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) (Execution, error) {
	if cause == nil {
		cause = errors.New("unknown error")
	}
	return t.finish(ctx, id, StatusError, "", cause)
}

// Run starts an execution, calls fn and records its outcome. fn's error is
// returned unchanged after it is recorded.
func (t *Tracker) Run(ctx context.Context, inv Invocation, fn func(context.Context) (string, error)) (Execution, error) {
	ctx, id := t.Start(ctx, inv)
	out, err := fn(ctx)
	if err != nil {
		exec, ferr := t.Fail(ctx, id, err)
		if ferr != nil {
			return exec, errors.Join(err, ferr)
		}
		return exec, err
	}
	return t.Complete(ctx, id, out)
}

// Get returns a running or recorded execution.
func (t *Tracker) Get(id string) (Execution, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.running[id]; ok {
		return *r.exec, nil
	}
	for _, e := range t.history {
		if e.ID == id {
			return *e, nil
		}
	}
	return Execution{}, agenterr.NotFound("execution", id)
}

// History returns up to limit terminal executions, most recent first. A
// non-positive limit returns the whole retained history.
func (t *Tracker) History(limit int) []Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Execution, 0, n)
	for i := len(t.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *t.history[i])
	}
	return out
}

// Running returns the executions currently in flight.
func (t *Tracker) Running() []Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Execution, 0, len(t.running))
	for _, r := range t.running {
		out = append(out, *r.exec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (t *Tracker) finish(ctx context.Context, id string, status Status, output string, cause error) (Execution, error) {
	now := t.now()
	t.mu.Lock()
	r, ok := t.running[id]
	if !ok {
		t.mu.Unlock()
		if _, err := t.Get(id); err == nil {
			return Execution{}, fmt.Errorf("execution %q to %s: %w", id, status, ErrIllegalTransition)
		}
		return Execution{}, agenterr.NotFound("execution", id)
	}
	delete(t.running, id)
	e := r.exec
	e.Status = status
	e.Output = output
	e.CompletedAt = now
	e.ResponseTimeMs = now.Sub(e.CreatedAt).Milliseconds()
	if cause != nil {
		e.Error = cause.Error()
	}
	t.appendHistory(e)
	m := t.aggregateFor(e.CapabilityID)
	m.record(e, now)
	snapshot := *e
	t.mu.Unlock()

	t.obs.Record(ctx, r.span, snapshot, cause)
	for _, s := range t.sinks {
		if err := s.Append(ctx, snapshot); err != nil {
			t.obs.logger.Warn(ctx, "execution history sink failed", "execution", snapshot.ID, "error", err)
		}
	}
	return snapshot, nil
}

// appendHistory adds e and evicts the oldest entry past the limit. The caller
// holds the lock.
func (t *Tracker) appendHistory(e *Execution) {
	t.history = append(t.history, e)
	if over := len(t.history) - t.historyLimit; over > 0 {
		clear(t.history[:over])
		t.history = t.history[over:]
	}
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}
