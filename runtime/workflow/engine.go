package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/telemetry"
	"goa.design/agentdesk/runtime/tracker"
)

type (
	// Engine stores workflows and runs them. It is safe for concurrent use.
	Engine struct {
		mu        sync.Mutex
		workflows map[string]*Workflow
		order     []string
		active    map[string]struct{}
		exec      Executor
		cmds      commands.Commands
		resolver  Resolver
		tracker   *tracker.Tracker
		now       func() time.Time
		logger    telemetry.Logger
	}

	// Option configures an Engine.
	Option func(*Engine)

	// Handle tracks a workflow launched in the background.
	Handle struct {
		ID   string
		done chan struct{}
		wf   Workflow
		err  error
	}
)

// WithResolver sets the resolver used by Plan.
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithTracker sets the tracker recording step executions.
func WithTracker(t *tracker.Tracker) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracker = t
		}
	}
}

// WithClock overrides the clock used for timestamps.
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

// NewEngine returns an Engine running steps through exec against cmds.
func NewEngine(exec Executor, cmds commands.Commands, opts ...Option) *Engine {
	e := &Engine{
		workflows: make(map[string]*Workflow),
		active:    make(map[string]struct{}),
		exec:      exec,
		cmds:      cmds,
		tracker:   tracker.New(),
		now:       time.Now,
		logger:    telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CreateWorkflow stores a pending workflow.
func (e *Engine) CreateWorkflow(ctx context.Context, name, description string, steps []StepSpec) (Workflow, error) {
	return e.create(ctx, name, description, "", steps)
}

func (e *Engine) create(ctx context.Context, name, description, goal string, specs []StepSpec) (Workflow, error) {
	if len(specs) == 0 {
		return Workflow{}, errors.New("workflow requires at least one step")
	}
	steps := make([]Step, len(specs))
	ids := make(map[string]struct{}, len(specs))
	for i, s := range specs {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		if _, dup := ids[id]; dup {
			return Workflow{}, fmt.Errorf("duplicate step id %q", id)
		}
		if s.CapabilityID == "" || s.OperationID == "" {
			return Workflow{}, fmt.Errorf("step %q: capability and operation are required", id)
		}
		ids[id] = struct{}{}
		steps[i] = Step{
			ID:           id,
			CapabilityID: s.CapabilityID,
			OperationID:  s.OperationID,
			Input:        s.Input,
			Requires:     append([]string(nil), s.Requires...),
			Status:       StepPending,
		}
	}
	wf := &Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Goal:        goal,
		Steps:       steps,
		Status:      StatusPending,
		TotalSteps:  len(steps),
		CreatedAt:   e.now(),
	}
	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.order = append(e.order, wf.ID)
	out := wf.Clone()
	e.mu.Unlock()
	e.logger.Info(ctx, "workflow created", "workflow", wf.ID, "name", name, "steps", len(steps))
	return out, nil
}

// Start runs a pending workflow to completion on the calling goroutine and
// returns its final state. The error is the failure that halted the
// workflow, if any; a cancelled workflow returns no error.
func (e *Engine) Start(ctx context.Context, id string) (Workflow, error) {
	if err := e.begin(ctx, id); err != nil {
		return Workflow{}, err
	}
	return e.run(ctx, id)
}

// Launch starts a pending workflow on a new goroutine.
func (e *Engine) Launch(ctx context.Context, id string) (*Handle, error) {
	if err := e.begin(ctx, id); err != nil {
		return nil, err
	}
	h := &Handle{ID: id, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.wf, h.err = e.run(ctx, id)
	}()
	return h, nil
}

// Done is closed once the workflow reached a terminal status.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the workflow finished or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Workflow, error) {
	select {
	case <-h.done:
		return h.wf, h.err
	case <-ctx.Done():
		return Workflow{}, ctx.Err()
	}
}

// Cancel marks a pending or running workflow cancelled. A step in flight is
// allowed to finish but its result is discarded and no further step runs.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf, ok := e.workflows[id]
	if !ok {
		return agenterr.NotFound("workflow", id)
	}
	if wf.Status.Terminal() {
		return fmt.Errorf("workflow %q is already %s", id, wf.Status)
	}
	wf.Status = StatusCancelled
	wf.CompletedAt = e.now()
	delete(e.active, id)
	e.logger.Info(ctx, "workflow cancelled", "workflow", id, "completed_steps", wf.CompletedSteps)
	return nil
}

// Get returns a copy of a workflow.
func (e *Engine) Get(id string) (Workflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf, ok := e.workflows[id]
	if !ok {
		return Workflow{}, agenterr.NotFound("workflow", id)
	}
	return wf.Clone(), nil
}

// List returns copies of every workflow in creation order.
func (e *Engine) List() []Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Workflow, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.workflows[id].Clone())
	}
	return out
}

// Active returns copies of the running workflows in creation order.
func (e *Engine) Active() []Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Workflow
	for _, id := range e.order {
		if _, ok := e.active[id]; ok {
			out = append(out, e.workflows[id].Clone())
		}
	}
	return out
}

func (e *Engine) begin(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf, ok := e.workflows[id]
	if !ok {
		return agenterr.NotFound("workflow", id)
	}
	if wf.Status != StatusPending {
		return fmt.Errorf("workflow %q is %s, not pending", id, wf.Status)
	}
	wf.Status = StatusRunning
	wf.StartedAt = e.now()
	e.active[id] = struct{}{}
	e.logger.Info(ctx, "workflow started", "workflow", id, "steps", wf.TotalSteps)
	return nil
}

func (e *Engine) run(ctx context.Context, id string) (Workflow, error) {
	for i := 0; ; i++ {
		e.mu.Lock()
		wf := e.workflows[id]
		if wf.Status == StatusCancelled {
			out := wf.Clone()
			e.mu.Unlock()
			return out, nil
		}
		if i == len(wf.Steps) {
			wf.Status = StatusCompleted
			wf.CompletedAt = e.now()
			delete(e.active, id)
			out := wf.Clone()
			e.mu.Unlock()
			e.logger.Info(ctx, "workflow completed", "workflow", id, "steps", out.CompletedSteps)
			return out, nil
		}
		wf.CurrentStep = i
		step := &wf.Steps[i]
		if err := checkRequires(wf, i); err != nil {
			step.Status = StepError
			step.Error = err.Error()
			step.CompletedAt = e.now()
			out := e.fail(wf, err)
			e.mu.Unlock()
			e.logger.Error(ctx, "workflow dependency violation", "workflow", id, "step", step.ID, "error", err)
			return out, err
		}
		input := step.Input
		if input == "" && i > 0 {
			input = wf.Steps[i-1].Output
		}
		step.Status = StepRunning
		step.StartedAt = e.now()
		capID, opID, stepID := step.CapabilityID, step.OperationID, step.ID
		e.mu.Unlock()

		var output string
		exec, err := e.tracker.Run(ctx, tracker.Invocation{
			CapabilityID: capID,
			OperationID:  opID,
			SessionID:    "workflow:" + id,
			Input:        input,
		}, func(ctx context.Context) (string, error) {
			res, err := e.exec.Execute(ctx, capID, opID, input, e.cmds, "workflow:"+id)
			if err != nil {
				return "", err
			}
			if res != nil {
				output = res.Message
			}
			return output, nil
		})

		e.mu.Lock()
		wf = e.workflows[id]
		step = &wf.Steps[i]
		step.ExecutionID = exec.ID
		step.CompletedAt = e.now()
		if wf.Status == StatusCancelled {
			step.Status = StepSkipped
			out := wf.Clone()
			e.mu.Unlock()
			e.logger.Info(ctx, "workflow step result discarded", "workflow", id, "step", stepID)
			return out, nil
		}
		if err != nil {
			oe := agenterr.FromError(capID, opID, input, err)
			step.Status = StepError
			step.Error = oe.Error()
			out := e.fail(wf, oe)
			e.mu.Unlock()
			e.logger.Error(ctx, "workflow step failed", "workflow", id, "step", stepID, "error", err)
			return out, oe
		}
		step.Status = StepCompleted
		step.Output = output
		wf.CompletedSteps++
		e.mu.Unlock()
		e.logger.Debug(ctx, "workflow step completed", "workflow", id, "step", stepID)
	}
}

// fail marks wf errored and removes it from the active set. The caller holds
// the lock.
func (e *Engine) fail(wf *Workflow, err error) Workflow {
	wf.Status = StatusError
	wf.Error = err.Error()
	wf.CompletedAt = e.now()
	delete(e.active, wf.ID)
	return wf.Clone()
}

// checkRequires verifies that every prerequisite of step i is completed.
func checkRequires(wf *Workflow, i int) error {
	step := wf.Steps[i]
	for _, req := range step.Requires {
		dep, ok := wf.Step(req)
		if !ok || dep.Status != StepCompleted {
			return agenterr.DependencyViolation(step.ID, req)
		}
	}
	return nil
}
