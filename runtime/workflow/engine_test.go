package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/commands/inmem"
	"goa.design/agentdesk/runtime/router"
	"goa.design/agentdesk/runtime/tracker"
)

type call struct {
	capID, opID, input string
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
	gate  map[string]chan struct{}
	start chan string
}

func (f *fakeExecutor) Execute(ctx context.Context, capID, opID, input string, _ commands.Commands, _ string) (*capability.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{capID, opID, input})
	err := f.fail[capID]
	gate := f.gate[capID]
	f.mu.Unlock()
	if f.start != nil {
		f.start <- capID
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &capability.Result{Message: capID + " done"}, nil
}

func (f *fakeExecutor) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.capID
	}
	return out
}

func chain(ids ...string) []StepSpec {
	specs := make([]StepSpec, len(ids))
	for i, id := range ids {
		specs[i] = StepSpec{ID: id, CapabilityID: id, OperationID: "run", Input: "do " + id}
		if i > 0 {
			specs[i].Requires = []string{ids[i-1]}
		}
	}
	return specs
}

func TestWorkflowStepFailureHalts(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{fail: map[string]error{"B": errors.New("backend rejected")}}
	tr := tracker.New()
	e := NewEngine(exec, inmem.New(), WithTracker(tr))

	wf, err := e.CreateWorkflow(ctx, "abc", "three steps", chain("A", "B", "C"))
	require.NoError(t, err)
	require.Equal(t, StatusPending, wf.Status)
	require.Equal(t, 0, wf.CompletedSteps)
	require.Equal(t, 3, wf.TotalSteps)

	final, err := e.Start(ctx, wf.ID)
	var oe *agenterr.OperationError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "B", oe.Capability)
	require.Equal(t, StatusError, final.Status)
	require.Equal(t, 1, final.CompletedSteps)
	require.Equal(t, []StepStatus{StepCompleted, StepError, StepPending}, final.StepStatuses())
	require.Equal(t, []string{"A", "B"}, exec.dispatched())
	require.Equal(t, "B.run: backend rejected", final.Steps[1].Error)
	require.Empty(t, e.Active())

	m, _ := tr.Metrics("B")
	require.Equal(t, 1, m.Errors)
	require.Len(t, tr.History(0), 2)
}

func TestWorkflowCompletes(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	e := NewEngine(exec, inmem.New())
	specs := chain("A", "B")
	specs[1].Input = ""

	wf, err := e.CreateWorkflow(ctx, "ab", "", specs)
	require.NoError(t, err)
	final, err := e.Start(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, final.Status)
	require.Equal(t, 2, final.CompletedSteps)
	require.Equal(t, "A done", final.Steps[0].Output)
	require.NotEmpty(t, final.Steps[0].ExecutionID)
	require.Equal(t, "A done", exec.calls[1].input)
	require.False(t, final.CompletedAt.IsZero())

	_, err = e.Start(ctx, wf.ID)
	require.Error(t, err)
	require.Error(t, e.Cancel(ctx, wf.ID))
}

func TestWorkflowDependencyViolation(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	e := NewEngine(exec, inmem.New())

	wf, err := e.CreateWorkflow(ctx, "bad order", "", []StepSpec{
		{ID: "a", CapabilityID: "A", OperationID: "run", Requires: []string{"b"}},
		{ID: "b", CapabilityID: "B", OperationID: "run"},
	})
	require.NoError(t, err)
	final, err := e.Start(ctx, wf.ID)
	require.ErrorIs(t, err, agenterr.ErrDependencyViolation)
	require.Equal(t, StatusError, final.Status)
	require.Equal(t, []StepStatus{StepError, StepPending}, final.StepStatuses())
	require.Empty(t, exec.dispatched())

	wf, err = e.CreateWorkflow(ctx, "unknown prerequisite", "", []StepSpec{
		{CapabilityID: "A", OperationID: "run", Requires: []string{"ghost"}},
	})
	require.NoError(t, err)
	_, err = e.Start(ctx, wf.ID)
	require.ErrorIs(t, err, agenterr.ErrDependencyViolation)
}

func TestCreateWorkflowValidation(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, inmem.New())
	ctx := context.Background()
	_, err := e.CreateWorkflow(ctx, "empty", "", nil)
	require.Error(t, err)
	_, err = e.CreateWorkflow(ctx, "dup", "", []StepSpec{
		{ID: "x", CapabilityID: "A", OperationID: "run"},
		{ID: "x", CapabilityID: "B", OperationID: "run"},
	})
	require.Error(t, err)
	_, err = e.CreateWorkflow(ctx, "no cap", "", []StepSpec{{OperationID: "run"}})
	require.Error(t, err)

	wf, err := e.CreateWorkflow(ctx, "numbered", "", []StepSpec{
		{CapabilityID: "A", OperationID: "run"},
		{CapabilityID: "B", OperationID: "run", Requires: []string{"step-1"}},
	})
	require.NoError(t, err)
	require.Equal(t, "step-2", wf.Steps[1].ID)
}

func TestUnknownWorkflow(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, inmem.New())
	ctx := context.Background()
	_, err := e.Start(ctx, "nope")
	require.ErrorIs(t, err, agenterr.ErrNotFound)
	_, err = e.Get("nope")
	require.ErrorIs(t, err, agenterr.ErrNotFound)
	require.ErrorIs(t, e.Cancel(ctx, "nope"), agenterr.ErrNotFound)
}

func TestCancelDiscardsInFlightStep(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	gate := make(chan struct{})
	exec := &fakeExecutor{
		gate:  map[string]chan struct{}{"B": gate},
		start: make(chan string, 3),
	}
	e := NewEngine(exec, inmem.New())
	wf, err := e.CreateWorkflow(ctx, "abc", "", chain("A", "B", "C"))
	require.NoError(t, err)

	h, err := e.Launch(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, "A", <-exec.start)
	require.Equal(t, "B", <-exec.start)

	active := e.Active()
	require.Len(t, active, 1)
	require.Equal(t, StepRunning, active[0].Steps[1].Status)

	require.NoError(t, e.Cancel(ctx, wf.ID))
	require.Empty(t, e.Active())
	close(gate)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	final, err := h.Wait(waitCtx)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, final.Status)
	require.Equal(t, []StepStatus{StepCompleted, StepSkipped, StepPending}, final.StepStatuses())
	require.Equal(t, 1, final.CompletedSteps)
	require.Equal(t, []string{"A", "B"}, exec.dispatched())
	<-h.Done()
}

func TestCancelPendingWorkflow(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	e := NewEngine(exec, inmem.New())
	wf, err := e.CreateWorkflow(ctx, "a", "", chain("A"))
	require.NoError(t, err)
	require.NoError(t, e.Cancel(ctx, wf.ID))
	_, err = e.Start(ctx, wf.ID)
	require.Error(t, err)
	require.Empty(t, exec.dispatched())

	got, err := e.Get(wf.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Len(t, e.List(), 1)
}

// TestStepFailureProperty checks that when step k of n fails, exactly k-1
// steps completed, the workflow errored, and later steps were never
// dispatched.
func TestStepFailureProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("failing step k halts the workflow", prop.ForAll(
		func(n, k int) bool {
			if k > n {
				k = n
			}
			ids := make([]string, n)
			for i := range ids {
				ids[i] = fmt.Sprintf("S%d", i+1)
			}
			failing := ids[k-1]
			exec := &fakeExecutor{fail: map[string]error{failing: errors.New("boom")}}
			e := NewEngine(exec, inmem.New())
			ctx := context.Background()
			wf, err := e.CreateWorkflow(ctx, "p", "", chain(ids...))
			if err != nil {
				return false
			}
			final, err := e.Start(ctx, wf.ID)
			if err == nil || final.Status != StatusError || final.CompletedSteps != k-1 {
				return false
			}
			if len(exec.dispatched()) != k {
				return false
			}
			for i, s := range final.Steps {
				switch {
				case i < k-1 && s.Status != StepCompleted:
					return false
				case i == k-1 && s.Status != StepError:
					return false
				case i > k-1 && s.Status != StepPending:
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	e := NewEngine(exec, inmem.New(), WithResolver(router.New(nil)))

	wf, err := e.Plan(ctx, "create a project called Launch Plan, then post to twitter about the launch")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 2)
	require.Equal(t, "project", wf.Steps[0].CapabilityID)
	require.Equal(t, "create", wf.Steps[0].OperationID)
	require.Equal(t, "create a project called Launch Plan", wf.Steps[0].Input)
	require.Equal(t, "social", wf.Steps[1].CapabilityID)
	require.Equal(t, []string{"step-1"}, wf.Steps[1].Requires)
	require.Equal(t, "Goal: create a project called Launch Plan, then post t...", wf.Name)

	final, err := e.Start(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, final.Status)

	_, err = e.Plan(ctx, "create a new project; say hello")
	require.ErrorIs(t, err, agenterr.ErrRoutingAmbiguous)

	_, err = NewEngine(exec, inmem.New()).Plan(ctx, "create a project")
	require.Error(t, err)
}

func TestSplitGoal(t *testing.T) {
	cases := map[string][]string{
		"a then b":                  {"a", "b"},
		"a, and then b; c\nd.":      {"a", "b", "c", "d"},
		"strengthen the brand":      {"strengthen the brand"},
		"create X. Then post about": {"create X", "post about"},
		"  ;  ":                     nil,
	}
	for in, want := range cases {
		require.Equal(t, want, SplitGoal(in), in)
	}
}
