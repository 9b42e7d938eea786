// Package workflow chains capability operations into sequential workflows.
//
// Steps run strictly in order on one goroutine. A step starts only after the
// previous one completed; the first failing step halts the workflow and the
// remaining steps stay pending. Cancellation is cooperative: it is observed
// between steps, and the result of an in-flight step is discarded.
package workflow

import (
	"context"
	"time"

	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/router"
)

type (
	// Workflow is an ordered list of steps derived from a goal.
	Workflow struct {
		ID          string
		Name        string
		Description string
		Goal        string
		Steps       []Step
		Status      Status
		// CurrentStep is the index of the step being (or last) run.
		CurrentStep    int
		TotalSteps     int
		CompletedSteps int
		// Error describes the failure of an errored workflow.
		Error       string
		CreatedAt   time.Time
		StartedAt   time.Time
		CompletedAt time.Time
	}

	// Step is one capability operation of a workflow.
	Step struct {
		ID           string
		CapabilityID string
		OperationID  string
		// Input is sent to the operation. An empty input receives the
		// previous step's output.
		Input string
		// Requires lists ids of steps that must be completed first.
		Requires    []string
		Status      StepStatus
		Output      string
		Error       string
		ExecutionID string
		StartedAt   time.Time
		CompletedAt time.Time
	}

	// StepSpec describes a step to create.
	StepSpec struct {
		// ID is optional; steps without one are numbered.
		ID           string
		CapabilityID string
		OperationID  string
		Input        string
		Requires     []string
	}

	// Status is the lifecycle state of a workflow.
	Status string

	// StepStatus is the lifecycle state of a step.
	StepStatus string

	// Executor runs capability operations. *capability.Registry implements
	// it.
	Executor interface {
		Execute(ctx context.Context, capID, opID, input string, cmds commands.Commands, sessionID string) (*capability.Result, error)
	}

	// Resolver maps a clause of a goal onto a capability operation.
	// *router.Router implements it.
	Resolver interface {
		Resolve(ctx context.Context, input string) (router.Candidate, error)
	}
)

// Workflow statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Step statuses.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Clone returns a deep copy of w.
func (w *Workflow) Clone() Workflow {
	out := *w
	out.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		s.Requires = append([]string(nil), s.Requires...)
		out.Steps[i] = s
	}
	return out
}

// Step returns the step with the given id.
func (w *Workflow) Step(id string) (*Step, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// StepStatuses returns the status of every step in order.
func (w *Workflow) StepStatuses() []StepStatus {
	out := make([]StepStatus, len(w.Steps))
	for i, s := range w.Steps {
		out[i] = s.Status
	}
	return out
}
