// Package orchestrator is the chat entry point of the core. It stores the
// conversation transcript, dispatches slash commands, hands turns to live
// conversational sessions and routes free text through the Intent Router,
// recording every capability execution in the Tracker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/conversation"
	"goa.design/agentdesk/runtime/router"
	"goa.design/agentdesk/runtime/telemetry"
	"goa.design/agentdesk/runtime/tracker"
	"goa.design/agentdesk/runtime/workflow"
)

type (
	// Orchestrator handles chat turns. It is safe for concurrent use across
	// sessions; turns of one session must be serialized by the caller.
	Orchestrator struct {
		registry  *capability.Registry
		router    *router.Router
		sessions  *conversation.Engine
		tracker   *tracker.Tracker
		workflows *workflow.Engine
		cmds      commands.Commands
		logger    telemetry.Logger
		guideSize int
	}

	// Config lists the components wired into an Orchestrator. Registry,
	// Router, Tracker and Commands are required.
	Config struct {
		Registry  *capability.Registry
		Router    *router.Router
		Sessions  *conversation.Engine
		Tracker   *tracker.Tracker
		Workflows *workflow.Engine
		Commands  commands.Commands
		Logger    telemetry.Logger
		// GuideSize bounds the capabilities listed in guidance replies.
		// Defaults to 3.
		GuideSize int
	}

	// Response is the reply to one chat turn.
	Response struct {
		Kind    Kind
		Message string
		// CapabilityID and OperationID identify the operation that ran or
		// the top routing candidate.
		CapabilityID string
		OperationID  string
		// Confidence is the routing confidence of routed input.
		Confidence float64
		// Candidates lists the choices offered when disambiguating.
		Candidates []router.Candidate
		// Result is the capability result when an operation ran.
		Result      *capability.Result
		ExecutionID string
	}

	// Kind classifies a Response.
	Kind string
)

const (
	// KindExecuted reports that an operation ran.
	KindExecuted Kind = "executed"
	// KindDisambiguate asks the user to choose among candidates.
	KindDisambiguate Kind = "disambiguate"
	// KindGuide lists capabilities since nothing matched confidently.
	KindGuide Kind = "guide"
	// KindNotFound reports an unknown command.
	KindNotFound Kind = "not_found"
	// KindExpired reports an expired conversational session.
	KindExpired Kind = "expired"
	// KindFailed reports a failed operation.
	KindFailed Kind = "failed"
)

// New returns an Orchestrator over cfg.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("orchestrator: registry is required")
	case cfg.Router == nil:
		return nil, errors.New("orchestrator: router is required")
	case cfg.Tracker == nil:
		return nil, errors.New("orchestrator: tracker is required")
	case cfg.Commands == nil:
		return nil, errors.New("orchestrator: commands are required")
	}
	o := &Orchestrator{
		registry:  cfg.Registry,
		router:    cfg.Router,
		sessions:  cfg.Sessions,
		tracker:   cfg.Tracker,
		workflows: cfg.Workflows,
		cmds:      cfg.Commands,
		logger:    cfg.Logger,
		guideSize: cfg.GuideSize,
	}
	if o.logger == nil {
		o.logger = telemetry.NewNoopLogger()
	}
	if o.guideSize <= 0 {
		o.guideSize = 3
	}
	return o, nil
}

// Handle processes one chat turn. The returned Response always carries a
// user facing message; the error is set for unknown commands and failed
// operations so callers can classify them with errors.Is and errors.As.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, input string) (*Response, error) {
	input = strings.TrimSpace(input)
	o.store(ctx, commands.RoleUser, input, sessionID)
	resp, err := o.handle(ctx, sessionID, input)
	if resp != nil {
		o.store(ctx, commands.RoleAssistant, resp.Message, sessionID)
	}
	return resp, err
}

func (o *Orchestrator) handle(ctx context.Context, sessionID, input string) (*Response, error) {
	if cmd, rest, ok := capability.SplitCommand(input); ok {
		target, found := o.registry.FindByCommand(cmd)
		if !found {
			return &Response{
				Kind:    KindNotFound,
				Message: fmt.Sprintf("Unknown command %s. Available commands: %s.", cmd, strings.Join(o.commandList(), ", ")),
			}, agenterr.NotFound("command", cmd)
		}
		return o.execute(ctx, target.CapabilityID, target.OperationID, rest, sessionID, 1)
	}

	if o.sessions != nil && sessionID != "" {
		capID, err := o.sessions.Lookup(ctx, sessionID)
		switch {
		case err == nil:
			return o.execute(ctx, capID, capability.OperationContinue, input, sessionID, 1)
		case errors.Is(err, agenterr.ErrSessionExpired):
			return o.expired(capID), nil
		case !errors.Is(err, agenterr.ErrNotFound):
			return nil, err
		}
	}

	cands := o.router.Route(input)
	d := o.router.Decide(cands)
	o.logger.Debug(ctx, "chat input routed", "session", sessionID, "action", string(d.Action), "candidates", len(cands))
	switch d.Action {
	case router.ActionExecute:
		return o.execute(ctx, d.Top.CapabilityID, d.Top.OperationID, input, sessionID, d.Top.Confidence)
	case router.ActionDisambiguate:
		return o.disambiguate(d), nil
	default:
		return o.guide(), nil
	}
}

// RunGoal plans a workflow for goal and runs it to completion.
func (o *Orchestrator) RunGoal(ctx context.Context, goal string) (workflow.Workflow, error) {
	if o.workflows == nil {
		return workflow.Workflow{}, errors.New("orchestrator: workflows are not configured")
	}
	wf, err := o.workflows.Plan(ctx, goal)
	if err != nil {
		return workflow.Workflow{}, err
	}
	return o.workflows.Start(ctx, wf.ID)
}

func (o *Orchestrator) execute(ctx context.Context, capID, opID, input, sessionID string, confidence float64) (*Response, error) {
	var res *capability.Result
	exec, err := o.tracker.Run(ctx, tracker.Invocation{
		CapabilityID: capID,
		OperationID:  opID,
		SessionID:    sessionID,
		Input:        input,
	}, func(ctx context.Context) (string, error) {
		r, err := o.registry.Execute(ctx, capID, opID, input, o.cmds, sessionID)
		if err != nil {
			return "", err
		}
		res = r
		if r == nil {
			return "", nil
		}
		return r.Message, nil
	})
	if err != nil {
		if agenterr.IsNotFound(err) {
			return &Response{Kind: KindNotFound, Message: err.Error(), CapabilityID: capID, OperationID: opID}, err
		}
		if agenterr.IsExpired(err) {
			resp := o.expired(capID)
			resp.ExecutionID = exec.ID
			return resp, nil
		}
		oe := agenterr.FromError(capID, opID, input, err)
		if oe.Command == "" {
			oe.Command = o.command(capID, opID)
		}
		msg := "Sorry, " + oe.Error() + "."
		if retry := oe.Retry(); retry != "" {
			msg += " Retry with: " + retry
		}
		return &Response{Kind: KindFailed, Message: msg, CapabilityID: capID, OperationID: opID, ExecutionID: exec.ID}, oe
	}
	resp := &Response{
		Kind:         KindExecuted,
		CapabilityID: capID,
		OperationID:  opID,
		Confidence:   confidence,
		Result:       res,
		ExecutionID:  exec.ID,
	}
	if res != nil {
		resp.Message = res.Message
	}
	return resp, nil
}

func (o *Orchestrator) expired(capID string) *Response {
	msg := "Your session expired after a period of inactivity."
	if d, derr := o.registry.Describe(capID); derr == nil && len(d.Operations) > 0 {
		msg += fmt.Sprintf(" Start again with %s.", d.Operations[0].Command)
	} else {
		msg += " Please start again."
	}
	return &Response{Kind: KindExpired, Message: msg, CapabilityID: capID}
}

func (o *Orchestrator) disambiguate(d router.Decision) *Response {
	cands := append([]router.Candidate{*d.Top}, d.Alternates...)
	opts := make([]string, 0, len(cands))
	for _, c := range cands {
		opts = append(opts, fmt.Sprintf("%s (%s)", o.displayName(c.CapabilityID), o.command(c.CapabilityID, c.OperationID)))
	}
	return &Response{
		Kind:         KindDisambiguate,
		Message:      "Did you mean: " + strings.Join(opts, ", ") + "?",
		CapabilityID: d.Top.CapabilityID,
		OperationID:  d.Top.OperationID,
		Confidence:   d.Top.Confidence,
		Candidates:   cands,
	}
}

func (o *Orchestrator) guide() *Response {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range o.tracker.Popular(0) {
		if len(ids) >= o.guideSize {
			break
		}
		if _, err := o.registry.Get(id); err == nil {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	for _, d := range o.registry.List() {
		if len(ids) >= o.guideSize {
			break
		}
		if !seen[d.ID] {
			ids = append(ids, d.ID)
		}
	}
	lines := []string{"I'm not sure what you need. Try one of these:"}
	for _, id := range ids {
		d, err := o.registry.Describe(id)
		if err != nil || len(d.Operations) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s %s: %s", d.Operations[0].Command, d.Name, d.Description))
	}
	return &Response{Kind: KindGuide, Message: strings.Join(lines, "\n")}
}

func (o *Orchestrator) commandList() []string {
	var out []string
	for _, d := range o.registry.List() {
		for _, op := range d.Operations {
			out = append(out, op.Command)
		}
	}
	return out
}

func (o *Orchestrator) command(capID, opID string) string {
	d, err := o.registry.Describe(capID)
	if err != nil {
		return ""
	}
	if op, ok := d.Operation(opID); ok {
		return op.Command
	}
	return ""
}

func (o *Orchestrator) displayName(capID string) string {
	if d, err := o.registry.Describe(capID); err == nil && d.Name != "" {
		return d.Name
	}
	return capID
}

func (o *Orchestrator) store(ctx context.Context, role commands.Role, content, sessionID string) {
	if content == "" {
		return
	}
	if _, err := o.cmds.StoreMessage(ctx, role, content, sessionID); err != nil {
		o.logger.Warn(ctx, "chat message not stored", "session", sessionID, "role", string(role), "error", err)
	}
}
