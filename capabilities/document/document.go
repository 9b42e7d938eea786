// Package document implements the conversational document generator. It
// collects a topic, audience, goals, timeline and tone over five turns and
// then writes a markdown document through the command interface.
package document

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"goa.design/agentdesk/capabilities/internal/text"
	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/conversation"
)

// ID is the capability id.
const ID = "document"

// Operation ids.
const (
	OpStart    = "start"
	OpContinue = capability.OperationContinue
	OpCancel   = capability.OperationCancel
)

// Data bag fields.
const (
	FieldTopic    = "topic"
	FieldAudience = "audience"
	FieldGoals    = "goals"
	FieldTimeline = "timeline"
	FieldDeadline = "deadline"
	FieldTone     = "tone"
)

// Capability is the document generator. Its sessions live in a
// conversation.Engine.
type Capability struct {
	engine *conversation.Engine
	now    func() time.Time
}

// Option configures the capability.
type Option func(*Capability)

// WithClock overrides the clock stamped on generated documents.
func WithClock(now func() time.Time) Option {
	return func(c *Capability) { c.now = now }
}

// New returns the document capability and registers its machine with
// engine.
func New(engine *conversation.Engine, opts ...Option) (*Capability, error) {
	c := &Capability{engine: engine, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if err := engine.Register(c.Machine()); err != nil {
		return nil, fmt.Errorf("register document machine: %w", err)
	}
	return c, nil
}

// Descriptor implements capability.Capability.
func (*Capability) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		ID:          ID,
		Name:        "Documents",
		Description: "Write a plan or report through a short interview",
		Icon:        "file-text",
		Operations: []*capability.Operation{
			{ID: OpStart, Command: "/document", Description: "Start a new document"},
			{ID: OpContinue, Command: "/answer", Description: "Answer the current question"},
			{ID: OpCancel, Command: "/cancel", Description: "Abandon the document in progress"},
		},
	}
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx context.Context, req *capability.Request) (*capability.Result, error) {
	if req.SessionID == "" {
		return nil, agenterr.Operation(ID, req.Operation, req.Input, errors.New("a chat session is required"), "")
	}
	switch req.Operation {
	case OpStart:
		r, err := c.engine.Begin(ctx, ID, req.SessionID, req.Input)
		if err != nil {
			return nil, err
		}
		intro := "Let's write your document."
		if t := r.Data[FieldTopic]; t != "" {
			intro = fmt.Sprintf("Let's write your document about %s.", t)
		}
		return &capability.Result{Message: intro + " " + progress(r) + r.Prompt, Pending: true, Data: r.Data}, nil
	case OpContinue:
		r, err := c.engine.Continue(ctx, req.SessionID, req.Input, req.Commands)
		if err != nil {
			return nil, err
		}
		switch {
		case r.NothingPending:
			return &capability.Result{Message: "Nothing pending: that document is already done. Start another with /document.", NothingPending: true}, nil
		case r.Done:
			return r.Result, nil
		default:
			return &capability.Result{Message: progress(r) + r.Prompt, Pending: true, Data: r.Data}, nil
		}
	case OpCancel:
		if err := c.engine.Cancel(ctx, req.SessionID); err != nil {
			return nil, err
		}
		return &capability.Result{Message: "Document cancelled."}, nil
	default:
		return nil, agenterr.NotFound("operation", ID+"."+req.Operation)
	}
}

var (
	prefillPattern  = regexp.MustCompile(`(?i)\b(?:about|on|for|plan(?:\s+for)?|report\s+on)\s+(?:a\s+|an\s+|the\s+|our\s+)?(.+?)[.!?]?$`)
	renamePattern   = regexp.MustCompile(`(?i)\bactually,?\s+(?:call it|name it|make it about)\s+"?([^".!?]+)"?`)
	retonePattern   = regexp.MustCompile(`(?i)\b(?:make|change) the tone(?: to)?\s+(\w+)`)
	deadlinePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	listSeparator   = regexp.MustCompile(`\s*(?:,|;|\band\b)\s*`)
)

var tones = []conversation.KeywordValue{
	{Value: "formal", Keywords: []string{"formal", "professional", "corporate", "serious"}},
	{Value: "casual", Keywords: []string{"casual", "friendly", "relaxed", "fun", "informal"}},
	{Value: "persuasive", Keywords: []string{"persuasive", "bold", "convincing", "exciting"}},
	{Value: "technical", Keywords: []string{"technical", "detailed", "engineering"}},
}

// Machine returns the five phase definition of the document interview.
func (c *Capability) Machine() *conversation.Machine {
	return &conversation.Machine{
		CapabilityID: ID,
		Phases: []conversation.Phase{
			{
				Name: FieldTopic,
				Prompt: func(f conversation.Fields) string {
					if t := f[FieldTopic]; t != "" {
						return fmt.Sprintf("What should the document cover? Reply with a title, or \"ok\" to keep %q.", t)
					}
					return "What should the document cover?"
				},
				Extract: ExtractTopic,
			},
			{
				Name:    FieldAudience,
				Prompt:  func(conversation.Fields) string { return "Who is the audience?" },
				Extract: answer(FieldAudience),
			},
			{
				Name:    FieldGoals,
				Prompt:  func(conversation.Fields) string { return "What are the main goals?" },
				Extract: answer(FieldGoals),
			},
			{
				Name:    FieldTimeline,
				Prompt:  func(conversation.Fields) string { return "What is the timeline? Include a date (YYYY-MM-DD) if there is a deadline." },
				Extract: conversation.Chain(answer(FieldTimeline), conversation.Pattern(FieldDeadline, deadlinePattern)),
			},
			{
				Name:    FieldTone,
				Prompt:  func(conversation.Fields) string { return "Which tone: formal, casual, persuasive or technical?" },
				Extract: conversation.Keywords(FieldTone, tones),
			},
		},
		Prefill:  conversation.Pattern(FieldTopic, prefillPattern),
		Correct:  Correct,
		Finalize: c.finalize,
	}
}

// ExtractTopic reads the topic answer. "ok", "yes" and similar keep the
// prefilled topic.
func ExtractTopic(input string) conversation.Fields {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(input), ".!")) {
	case "ok", "okay", "yes", "sure", "keep it", "keep":
		return nil
	}
	return answer(FieldTopic)(input)
}

// answer stores the raw answer under field unless the input is a
// correction, which Correct handles instead.
func answer(field string) conversation.Extractor {
	plain := conversation.Answer(field)
	return func(input string) conversation.Fields {
		if Correct(input) != nil {
			return nil
		}
		return plain(input)
	}
}

// Correct applies corrections such as "actually call it X" or "change the
// tone to casual" made in any turn.
func Correct(input string) conversation.Fields {
	out := conversation.Fields{}
	if m := renamePattern.FindStringSubmatch(input); m != nil {
		out[FieldTopic] = strings.TrimSpace(m[1])
	}
	if m := retonePattern.FindStringSubmatch(input); m != nil {
		if f := conversation.Keywords(FieldTone, tones)(m[1]); f != nil {
			out[FieldTone] = f[FieldTone]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Capability) finalize(ctx context.Context, s conversation.Session, cmds commands.Commands) (*capability.Result, error) {
	if cmds == nil {
		return nil, errors.New("no command interface to save the document")
	}
	title := text.Title(s.Data.Get(FieldTopic, "Untitled document"))
	body := Render(title, s.Data, c.now())
	name := text.Slug(title) + ".md"
	f, err := cmds.CreateFile(ctx, name, commands.FileTypeDocument, "", body)
	if err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return &capability.Result{
		Message: fmt.Sprintf("Generated %q (%d words), saved as %s.", title, len(strings.Fields(body)), f.Name),
		Data:    f,
	}, nil
}

// Render produces the markdown document for a completed interview.
func Render(title string, f conversation.Fields, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Prepared %s for %s. Tone: %s._\n\n", at.Format("January 2, 2006"),
		f.Get(FieldAudience, "a general audience"), f.Get(FieldTone, "formal"))
	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "This document outlines %s.\n\n", strings.ToLower(title))
	b.WriteString("## Goals\n\n")
	for _, g := range splitList(f.Get(FieldGoals, "To be defined")) {
		fmt.Fprintf(&b, "- %s\n", g)
	}
	b.WriteString("\n## Timeline\n\n")
	b.WriteString(f.Get(FieldTimeline, "To be scheduled"))
	b.WriteString("\n")
	if d := f[FieldDeadline]; d != "" {
		fmt.Fprintf(&b, "\nDeadline: %s\n", d)
	}
	return b.String()
}

func progress(r *conversation.Reply) string {
	return fmt.Sprintf("(%d/%d) ", r.Phase, r.Phases)
}

func splitList(s string) []string {
	var out []string
	for _, part := range listSeparator.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
