// Package conversation implements the conversational session engine.
//
// A stateful capability declares a Machine: an ordered list of phases, each
// with a prompt and a pure extractor that derives data bag fields from the
// user's answer. The Engine owns the per-session state, moves sessions
// through their machine one turn at a time and finalizes them at the
// terminal phase.
//
// Contract:
//   - Phases are 1-based. Begin returns the phase 1 prompt.
//   - Each Continue extracts fields for the current phase, then either
//     advances or, at the terminal phase, finalizes.
//   - A successfully finalized session is removed from the live set; further
//     turns report that nothing is pending.
//   - Sessions idle for longer than the timeout are discarded on access.
//   - Callers serialize turns of one session.
package conversation

import (
	"context"
	"errors"
	"maps"
	"time"

	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
)

type (
	// Fields is the data bag accumulated by a session.
	Fields map[string]string

	// Extractor derives fields from one raw user response. Extractors must
	// be pure so they can be tested against literal input/output pairs.
	Extractor func(input string) Fields

	// Finalizer produces the session artifact through the command
	// interface.
	Finalizer func(ctx context.Context, s Session, cmds commands.Commands) (*capability.Result, error)

	// Phase is one step of a Machine.
	Phase struct {
		// Name identifies the phase and names the field it collects, for
		// example "audience".
		Name string
		// Prompt renders the question asked when the phase is entered.
		Prompt func(Fields) string
		// Extract derives fields from the answer to Prompt.
		Extract Extractor
		// Next selects the 1-based phase to enter after this one. Nil, or
		// a result outside the machine, selects the following phase. It is
		// not called on the terminal phase.
		Next func(Fields) int
	}

	// Machine is the phase definition of one stateful capability.
	Machine struct {
		// CapabilityID is the capability owning sessions of this machine.
		CapabilityID string
		// Phases lists the phases in order. The last one is terminal.
		Phases []Phase
		// Prefill optionally derives fields from the input that began the
		// session.
		Prefill Extractor
		// Correct optionally runs on every turn so later answers can
		// revise earlier fields, for example "actually call it X".
		Correct Extractor
		// Finalize produces the artifact once the terminal phase is
		// answered.
		Finalize Finalizer
	}

	// Session is the state of one conversation.
	Session struct {
		ID           string
		CapabilityID string
		// Phase is the 1-based current phase.
		Phase int
		Data  Fields
		// Initial is the input that began the session.
		Initial string
		// Responses lists the raw answers in order.
		Responses    []string
		CreatedAt    time.Time
		LastActivity time.Time
		// FinalizedAt is set once the session produced its artifact. A
		// finalized session is kept only as a marker.
		FinalizedAt time.Time
	}

	// Reply is the outcome of one turn.
	Reply struct {
		SessionID    string
		CapabilityID string
		// Phase is the current phase after the turn.
		Phase int
		// Phases is the number of phases of the machine.
		Phases int
		// Prompt is the next question, empty once finalized.
		Prompt string
		// Data is a copy of the data bag after the turn.
		Data Fields
		// Done is set on the turn that finalized the session.
		Done bool
		// Result is the finalization result, set when Done.
		Result *capability.Result
		// NothingPending is set when the session already finalized.
		NothingPending bool
	}

	// Store persists session state. Load returns an error wrapping
	// agenterr.ErrNotFound for unknown ids. Implementations return copies
	// so callers may mutate the sessions they load.
	Store interface {
		Load(ctx context.Context, id string) (Session, error)
		Save(ctx context.Context, s Session) error
		Delete(ctx context.Context, id string) error
	}
)

// Validate checks the machine definition.
func (m *Machine) Validate() error {
	if m.CapabilityID == "" {
		return errors.New("machine capability id is required")
	}
	if len(m.Phases) == 0 {
		return errors.New("machine requires at least one phase")
	}
	if m.Finalize == nil {
		return errors.New("machine finalizer is required")
	}
	for _, p := range m.Phases {
		if p.Prompt == nil {
			return errors.New("phase " + p.Name + ": prompt is required")
		}
	}
	return nil
}

// Merge copies every non-empty field of src into f, overwriting existing
// keys. Keys absent from src are kept.
func (f Fields) Merge(src Fields) {
	for k, v := range src {
		if v != "" {
			f[k] = v
		}
	}
}

// Clone returns a copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// Get returns the field or def when it is missing.
func (f Fields) Get(key, def string) string {
	if v, ok := f[key]; ok && v != "" {
		return v
	}
	return def
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	s.Data = s.Data.Clone()
	s.Responses = append([]string(nil), s.Responses...)
	return s
}

// Finalized reports whether the session already produced its artifact.
func (s Session) Finalized() bool { return !s.FinalizedAt.IsZero() }

func (m *Machine) next(phase int, bag Fields) int {
	p := m.Phases[phase-1]
	if p.Next != nil {
		if n := p.Next(bag); n >= 1 && n <= len(m.Phases) {
			return n
		}
	}
	return phase + 1
}

func (m *Machine) prompt(phase int, bag Fields) string {
	return m.Phases[phase-1].Prompt(bag)
}
