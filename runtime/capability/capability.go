// Package capability defines the capability model of the orchestration core
// and the Registry that owns registered capabilities.
//
// A capability is a provider of one or more invocable operations. Operations
// are addressed either by their slash command (for example "/project") or by
// the Intent Router mapping free text onto a capability and operation.
package capability

import (
	"context"
	"strings"

	"goa.design/agentdesk/runtime/commands"
)

type (
	// Capability is implemented by every capability provider. Dispatch is a
	// single method: the operation id selects the behavior.
	Capability interface {
		// Descriptor returns the static description of the capability. It is
		// read once at registration.
		Descriptor() Descriptor
		// Execute runs the operation named in req. Capabilities own their
		// error handling; returned errors propagate to the caller unchanged.
		Execute(ctx context.Context, req *Request) (*Result, error)
	}

	// Descriptor identifies a capability and lists its operations in
	// declaration order.
	Descriptor struct {
		// ID is the unique capability identifier.
		ID string
		// Name is the display name.
		Name string
		// Description is a one-line summary shown in guidance messages.
		Description string
		// Icon is a presentation tag.
		Icon string
		// Operations lists the invocable operations.
		Operations []*Operation
	}

	// Operation is a single invocable entry point of a capability.
	Operation struct {
		// ID is unique within the capability.
		ID string
		// Command is the canonical slash command, for example "/project".
		Command string
		// Description explains what the operation does.
		Description string
		// Parameters are the typed inline arguments the operation accepts.
		Parameters []*Parameter
		// Aliases are deprecated commands that resolve to Command.
		Aliases []string
	}

	// Parameter describes one inline argument.
	Parameter struct {
		// Name is the argument key, as in name=value.
		Name string
		// Kind is the value type.
		Kind Kind
		// Description is shown in usage output.
		Description string
		// Required marks arguments the operation cannot run without. The
		// capability enforces it since values may come from free text.
		Required bool
		// Choices lists the allowed values of an enum parameter.
		Choices []string
		// Default is applied when the argument is absent.
		Default any
	}

	// Kind is the type of a Parameter.
	Kind string

	// Request carries one operation invocation to a capability.
	Request struct {
		// Operation is the id of the operation to run.
		Operation string
		// Input is the raw text following the command, or the full free
		// text when the operation was routed.
		Input string
		// Text is Input with inline key=value arguments removed.
		Text string
		// Args holds the parsed and coerced inline arguments, including
		// defaults.
		Args Args
		// Commands is the backend the capability calls into.
		Commands commands.Commands
		// SessionID identifies the chat session, if any.
		SessionID string
	}

	// Result is the outcome of a successful operation.
	Result struct {
		// Message is the user facing reply.
		Message string
		// Data carries structured output (created project, files, ...).
		Data any
		// Pending is true when the capability opened or kept a
		// conversational session that expects another turn.
		Pending bool
		// NothingPending is true when a continuation found no live work,
		// for example after the session already finalized.
		NothingPending bool
	}
)

const (
	// KindString is a free text parameter.
	KindString Kind = "string"
	// KindNumber is a numeric parameter, parsed as float64.
	KindNumber Kind = "number"
	// KindBoolean is a true/false parameter.
	KindBoolean Kind = "boolean"
	// KindEnum is a string restricted to Parameter.Choices.
	KindEnum Kind = "enum"
)

// Conventional operation ids of conversational capabilities. The
// orchestrator sends turns of a live session to OperationContinue.
const (
	OperationContinue = "continue"
	OperationCancel   = "cancel"
)

// Operation returns the operation with the given id.
func (d Descriptor) Operation(id string) (*Operation, bool) {
	for _, op := range d.Operations {
		if op.ID == id {
			return op, true
		}
	}
	return nil, false
}

// Parameter returns the parameter with the given name.
func (o *Operation) Parameter(name string) (*Parameter, bool) {
	for _, p := range o.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Missing returns the names of required parameters absent from args.
func (o *Operation) Missing(args Args) []string {
	var missing []string
	for _, p := range o.Parameters {
		if !p.Required {
			continue
		}
		if v, ok := args[p.Name]; !ok || v == "" {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// Usage renders a one-line usage string such as
// "/post platform=<twitter|linkedin> topic=<string>".
func (o *Operation) Usage() string {
	var b strings.Builder
	b.WriteString(o.Command)
	for _, p := range o.Parameters {
		b.WriteByte(' ')
		if !p.Required {
			b.WriteByte('[')
		}
		b.WriteString(p.Name)
		b.WriteString("=<")
		if p.Kind == KindEnum {
			b.WriteString(strings.Join(p.Choices, "|"))
		} else {
			b.WriteString(string(p.Kind))
		}
		b.WriteByte('>')
		if !p.Required {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// SplitCommand splits input of the form "/name rest..." into the lower-cased
// command and the remaining text. ok is false when input does not start
// with a slash command.
func SplitCommand(input string) (cmd, rest string, ok bool) {
	s := strings.TrimSpace(input)
	if !strings.HasPrefix(s, "/") || len(s) == 1 {
		return "", "", false
	}
	cmd, rest, _ = strings.Cut(s, " ")
	return strings.ToLower(cmd), strings.TrimSpace(rest), true
}
