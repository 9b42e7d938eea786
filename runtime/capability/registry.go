package capability

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/telemetry"
)

type (
	// Registry holds registered capabilities. It is safe for concurrent use.
	// Capabilities are immutable once registered; registering an existing id
	// replaces it in place.
	Registry struct {
		mu      sync.RWMutex
		order   []string
		entries map[string]*entry
		aliases map[string]string
		logger  telemetry.Logger
	}

	// Target identifies an operation of a registered capability.
	Target struct {
		CapabilityID string
		OperationID  string
	}

	// RegistryOption configures a Registry.
	RegistryOption func(*Registry)

	entry struct {
		cap     Capability
		desc    Descriptor
		schemas map[string]*jsonschema.Schema
	}
)

// WithAliases installs registry-wide deprecated command aliases, mapping the
// old command to its canonical form (for example "/doc" to "/document").
func WithAliases(aliases map[string]string) RegistryOption {
	return func(r *Registry) {
		for from, to := range aliases {
			r.aliases[normalizeCommand(from)] = normalizeCommand(to)
		}
	}
}

// WithLogger sets the logger used to report registrations.
func WithLogger(l telemetry.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		aliases: make(map[string]string),
		logger:  telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds c or replaces the capability registered under the same id.
// A replaced capability keeps its position in List.
func (r *Registry) Register(c Capability) error {
	desc := c.Descriptor()
	if desc.ID == "" {
		return fmt.Errorf("capability id is required")
	}
	schemas := make(map[string]*jsonschema.Schema, len(desc.Operations))
	ops := make([]*Operation, 0, len(desc.Operations))
	for _, op := range desc.Operations {
		if op.ID == "" {
			return fmt.Errorf("capability %q: operation id is required", desc.ID)
		}
		if _, dup := schemas[op.ID]; dup {
			return fmt.Errorf("capability %q: duplicate operation %q", desc.ID, op.ID)
		}
		schema, err := compileSchema(desc.ID, op)
		if err != nil {
			return fmt.Errorf("capability %q operation %q: %w", desc.ID, op.ID, err)
		}
		schemas[op.ID] = schema
		cp := *op
		cp.Command = normalizeCommand(op.Command)
		ops = append(ops, &cp)
	}
	desc.Operations = ops

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[desc.ID]; !ok {
		r.order = append(r.order, desc.ID)
	}
	r.entries[desc.ID] = &entry{cap: c, desc: desc, schemas: schemas}
	r.logger.Debug(context.Background(), "capability registered", "capability", desc.ID, "operations", len(ops))
	return nil
}

// Get returns the capability registered under id.
func (r *Registry) Get(id string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, agenterr.NotFound("capability", id)
	}
	return e.cap, nil
}

// Describe returns the descriptor of the capability registered under id.
func (r *Registry) Describe(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, agenterr.NotFound("capability", id)
	}
	return e.desc, nil
}

// List returns the descriptors of all capabilities in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].desc)
	}
	return out
}

// FindByCommand resolves deprecated aliases to the canonical command and
// returns the first operation, in registration order, whose command matches
// exactly.
func (r *Registry) FindByCommand(cmd string) (Target, bool) {
	cmd = normalizeCommand(cmd)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[cmd]; ok {
		cmd = canonical
	} else {
		cmd = r.operationAlias(cmd)
	}
	for _, id := range r.order {
		for _, op := range r.entries[id].desc.Operations {
			if op.Command == cmd {
				return Target{CapabilityID: id, OperationID: op.ID}, true
			}
		}
	}
	return Target{}, false
}

// Execute runs an operation. It fails with agenterr.ErrNotFound when the
// capability or operation is unknown and with an *agenterr.OperationError
// when inline arguments do not match the operation parameters. Otherwise the
// capability result and error are returned unmodified.
func (r *Registry) Execute(ctx context.Context, capID, opID, input string, cmds commands.Commands, sessionID string) (*Result, error) {
	r.mu.RLock()
	e, ok := r.entries[capID]
	r.mu.RUnlock()
	if !ok {
		return nil, agenterr.NotFound("capability", capID)
	}
	op, ok := e.desc.Operation(opID)
	if !ok {
		return nil, agenterr.NotFound("operation", capID+"."+opID)
	}
	raw, text := ParseArgs(input)
	args := op.coerce(raw)
	if err := e.schemas[opID].Validate(map[string]any(args)); err != nil {
		oe := agenterr.Operation(capID, opID, input, err, "invalid arguments, usage: "+op.Usage())
		oe.Command = op.Command
		return nil, oe
	}
	return e.cap.Execute(ctx, &Request{
		Operation: opID,
		Input:     input,
		Text:      text,
		Args:      args,
		Commands:  cmds,
		SessionID: sessionID,
	})
}

// operationAlias maps a per-operation deprecated alias to its canonical
// command. The caller holds the read lock.
func (r *Registry) operationAlias(cmd string) string {
	for _, id := range r.order {
		for _, op := range r.entries[id].desc.Operations {
			for _, a := range op.Aliases {
				if normalizeCommand(a) == cmd {
					return op.Command
				}
			}
		}
	}
	return cmd
}

func normalizeCommand(cmd string) string {
	cmd = strings.ToLower(strings.TrimSpace(cmd))
	if cmd != "" && !strings.HasPrefix(cmd, "/") {
		cmd = "/" + cmd
	}
	return cmd
}
