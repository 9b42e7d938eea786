// Package project implements the capability that creates and lists
// dashboard projects.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"goa.design/agentdesk/capabilities/internal/text"
	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
)

// ID is the capability id.
const ID = "project"

// Operation ids.
const (
	OpCreate = "create"
	OpList   = "list"
)

// Capability creates and lists projects.
type Capability struct{}

// New returns the project capability.
func New() *Capability { return &Capability{} }

var fillerWords = []string{"create", "make", "start", "add", "a", "an", "the", "new", "project", "workspace", "please"}

// Descriptor implements capability.Capability.
func (*Capability) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		ID:          ID,
		Name:        "Projects",
		Description: "Create and list dashboard projects",
		Icon:        "folder",
		Operations: []*capability.Operation{
			{
				ID:          OpCreate,
				Command:     "/project",
				Description: "Create a project",
				Aliases:     []string{"/new-project"},
				Parameters: []*capability.Parameter{
					{Name: "name", Kind: capability.KindString, Required: true, Description: "Project name"},
					{Name: "description", Kind: capability.KindString, Description: "Short description"},
					{Name: "status", Kind: capability.KindEnum, Default: string(commands.ProjectActive),
						Choices: []string{string(commands.ProjectPlanning), string(commands.ProjectActive), string(commands.ProjectCompleted)}},
				},
			},
			{
				ID:          OpList,
				Command:     "/projects",
				Description: "List projects",
			},
		},
	}
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx context.Context, req *capability.Request) (*capability.Result, error) {
	switch req.Operation {
	case OpCreate:
		return c.create(ctx, req)
	case OpList:
		return c.list(ctx, req)
	default:
		return nil, agenterr.NotFound("operation", ID+"."+req.Operation)
	}
}

func (c *Capability) create(ctx context.Context, req *capability.Request) (*capability.Result, error) {
	name := req.Args.String("name")
	if name == "" {
		name = ExtractName(req.Text)
	}
	if name == "" {
		oe := agenterr.Operation(ID, OpCreate, req.Input, errors.New("project name is required"), "")
		oe.Command = "/project"
		return nil, oe
	}
	desc := req.Args.String("description")
	if desc == "" {
		desc = text.About(req.Text)
	}
	status := commands.ProjectActive
	if s, ok := commands.ParseProjectStatus(req.Args.String("status")); ok {
		status = s
	}
	p, err := req.Commands.CreateProject(ctx, name, desc, status)
	if err != nil {
		return nil, agenterr.Operation(ID, OpCreate, req.Input, err, fmt.Sprintf("could not create project %q", name))
	}
	return &capability.Result{
		Message: fmt.Sprintf("Created project %q (%s).", p.Name, p.Status),
		Data:    p,
	}, nil
}

func (c *Capability) list(ctx context.Context, req *capability.Request) (*capability.Result, error) {
	ps, err := req.Commands.GetProjects(ctx)
	if err != nil {
		return nil, agenterr.Operation(ID, OpList, req.Input, err, "could not list projects")
	}
	if len(ps) == 0 {
		return &capability.Result{Message: "No projects yet. Create one with /project <name>.", Data: ps}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d project", len(ps))
	if len(ps) > 1 {
		b.WriteByte('s')
	}
	b.WriteByte(':')
	for _, p := range ps {
		fmt.Fprintf(&b, "\n- %s (%s)", p.Name, p.Status)
	}
	return &capability.Result{Message: b.String(), Data: ps}, nil
}

// ExtractName derives a project name from free text: a name introduced by
// "called", "named" or "titled", or else the text left once leading filler
// words such as "create a new project" are removed.
func ExtractName(s string) string {
	if n := text.Called(s); n != "" {
		return n
	}
	rest := text.StripWords(s, fillerWords...)
	if i := strings.Index(strings.ToLower(rest), " about "); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
