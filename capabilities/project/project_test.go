package project

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/commands/inmem"
)

func newRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	r := capability.NewRegistry()
	require.NoError(t, r.Register(New()))
	return r
}

func TestCreateFromFreeText(t *testing.T) {
	cmds := inmem.New()
	r := newRegistry(t)

	res, err := r.Execute(context.Background(), ID, OpCreate, "create a project called Launch Plan", cmds, "s1")
	require.NoError(t, err)
	require.Equal(t, `Created project "Launch Plan" (active).`, res.Message)

	ps, err := cmds.GetProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, "Launch Plan", ps[0].Name)
	require.Equal(t, commands.ProjectActive, ps[0].Status)
}

func TestCreateFromArguments(t *testing.T) {
	cmds := inmem.New()
	r := newRegistry(t)

	res, err := r.Execute(context.Background(), ID, OpCreate, `name="Q3 Roadmap" status=planning description="growth bets"`, cmds, "")
	require.NoError(t, err)
	p := res.Data.(*commands.Project)
	require.Equal(t, "Q3 Roadmap", p.Name)
	require.Equal(t, commands.ProjectPlanning, p.Status)
	require.Equal(t, "growth bets", p.Description)
}

func TestCreateRequiresName(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Execute(context.Background(), ID, OpCreate, "create a new project", inmem.New(), "")
	var oe *agenterr.OperationError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "/project create a new project", oe.Retry())
}

func TestCreateBackendFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	cmds := inmem.New(inmem.WithFailures(func(op, _ string) error {
		if op == "CreateProject" {
			return boom
		}
		return nil
	}))
	_, err := newRegistry(t).Execute(context.Background(), ID, OpCreate, "Launch Plan", cmds, "")
	require.ErrorIs(t, err, boom)
	require.EqualError(t, err, `project.create: could not create project "Launch Plan"`)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	cmds := inmem.New()
	r := newRegistry(t)

	res, err := r.Execute(ctx, ID, OpList, "", cmds, "")
	require.NoError(t, err)
	require.Contains(t, res.Message, "No projects yet")

	_, err = cmds.CreateProject(ctx, "Alpha", "", commands.ProjectActive)
	require.NoError(t, err)
	_, err = cmds.CreateProject(ctx, "Beta", "", commands.ProjectCompleted)
	require.NoError(t, err)
	res, err = r.Execute(ctx, ID, OpList, "", cmds, "")
	require.NoError(t, err)
	require.Equal(t, "You have 2 projects:\n- Alpha (active)\n- Beta (completed)", res.Message)
}

func TestExtractName(t *testing.T) {
	cases := map[string]string{
		"create a project called Launch Plan": "Launch Plan",
		"Launch Plan":                         "Launch Plan",
		"new workspace: Ops":                  "Ops",
		"create a project Atlas about maps":   "Atlas",
		"create a new project":                "",
	}
	for in, want := range cases {
		require.Equal(t, want, ExtractName(in), in)
	}
}
