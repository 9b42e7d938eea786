package document

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	cmdinmem "goa.design/agentdesk/runtime/commands/inmem"
	"goa.design/agentdesk/runtime/conversation"
	"goa.design/agentdesk/runtime/conversation/inmem"
)

var day = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*capability.Registry, *cmdinmem.Store) {
	t.Helper()
	now := func() time.Time { return day }
	engine := conversation.NewEngine(inmem.New(), conversation.WithClock(now))
	c, err := New(engine, WithClock(now))
	require.NoError(t, err)
	r := capability.NewRegistry()
	require.NoError(t, r.Register(c))
	return r, cmdinmem.New()
}

func TestInterview(t *testing.T) {
	ctx := context.Background()
	r, cmds := setup(t)

	res, err := r.Execute(ctx, ID, OpStart, "plan a launch", cmds, "s1")
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.Contains(t, res.Message, "about launch")
	require.Contains(t, res.Message, "(1/5)")

	answers := []string{"ok", "the marketing team", "grow signups, press coverage", "ship by 2026-11-30", "keep it casual"}
	for i, a := range answers[:4] {
		res, err = r.Execute(ctx, ID, OpContinue, a, cmds, "s1")
		require.NoError(t, err)
		require.True(t, res.Pending)
		require.Contains(t, res.Message, fmt.Sprintf("(%d/5)", i+2))
	}
	require.Contains(t, res.Message, "(5/5)")

	res, err = r.Execute(ctx, ID, OpContinue, answers[4], cmds, "s1")
	require.NoError(t, err)
	require.False(t, res.Pending)
	require.Contains(t, res.Message, `Generated "Launch"`)

	files, err := cmds.GetAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "launch.md", files[0].Name)
	require.Equal(t, commands.FileTypeDocument, files[0].Type)
	require.Contains(t, files[0].Content, "Tone: casual")
	require.Contains(t, files[0].Content, "- grow signups\n- press coverage\n")
	require.Contains(t, files[0].Content, "Deadline: 2026-11-30")

	res, err = r.Execute(ctx, ID, OpContinue, "generate report", cmds, "s1")
	require.NoError(t, err)
	require.True(t, res.NothingPending)

	files, err = cmds.GetAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestCorrections(t *testing.T) {
	ctx := context.Background()
	r, cmds := setup(t)

	_, err := r.Execute(ctx, ID, OpStart, "write a report on Q3 sales", cmds, "s1")
	require.NoError(t, err)
	for _, a := range []string{
		"actually call it Q3 Review",
		"executives",
		"cut churn; expand enterprise",
		"next quarter",
		"formal, but change the tone to persuasive",
	} {
		_, err = r.Execute(ctx, ID, OpContinue, a, cmds, "s1")
		require.NoError(t, err)
	}

	files, err := cmds.GetAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "q3-review.md", files[0].Name)
	require.Contains(t, files[0].Content, "# Q3 Review\n")
	require.Contains(t, files[0].Content, "_Prepared October 18, 2026 for executives. Tone: persuasive._")
	require.Contains(t, files[0].Content, "- cut churn\n- expand enterprise\n")
}

func TestCorrectionMidInterviewRepeatsQuestion(t *testing.T) {
	ctx := context.Background()
	r, cmds := setup(t)

	_, err := r.Execute(ctx, ID, OpStart, "plan a launch", cmds, "s1")
	require.NoError(t, err)
	res, err := r.Execute(ctx, ID, OpContinue, "ok", cmds, "s1")
	require.NoError(t, err)
	require.Contains(t, res.Message, "(2/5)")
	audience := res.Message

	res, err = r.Execute(ctx, ID, OpContinue, "actually call it Summer Launch", cmds, "s1")
	require.NoError(t, err)
	require.Equal(t, audience, res.Message)
	require.Equal(t, "Summer Launch", res.Data.(conversation.Fields)[FieldTopic])

	for _, a := range []string{"retail partners", "more orders", "june", "formal"} {
		_, err = r.Execute(ctx, ID, OpContinue, a, cmds, "s1")
		require.NoError(t, err)
	}
	files, err := cmds.GetAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "summer-launch.md", files[0].Name)
	require.Contains(t, files[0].Content, "for retail partners.")
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	r, cmds := setup(t)

	_, err := r.Execute(ctx, ID, OpStart, "", cmds, "s1")
	require.NoError(t, err)
	res, err := r.Execute(ctx, ID, OpCancel, "", cmds, "s1")
	require.NoError(t, err)
	require.Equal(t, "Document cancelled.", res.Message)

	_, err = r.Execute(ctx, ID, OpContinue, "anything", cmds, "s1")
	require.ErrorIs(t, err, agenterr.ErrNotFound)
}

func TestRequiresSession(t *testing.T) {
	r, cmds := setup(t)
	_, err := r.Execute(context.Background(), ID, OpStart, "plan a launch", cmds, "")
	var oe *agenterr.OperationError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, ID, oe.Capability)
}

func TestFailedSaveKeepsSession(t *testing.T) {
	ctx := context.Background()
	r, _ := setup(t)

	fail := true
	cmds := cmdinmem.New(cmdinmem.WithFailures(func(op, _ string) error {
		if op == "CreateFile" && fail {
			return context.DeadlineExceeded
		}
		return nil
	}))
	_, err := r.Execute(ctx, ID, OpStart, "plan a launch", cmds, "s1")
	require.NoError(t, err)
	for _, a := range []string{"ok", "team", "goals", "soon"} {
		_, err = r.Execute(ctx, ID, OpContinue, a, cmds, "s1")
		require.NoError(t, err)
	}
	_, err = r.Execute(ctx, ID, OpContinue, "formal", cmds, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	fail = false
	res, err := r.Execute(ctx, ID, OpContinue, "formal", cmds, "s1")
	require.NoError(t, err)
	require.Contains(t, res.Message, "launch.md")
}

func TestExtractTopic(t *testing.T) {
	cases := map[string]conversation.Fields{
		"ok":                  nil,
		"Yes.":                nil,
		"Q4 hiring plan":      {FieldTopic: "Q4 hiring plan"},
		"actually call it X1": nil,
	}
	for in, want := range cases {
		require.Equal(t, want, ExtractTopic(in), in)
	}
}

func TestCorrect(t *testing.T) {
	cases := map[string]conversation.Fields{
		"actually call it Growth Plan":   {FieldTopic: "Growth Plan"},
		`Actually, name it "Roadmap"`:    {FieldTopic: "Roadmap"},
		"change the tone to friendly":    {FieldTone: "casual"},
		"make the tone technical please": {FieldTone: "technical"},
		"the marketing team":             nil,
	}
	for in, want := range cases {
		require.Equal(t, want, Correct(in), in)
	}
}

func TestPrefill(t *testing.T) {
	m := (&Capability{now: time.Now}).Machine()
	cases := map[string]conversation.Fields{
		"plan a launch":                 {FieldTopic: "launch"},
		"write a document about hiring": {FieldTopic: "hiring"},
		"report on Q3 sales.":           {FieldTopic: "Q3 sales"},
		"/document":                     nil,
	}
	for in, want := range cases {
		require.Equal(t, want, m.Prefill(in), in)
	}
}
