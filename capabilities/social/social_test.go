package social

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/commands/inmem"
)

func execute(t *testing.T, cmds commands.Commands, input string) (*capability.Result, error) {
	t.Helper()
	r := capability.NewRegistry()
	require.NoError(t, r.Register(New()))
	return r.Execute(context.Background(), ID, OpDraft, input, cmds, "s1")
}

func TestDraftFromFreeText(t *testing.T) {
	cmds := inmem.New()
	res, err := execute(t, cmds, "post to twitter about our spring sale")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Message, "Drafted a Twitter post about our spring sale:"))

	f := res.Data.(*commands.File)
	require.Equal(t, "twitter-post-our-spring-sale.txt", f.Name)
	require.Equal(t, commands.FileTypeSocialPost, f.Type)
	require.Equal(t, "Big news: our spring sale. Stay tuned for more! #OurSpringSale", f.Content)
}

func TestDraftAttachesProject(t *testing.T) {
	ctx := context.Background()
	cmds := inmem.New()
	p, err := cmds.CreateProject(ctx, "Launch Plan", "", commands.ProjectActive)
	require.NoError(t, err)

	res, err := execute(t, cmds, `platform=LinkedIn topic="the beta" project="launch plan"`)
	require.NoError(t, err)
	f := res.Data.(*commands.File)
	require.Equal(t, p.ID, f.ProjectID)
	require.Contains(t, f.Content, "an update on the beta")

	_, err = execute(t, cmds, `topic=x project=ghost`)
	require.ErrorIs(t, err, agenterr.ErrNotFound)
}

func TestDraftRequiresTopic(t *testing.T) {
	_, err := execute(t, inmem.New(), "tweet")
	var oe *agenterr.OperationError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "/post tweet", oe.Retry())
}

func TestDetectPlatform(t *testing.T) {
	require.Equal(t, LinkedIn, DetectPlatform("share on LinkedIn"))
	require.Equal(t, Instagram, DetectPlatform("an insta story"))
	require.Equal(t, Twitter, DetectPlatform("a post"))
}

func TestComposeRespectsTwitterLimit(t *testing.T) {
	topic := strings.Repeat("very long topic ", 30)
	require.LessOrEqual(t, len([]rune(Compose(Twitter, topic))), twitterLimit)
	require.Contains(t, Compose(Instagram, "spring sale"), "Spring Sale is here.")
}
