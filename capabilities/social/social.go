// Package social implements the capability that drafts social media posts
// and stores them as files.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"goa.design/agentdesk/capabilities/internal/text"
	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	"goa.design/agentdesk/runtime/router"
)

// ID is the capability id.
const ID = "social"

// OpDraft is the id of the draft operation.
const OpDraft = "draft"

// Supported platforms.
const (
	Twitter   = "twitter"
	LinkedIn  = "linkedin"
	Instagram = "instagram"
)

// twitterLimit is the maximum post length on Twitter.
const twitterLimit = 280

// Capability drafts social posts.
type Capability struct{}

// New returns the social capability.
func New() *Capability { return &Capability{} }

var fillerWords = []string{
	"draft", "write", "create", "make", "a", "an", "the", "new", "social", "post", "tweet", "to", "on",
	"twitter", "linkedin", "instagram", "for", "me", "please",
}

// Descriptor implements capability.Capability.
func (*Capability) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		ID:          ID,
		Name:        "Social",
		Description: "Draft posts for Twitter, LinkedIn and Instagram",
		Icon:        "megaphone",
		Operations: []*capability.Operation{{
			ID:          OpDraft,
			Command:     "/post",
			Description: "Draft a social media post",
			Aliases:     []string{"/tweet", "/social"},
			Parameters: []*capability.Parameter{
				{Name: "platform", Kind: capability.KindEnum, Choices: []string{Twitter, LinkedIn, Instagram}},
				{Name: "topic", Kind: capability.KindString, Required: true, Description: "What the post is about"},
				{Name: "project", Kind: capability.KindString, Description: "Project name or id to file the post under"},
			},
		}},
	}
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx context.Context, req *capability.Request) (*capability.Result, error) {
	if req.Operation != OpDraft {
		return nil, agenterr.NotFound("operation", ID+"."+req.Operation)
	}
	platform := req.Args.String("platform")
	if platform == "" {
		platform = DetectPlatform(req.Text)
	}
	topic := req.Args.String("topic")
	if topic == "" {
		topic = ExtractTopic(req.Text)
	}
	if topic == "" {
		oe := agenterr.Operation(ID, OpDraft, req.Input, errors.New("post topic is required"), "")
		oe.Command = "/post"
		return nil, oe
	}
	var projectID string
	if ref := req.Args.String("project"); ref != "" {
		p, err := findProject(ctx, req.Commands, ref)
		if err != nil {
			return nil, agenterr.Operation(ID, OpDraft, req.Input, err, "")
		}
		projectID = p.ID
	}

	content := Compose(platform, topic)
	name := fmt.Sprintf("%s-post-%s.txt", platform, text.Slug(topic))
	f, err := req.Commands.CreateFile(ctx, name, commands.FileTypeSocialPost, projectID, content)
	if err != nil {
		return nil, agenterr.Operation(ID, OpDraft, req.Input, err, "could not save the post")
	}
	return &capability.Result{
		Message: fmt.Sprintf("Drafted a %s post about %s:\n\n%s", platformName(platform), topic, content),
		Data:    f,
	}, nil
}

// DetectPlatform returns the platform named in s, defaulting to Twitter.
func DetectPlatform(s string) string {
	for _, tok := range router.Tokenize(s) {
		switch tok {
		case "linkedin":
			return LinkedIn
		case "instagram", "insta", "ig":
			return Instagram
		case "twitter", "tweet", "x":
			return Twitter
		}
	}
	return Twitter
}

// ExtractTopic returns the subject of a post request.
func ExtractTopic(s string) string {
	if t := text.About(s); t != "" {
		return t
	}
	return text.StripWords(s, fillerWords...)
}

// Compose renders the post body for a platform.
func Compose(platform, topic string) string {
	tag := text.Hashtag(topic)
	switch platform {
	case LinkedIn:
		return fmt.Sprintf("We're excited to share an update on %s.\n\n"+
			"Over the past weeks our team has been focused on %s, and we'd love to hear how it lands with you.\n\n"+
			"What questions do you have? Let us know in the comments.\n\n%s", topic, topic, tag)
	case Instagram:
		return fmt.Sprintf("%s is here.\n\nTap the link in our bio to learn more.\n\n%s #NewPost", text.Title(topic), tag)
	default:
		body := fmt.Sprintf("Big news: %s. Stay tuned for more!", topic)
		if tag != "" {
			body += " " + tag
		}
		return text.Truncate(body, twitterLimit)
	}
}

func platformName(p string) string {
	switch p {
	case LinkedIn:
		return "LinkedIn"
	case Instagram:
		return "Instagram"
	default:
		return "Twitter"
	}
}

func findProject(ctx context.Context, cmds commands.Commands, ref string) (*commands.Project, error) {
	ps, err := cmds.GetProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if p.ID == ref || strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	return nil, agenterr.NotFound("project", ref)
}
