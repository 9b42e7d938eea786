// Package capabilities wires the built-in capabilities into a registry.
package capabilities

import (
	"fmt"

	"goa.design/agentdesk/capabilities/campaign"
	"goa.design/agentdesk/capabilities/document"
	"goa.design/agentdesk/capabilities/project"
	"goa.design/agentdesk/capabilities/social"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/conversation"
)

// Aliases maps shorthand commands to the built-in operation commands. Pass
// it to capability.WithAliases.
var Aliases = map[string]string{
	"/doc":      "/document",
	"/report":   "/document",
	"/new":      "/project",
	"/schedule": "/campaign",
	"/list":     "/projects",
}

// Options configures the built-in capabilities.
type Options struct {
	Document []document.Option
	Campaign []campaign.Option
}

// Register adds the project, social, document and campaign capabilities to
// reg in that order. Document sessions are kept by sessions.
func Register(reg *capability.Registry, sessions *conversation.Engine, opts Options) error {
	doc, err := document.New(sessions, opts.Document...)
	if err != nil {
		return err
	}
	for _, c := range []capability.Capability{
		project.New(),
		social.New(),
		doc,
		campaign.New(opts.Campaign...),
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", c.Descriptor().ID, err)
		}
	}
	return nil
}
