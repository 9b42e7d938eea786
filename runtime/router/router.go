// Package router maps free text onto a capability operation.
//
// Scoring is keyword matching: each trigger group scores the number of its
// distinct triggers found in the input times the group weight, normalized
// into a confidence in [0, 1]. Identical input always yields the identical
// ranked candidate list.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/telemetry"
)

type (
	// Router scores input against a table of trigger groups.
	Router struct {
		groups      []TriggerGroup
		registry    *capability.Registry
		saturation  int
		policy      Policy
		logger      telemetry.Logger
		maxAttained float64
	}

	// TriggerGroup maps a set of keywords to a capability operation.
	TriggerGroup struct {
		CapabilityID string
		OperationID  string
		// Triggers are lower-case keywords or phrases.
		Triggers []string
		// Weight scales the number of distinct triggers found.
		Weight float64
	}

	// Candidate is one scored routing target.
	Candidate struct {
		CapabilityID string
		OperationID  string
		Confidence   float64
		Reason       string
		Matched      []string
	}

	// Policy holds the thresholds callers apply to the top candidate.
	Policy struct {
		// Execute is the minimum confidence to run the top candidate.
		Execute float64
		// Disambiguate is the minimum confidence to offer choices.
		Disambiguate float64
		// MaxAlternates bounds the alternates offered with the top
		// candidate.
		MaxAlternates int
	}

	// Decision is the routing policy outcome for one input.
	Decision struct {
		Action     Action
		Top        *Candidate
		Alternates []Candidate
	}

	// Action tells the caller what to do with a routed input.
	Action string

	// Option configures a Router.
	Option func(*Router)
)

const (
	// ActionExecute runs the top candidate.
	ActionExecute Action = "execute"
	// ActionDisambiguate asks the user to pick among the candidates.
	ActionDisambiguate Action = "disambiguate"
	// ActionGuide lists capabilities without running anything.
	ActionGuide Action = "guide"
)

// DefaultSaturation is the number of distinct triggers of the heaviest group
// that yields full confidence.
const DefaultSaturation = 2

// DefaultPolicy returns the standard routing thresholds.
func DefaultPolicy() Policy {
	return Policy{Execute: 0.8, Disambiguate: 0.5, MaxAlternates: 2}
}

// DefaultGroups returns the trigger table of the built-in capabilities.
// Declaration order breaks ties.
func DefaultGroups() []TriggerGroup {
	return []TriggerGroup{
		{CapabilityID: "project", OperationID: "create", Weight: 10,
			Triggers: []string{"project", "create", "new", "workspace"}},
		{CapabilityID: "project", OperationID: "list", Weight: 8,
			Triggers: []string{"projects", "list", "show", "all"}},
		{CapabilityID: "social", OperationID: "draft", Weight: 10,
			Triggers: []string{"twitter", "tweet", "social", "post", "linkedin", "instagram"}},
		{CapabilityID: "document", OperationID: "start", Weight: 9,
			Triggers: []string{"document", "doc", "report", "plan", "launch", "proposal", "write"}},
		{CapabilityID: "campaign", OperationID: "generate", Weight: 9,
			Triggers: []string{"campaign", "schedule", "bulk", "calendar", "series", "month"}},
	}
}

// WithGroups replaces the trigger table.
func WithGroups(groups []TriggerGroup) Option {
	return func(r *Router) { r.groups = groups }
}

// WithSaturation sets the number of distinct triggers yielding full
// confidence for the heaviest group.
func WithSaturation(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.saturation = n
		}
	}
}

// WithPolicy overrides the routing thresholds.
func WithPolicy(p Policy) Option {
	return func(r *Router) { r.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Router over the default trigger table. When reg is not nil,
// groups whose capability is not registered never produce candidates.
func New(reg *capability.Registry, opts ...Option) *Router {
	r := &Router{
		groups:     DefaultGroups(),
		registry:   reg,
		saturation: DefaultSaturation,
		policy:     DefaultPolicy(),
		logger:     telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	var maxWeight float64
	for _, g := range r.groups {
		if g.Weight > maxWeight {
			maxWeight = g.Weight
		}
	}
	r.maxAttained = maxWeight * float64(r.saturation)
	return r
}

// Route returns the candidates matching input ranked by confidence. Ties keep
// declaration order. The list is empty when nothing matched.
func (r *Router) Route(input string) []Candidate {
	text := " " + strings.Join(Tokenize(input), " ") + " "
	var out []Candidate
	index := make(map[capability.Target]int)
	for _, g := range r.groups {
		if r.registry != nil {
			if _, err := r.registry.Get(g.CapabilityID); err != nil {
				continue
			}
		}
		matched := matches(text, g.Triggers)
		if len(matched) == 0 || r.maxAttained == 0 {
			continue
		}
		score := float64(len(matched)) * g.Weight
		c := Candidate{
			CapabilityID: g.CapabilityID,
			OperationID:  g.OperationID,
			Confidence:   min(1, score/r.maxAttained),
			Reason:       "matched " + strings.Join(matched, ", "),
			Matched:      matched,
		}
		// Groups sharing a target keep the best score at the first
		// group's position.
		target := capability.Target{CapabilityID: g.CapabilityID, OperationID: g.OperationID}
		if i, ok := index[target]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		index[target] = len(out)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// Decide applies the routing policy to ranked candidates.
func (r *Router) Decide(candidates []Candidate) Decision {
	if len(candidates) == 0 {
		return Decision{Action: ActionGuide}
	}
	top := candidates[0]
	switch {
	case top.Confidence >= r.policy.Execute:
		return Decision{Action: ActionExecute, Top: &top}
	case top.Confidence >= r.policy.Disambiguate:
		alts := candidates[1:]
		if len(alts) > r.policy.MaxAlternates {
			alts = alts[:r.policy.MaxAlternates]
		}
		return Decision{Action: ActionDisambiguate, Top: &top, Alternates: append([]Candidate(nil), alts...)}
	default:
		return Decision{Action: ActionGuide, Top: &top}
	}
}

// Resolve returns the top candidate for input when the policy allows running
// it, and an error wrapping agenterr.ErrRoutingAmbiguous otherwise.
func (r *Router) Resolve(ctx context.Context, input string) (Candidate, error) {
	cands := r.Route(input)
	d := r.Decide(cands)
	r.logger.Debug(ctx, "input routed", "action", string(d.Action), "candidates", len(cands))
	if d.Action != ActionExecute {
		return Candidate{}, fmt.Errorf("route %q: %w", input, agenterr.ErrRoutingAmbiguous)
	}
	return *d.Top, nil
}

// Tokenize lower-cases input and splits it on non-alphanumeric runes.
func Tokenize(input string) []string {
	return strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matches returns the distinct triggers found in text, in trigger order.
// text is the space-joined token list padded with spaces.
func matches(text string, triggers []string) []string {
	var found []string
	seen := make(map[string]bool, len(triggers))
	for _, tr := range triggers {
		phrase := strings.Join(Tokenize(tr), " ")
		if phrase == "" || seen[phrase] {
			continue
		}
		if strings.Contains(text, " "+phrase+" ") {
			seen[phrase] = true
			found = append(found, phrase)
		}
	}
	return found
}
