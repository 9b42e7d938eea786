package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var clauseSeparator = regexp.MustCompile(`(?i)\s*(?:;|\n|,?\s*\band then\b|,?\s*\bthen\b)\s*`)

// SplitGoal splits a goal into clauses on ";", newlines, "then" and
// "and then".
func SplitGoal(goal string) []string {
	var out []string
	for _, c := range clauseSeparator.Split(goal, -1) {
		c = strings.Trim(strings.TrimSpace(c), ".,")
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Plan decomposes a goal into a pending workflow. Each clause becomes a step
// resolved through the Resolver and requires the step before it. Clauses
// the Resolver cannot place return its error, typically wrapping
// agenterr.ErrRoutingAmbiguous.
func (e *Engine) Plan(ctx context.Context, goal string) (Workflow, error) {
	if e.resolver == nil {
		return Workflow{}, errors.New("workflow planning requires a resolver")
	}
	clauses := SplitGoal(goal)
	if len(clauses) == 0 {
		return Workflow{}, errors.New("goal is empty")
	}
	specs := make([]StepSpec, len(clauses))
	for i, clause := range clauses {
		cand, err := e.resolver.Resolve(ctx, clause)
		if err != nil {
			return Workflow{}, fmt.Errorf("plan step %d: %w", i+1, err)
		}
		specs[i] = StepSpec{
			ID:           fmt.Sprintf("step-%d", i+1),
			CapabilityID: cand.CapabilityID,
			OperationID:  cand.OperationID,
			Input:        clause,
		}
		if i > 0 {
			specs[i].Requires = []string{specs[i-1].ID}
		}
	}
	return e.create(ctx, planName(goal), fmt.Sprintf("%d step plan", len(specs)), goal, specs)
}

func planName(goal string) string {
	name := strings.Join(strings.Fields(goal), " ")
	if r := []rune(name); len(r) > 48 {
		name = string(r[:48]) + "..."
	}
	return "Goal: " + name
}
