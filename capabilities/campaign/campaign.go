// Package campaign implements the capability that generates a multi-day
// social media campaign. The scheduled posts are written through the batch
// processor so large campaigns stay within backend write limits.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"goa.design/agentdesk/capabilities/internal/text"
	"goa.design/agentdesk/capabilities/social"
	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/batch"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
)

// ID is the capability id.
const ID = "campaign"

// OpGenerate is the id of the generate operation.
const OpGenerate = "generate"

// Campaign bounds and defaults.
const (
	DefaultDays   = 7
	MaxDays       = 90
	DefaultPerDay = 1
	MaxPerDay     = 10
)

const dateLayout = "2006-01-02"

type (
	// Capability generates campaigns.
	Capability struct {
		processor *batch.Processor[Item]
		now       func() time.Time
	}

	// Option configures the capability.
	Option func(*options)

	// Item is one scheduled post of a campaign.
	Item struct {
		// Day is the 1-based campaign day.
		Day int
		// Slot is the 1-based position of the post within its day.
		Slot      int
		At        time.Time
		Platform  string
		Name      string
		Content   string
		ProjectID string
	}

	// Plan describes a campaign before it is written.
	Plan struct {
		Theme    string
		Platform string
		Days     int
		PerDay   int
		Start    time.Time
	}

	options struct {
		batch []batch.Option
		now   func() time.Time
	}
)

// WithBatchOptions configures the processor writing the posts.
func WithBatchOptions(opts ...batch.Option) Option {
	return func(o *options) { o.batch = append(o.batch, opts...) }
}

// WithClock overrides the clock used for the default start date.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New returns the campaign capability.
func New(opts ...Option) *Capability {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	bopts := append([]batch.Option{batch.WithClock(o.now)}, o.batch...)
	return &Capability{processor: batch.New[Item](bopts...), now: o.now}
}

var fillerWords = []string{
	"generate", "create", "plan", "schedule", "build", "make", "run", "a", "an", "the", "new",
	"social", "media", "post", "posts", "campaign", "calendar", "series", "bulk", "please",
}

var (
	daysPattern   = regexp.MustCompile(`(?i)\b(\d+)[\s-]*days?\b`)
	weeksPattern  = regexp.MustCompile(`(?i)\b(\d+)[\s-]*weeks?\b`)
	perDayPattern = regexp.MustCompile(`(?i)\b(\d+)\s*(?:posts?\s+)?(?:per|a|each)\s+day\b`)
	datePattern   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	numberPattern = regexp.MustCompile(`\b\d+[\s-]*(?:days?|weeks?|months?|posts?)\b`)
	monthPattern  = regexp.MustCompile(`(?i)\bmonth\b`)
)

var angles = []string{
	"Big news: %s is here.",
	"Behind the scenes of %s.",
	"Three things to know about %s.",
	"Why %s matters to you.",
	"Your questions about %s, answered.",
	"Don't miss out on %s.",
	"A closer look at %s.",
}

// Descriptor implements capability.Capability.
func (*Capability) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		ID:          ID,
		Name:        "Campaigns",
		Description: "Schedule a series of social posts over several days",
		Icon:        "calendar",
		Operations: []*capability.Operation{{
			ID:          OpGenerate,
			Command:     "/campaign",
			Description: "Generate a campaign of scheduled posts",
			Parameters: []*capability.Parameter{
				{Name: "theme", Kind: capability.KindString, Required: true, Description: "What the campaign promotes"},
				{Name: "days", Kind: capability.KindNumber, Description: "Campaign length in days (1-90, default 7)"},
				{Name: "per_day", Kind: capability.KindNumber, Description: "Posts per day (1-10, default 1)"},
				{Name: "platform", Kind: capability.KindEnum, Choices: []string{social.Twitter, social.LinkedIn, social.Instagram}},
				{Name: "start", Kind: capability.KindString, Description: "First day, YYYY-MM-DD (default today)"},
			},
		}},
	}
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx context.Context, req *capability.Request) (*capability.Result, error) {
	if req.Operation != OpGenerate {
		return nil, agenterr.NotFound("operation", ID+"."+req.Operation)
	}
	plan, err := c.Parse(req.Args, req.Text)
	if err != nil {
		oe := agenterr.Operation(ID, OpGenerate, req.Input, err, "")
		oe.Command = "/campaign"
		return nil, oe
	}

	title := "Campaign: " + text.Title(plan.Theme)
	p, err := req.Commands.CreateProject(ctx, title, fmt.Sprintf("%d day %s campaign", plan.Days, plan.Platform), commands.ProjectActive)
	if err != nil {
		return nil, agenterr.Operation(ID, OpGenerate, req.Input, err, "could not create the campaign project")
	}
	items := Items(plan, p.ID)
	report, err := c.processor.Process(ctx, p.ID, items, func(ctx context.Context, it Item) error {
		_, err := req.Commands.CreateFile(ctx, it.Name, commands.FileTypeScheduledPost, it.ProjectID, it.Content)
		return err
	})
	if err != nil {
		oe := agenterr.Operation(ID, OpGenerate, req.Input, err,
			fmt.Sprintf("campaign interrupted after %d of %d posts", report.Succeeded(), report.Total))
		oe.Command = "/campaign"
		return nil, oe
	}
	if report.Total > 0 && report.Failed == report.Total {
		oe := agenterr.Operation(ID, OpGenerate, req.Input, report.Errors()[0], "no posts could be scheduled")
		oe.Command = "/campaign"
		return nil, oe
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Campaign %q: scheduled %d of %d posts across %d batches", plan.Theme, report.Succeeded(), report.Total, len(report.Batches))
	fmt.Fprintf(&b, " (%s to %s).", plan.Start.Format(dateLayout), plan.Start.AddDate(0, 0, plan.Days-1).Format(dateLayout))
	if report.Failed > 0 {
		fmt.Fprintf(&b, " %d posts failed.", report.Failed)
	}
	return &capability.Result{Message: b.String(), Data: report}, nil
}

// Parse builds a plan from inline arguments, falling back to the free text
// for values that were not given explicitly.
func (c *Capability) Parse(args capability.Args, s string) (Plan, error) {
	plan := Plan{
		Theme:    args.String("theme"),
		Platform: args.String("platform"),
		Days:     args.Int("days", 0),
		PerDay:   args.Int("per_day", 0),
	}
	if plan.Theme == "" {
		plan.Theme = ExtractTheme(s)
	}
	if plan.Theme == "" {
		return Plan{}, errors.New("a campaign theme is required")
	}
	if plan.Platform == "" {
		plan.Platform = social.DetectPlatform(s)
	}
	if plan.Days == 0 {
		plan.Days = ExtractDays(s)
	}
	if plan.PerDay == 0 {
		plan.PerDay = firstInt(perDayPattern, s, DefaultPerDay)
	}
	if plan.Days < 1 || plan.Days > MaxDays {
		return Plan{}, fmt.Errorf("days must be between 1 and %d", MaxDays)
	}
	if plan.PerDay < 1 || plan.PerDay > MaxPerDay {
		return Plan{}, fmt.Errorf("per_day must be between 1 and %d", MaxPerDay)
	}
	start := args.String("start")
	if start == "" {
		if m := datePattern.FindStringSubmatch(s); m != nil {
			start = m[1]
		}
	}
	if start == "" {
		now := c.now()
		plan.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return plan, nil
	}
	t, err := time.Parse(dateLayout, start)
	if err != nil {
		return Plan{}, fmt.Errorf("start must be a date formatted as YYYY-MM-DD, got %q", start)
	}
	plan.Start = t
	return plan, nil
}

// Items expands a plan into its scheduled posts. Posts of a day are spread
// evenly between 09:00 and 21:00.
func Items(p Plan, projectID string) []Item {
	items := make([]Item, 0, p.Days*p.PerDay)
	gap := 12 * time.Hour / time.Duration(p.PerDay)
	tag := text.Hashtag(p.Theme)
	slug := text.Slug(p.Theme)
	for d := 1; d <= p.Days; d++ {
		day := p.Start.AddDate(0, 0, d-1)
		for s := 1; s <= p.PerDay; s++ {
			at := day.Add(9*time.Hour + time.Duration(s-1)*gap)
			angle := angles[len(items)%len(angles)]
			body := fmt.Sprintf(angle, p.Theme) + fmt.Sprintf(" Day %d of %d. %s", d, p.Days, tag)
			if p.Platform == social.Twitter {
				body = text.Truncate(body, 280)
			}
			items = append(items, Item{
				Day:       d,
				Slot:      s,
				At:        at,
				Platform:  p.Platform,
				Name:      fmt.Sprintf("%s-%s-%s-%d.txt", p.Platform, slug, day.Format(dateLayout), s),
				Content:   fmt.Sprintf("Scheduled: %s\n\n%s", at.Format("2006-01-02 15:04"), body),
				ProjectID: projectID,
			})
		}
	}
	return items
}

// ExtractTheme derives the campaign theme from free text: the subject
// introduced by "about", "for" or similar, or else the text left once
// filler words and durations are removed.
func ExtractTheme(s string) string {
	if t := text.About(s); t != "" {
		return strings.TrimSpace(numberPattern.ReplaceAllString(t, ""))
	}
	s = datePattern.ReplaceAllString(numberPattern.ReplaceAllString(s, ""), "")
	return text.StripWords(s, fillerWords...)
}

// ExtractDays reads the campaign length from free text: "14 days",
// "2 weeks" or "month". It defaults to DefaultDays.
func ExtractDays(s string) int {
	if n := firstInt(daysPattern, s, 0); n > 0 {
		return n
	}
	if n := firstInt(weeksPattern, s, 0); n > 0 {
		return n * 7
	}
	if monthPattern.MatchString(s) {
		return 30
	}
	return DefaultDays
}

func firstInt(re *regexp.Regexp, s string, def int) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return def
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return def
	}
	return n
}
