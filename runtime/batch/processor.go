package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"goa.design/agentdesk/runtime/telemetry"
)

// Defaults applied by New.
const (
	DefaultSize        = 10
	DefaultPacing      = time.Second
	DefaultConcurrency = 10
)

type (
	// Processor runs jobs of items of type T.
	Processor[T any] struct {
		settings
	}

	// Option configures a Processor.
	Option func(*settings)

	// Pacer waits between batches.
	Pacer interface {
		// Pause blocks for d or until ctx is done, returning ctx.Err() in
		// the latter case.
		Pause(ctx context.Context, d time.Duration) error
	}

	// TimerPacer pauses with a timer.
	TimerPacer struct{}

	settings struct {
		size        int
		pacing      time.Duration
		concurrency int
		limiter     *rate.Limiter
		pacer       Pacer
		observer    Observer
		tel         telemetry.Set
		now         func() time.Time
	}
)

// WithSize sets the number of items per batch.
func WithSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithPacing sets the delay inserted between batches. Zero disables it.
func WithPacing(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.pacing = d
		}
	}
}

// WithConcurrency bounds the number of items of a batch dispatched at once.
func WithConcurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRateLimit limits item dispatches to perSecond, across batches.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *settings) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithPacer overrides the pacer.
func WithPacer(p Pacer) Option {
	return func(s *settings) {
		if p != nil {
			s.pacer = p
		}
	}
}

// WithObserver registers a callback run after every batch.
func WithObserver(o Observer) Option {
	return func(s *settings) { s.observer = o }
}

// WithTelemetry sets the logger and metrics.
func WithTelemetry(set telemetry.Set) Option {
	return func(s *settings) { s.tel = set.WithDefaults() }
}

// WithClock overrides the clock used for batch timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// New returns a Processor.
func New[T any](opts ...Option) *Processor[T] {
	s := settings{
		size:        DefaultSize,
		pacing:      DefaultPacing,
		concurrency: DefaultConcurrency,
		pacer:       TimerPacer{},
		tel:         telemetry.Noop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(&s)
	}
	return &Processor[T]{settings: s}
}

// Pause implements Pacer.
func (TimerPacer) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Process dispatches items in batches. Every batch that starts runs to
// completion; ctx is checked before each batch and during pacing. When ctx
// ends early the report marks the remaining batches pending and ctx.Err()
// is returned with it.
func (p *Processor[T]) Process(ctx context.Context, jobID string, items []T, dispatch Dispatch[T]) (*Report[T], error) {
	chunks := Chunk(items, p.size)
	report := &Report[T]{JobID: jobID, Total: len(items), Batches: make([]*Batch[T], len(chunks))}
	for i, c := range chunks {
		report.Batches[i] = &Batch[T]{
			Summary: Summary{ID: uuid.NewString(), JobID: jobID, Index: i, Status: StatusPending, Total: len(c)},
			Items:   c,
		}
	}
	p.tel.Logger.Info(ctx, "batch job started", "job", jobID, "items", len(items), "batches", len(chunks))

	start := 0
	for i, b := range report.Batches {
		if i > 0 {
			if err := p.pacer.Pause(ctx, p.pacing); err != nil {
				return p.cancelled(ctx, report, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return p.cancelled(ctx, report, err)
		}
		p.run(ctx, b, start, dispatch)
		start += b.Total
		report.Processed += b.Processed
		report.Failed += b.Failed
		if p.observer != nil {
			p.observer(ctx, b.Summary)
		}
	}
	p.tel.Logger.Info(ctx, "batch job completed", "job", jobID, "processed", report.Processed, "failed", report.Failed)
	return report, nil
}

// run dispatches the items of one batch concurrently. Items run on a context
// that ignores cancellation so a started batch settles every item.
func (p *Processor[T]) run(ctx context.Context, b *Batch[T], offset int, dispatch Dispatch[T]) {
	b.Status = StatusProcessing
	b.StartedAt = p.now()
	itemCtx := context.WithoutCancel(ctx)

	var (
		mu   sync.Mutex
		errs []ItemError
	)
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for j, item := range b.Items {
		g.Go(func() error {
			err := p.dispatchOne(itemCtx, dispatch, item)
			mu.Lock()
			b.Processed++
			if err != nil {
				b.Failed++
				errs = append(errs, ItemError{Item: offset + j, Batch: b.Index, Err: err})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(errs, func(i, j int) bool { return errs[i].Item < errs[j].Item })
	b.Errors = errs
	b.CompletedAt = p.now()
	b.Status = StatusCompleted
	if b.Total > 0 && b.Failed == b.Total {
		b.Status = StatusFailed
	}

	tags := []string{"job", b.JobID, "status", string(b.Status)}
	p.tel.Metrics.IncCounter("agentdesk.batch.items", float64(b.Processed), tags...)
	p.tel.Metrics.IncCounter("agentdesk.batch.item_errors", float64(b.Failed), tags...)
	p.tel.Metrics.RecordTimer("agentdesk.batch.duration", b.CompletedAt.Sub(b.StartedAt), tags...)
	keyvals := []any{"job", b.JobID, "batch", b.Index, "processed", b.Processed, "failed", b.Failed}
	if b.Status == StatusFailed {
		p.tel.Logger.Warn(ctx, "batch failed", keyvals...)
	} else {
		p.tel.Logger.Debug(ctx, "batch completed", keyvals...)
	}
}

func (p *Processor[T]) dispatchOne(ctx context.Context, dispatch Dispatch[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return dispatch(ctx, item)
}

func (p *Processor[T]) cancelled(ctx context.Context, r *Report[T], err error) (*Report[T], error) {
	r.Cancelled = true
	p.tel.Logger.Info(ctx, "batch job cancelled", "job", r.JobID, "processed", r.Processed, "total", r.Total)
	return r, err
}
