package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/health"

	"goa.design/agentdesk/capabilities"
	"goa.design/agentdesk/capabilities/campaign"
	cmdmongo "goa.design/agentdesk/features/commands/mongo"
	historyredis "goa.design/agentdesk/features/history/redis"
	"goa.design/agentdesk/runtime/batch"
	"goa.design/agentdesk/runtime/capability"
	"goa.design/agentdesk/runtime/commands"
	cmdinmem "goa.design/agentdesk/runtime/commands/inmem"
	"goa.design/agentdesk/runtime/conversation"
	convinmem "goa.design/agentdesk/runtime/conversation/inmem"
	"goa.design/agentdesk/runtime/orchestrator"
	"goa.design/agentdesk/runtime/router"
	"goa.design/agentdesk/runtime/telemetry"
	"goa.design/agentdesk/runtime/tracker"
	"goa.design/agentdesk/runtime/workflow"
)

// app holds the wired components of one CLI invocation.
type app struct {
	cfg       Config
	registry  *capability.Registry
	router    *router.Router
	sessions  *conversation.Engine
	tracker   *tracker.Tracker
	workflows *workflow.Engine
	cmds      commands.Commands
	orch      *orchestrator.Orchestrator
	pingers   []health.Pinger
	closers   []func(context.Context) error
}

// redisPinger reports Redis reachability to the health checker.
type redisPinger struct {
	client redis.UniversalClient
}

func (redisPinger) Name() string { return "redis" }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// newApp wires the components selected by cfg.
func newApp(ctx context.Context, cfg Config, tel telemetry.Set) (*app, error) {
	tel = tel.WithDefaults()
	a := &app{cfg: cfg}

	cmds, err := a.commands(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.cmds = cmds

	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		rdb = client
		a.pingers = append(a.pingers, redisPinger{client: client})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	}

	topts := []tracker.Option{tracker.WithHistoryLimit(cfg.History.Limit), tracker.WithTelemetry(tel)}
	if cfg.History.RedisKey != "" {
		sink, err := historyredis.New(rdb, historyredis.WithKey(cfg.History.RedisKey), historyredis.WithLimit(cfg.History.RedisLimit))
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("redis history: %w", err)
		}
		topts = append(topts, tracker.WithSink(sink))
	}
	a.tracker = tracker.New(topts...)

	a.registry = capability.NewRegistry(capability.WithAliases(capabilities.Aliases), capability.WithLogger(tel.Logger))
	a.sessions = conversation.NewEngine(convinmem.New(), conversation.WithTimeout(cfg.Session.Timeout), conversation.WithLogger(tel.Logger))
	bopts := []batch.Option{
		batch.WithSize(cfg.Batch.Size),
		batch.WithPacing(cfg.Batch.Pacing),
		batch.WithConcurrency(cfg.Batch.Concurrency),
		batch.WithTelemetry(tel),
	}
	if cfg.Batch.RatePerSecond > 0 {
		bopts = append(bopts, batch.WithRateLimit(cfg.Batch.RatePerSecond, cfg.Batch.Concurrency))
	}
	if err := capabilities.Register(a.registry, a.sessions, capabilities.Options{
		Campaign: []campaign.Option{campaign.WithBatchOptions(bopts...)},
	}); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.router = router.New(a.registry, router.WithLogger(tel.Logger))
	a.workflows = workflow.NewEngine(a.registry, a.cmds,
		workflow.WithResolver(a.router), workflow.WithTracker(a.tracker), workflow.WithLogger(tel.Logger))
	a.orch, err = orchestrator.New(orchestrator.Config{
		Registry:  a.registry,
		Router:    a.router,
		Sessions:  a.sessions,
		Tracker:   a.tracker,
		Workflows: a.workflows,
		Commands:  a.cmds,
		Logger:    tel.Logger,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) commands(ctx context.Context) (commands.Commands, error) {
	if a.cfg.Backend != BackendMongo {
		return cmdinmem.New(), nil
	}
	client, err := mongodriver.Connect(options.Client().ApplyURI(a.cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	a.closers = append(a.closers, client.Disconnect)
	s, err := cmdmongo.New(ctx, cmdmongo.Options{Client: client, Database: a.cfg.Mongo.Database})
	if err != nil {
		return nil, fmt.Errorf("mongo commands: %w", err)
	}
	a.pingers = append(a.pingers, s)
	return s, nil
}

// Health checks every backend dependency.
func (a *app) Health(ctx context.Context) (*health.Health, bool) {
	return health.NewChecker(a.pingers...).Check(ctx)
}

// Close releases backend connections.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
