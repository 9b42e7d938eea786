package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"goa.design/clue/log"

	promfeature "goa.design/agentdesk/features/metrics/prometheus"
	"goa.design/agentdesk/runtime/agenterr"
	"goa.design/agentdesk/runtime/orchestrator"
	"goa.design/agentdesk/runtime/telemetry"
)

type appKey struct{}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	root := &cobra.Command{
		Use:           "agentdesk",
		Short:         "Route chat commands to dashboard capabilities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Log.Debug = true
			}
			ctx := logContext(cmd.Context(), cfg.Log, cmd.ErrOrStderr())
			a, err := newApp(ctx, cfg, telemetry.Default())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(ctx, appKey{}, a))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a := appFrom(cmd); a != nil {
				return a.Close(cmd.Context())
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")
	root.AddCommand(
		newChatCmd(),
		newRouteCmd(),
		newCapabilitiesCmd(),
		newGoalCmd(),
		newCampaignCmd(),
		newHealthCmd(),
	)
	return root
}

// logContext configures clue logging. Buffering is disabled so Info lines
// reach the output of a short-lived command without a later error flush.
func logContext(ctx context.Context, cfg LogConfig, w io.Writer) context.Context {
	format := log.FormatTerminal
	if cfg.Format == "json" {
		format = log.FormatJSON
	}
	opts := []log.LogOption{
		log.WithFormat(format),
		log.WithOutput(w),
		log.WithDisableBuffering(func(context.Context) bool { return true }),
	}
	if cfg.Debug {
		opts = append(opts, log.WithDebug())
	}
	return log.Context(ctx, opts...)
}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

func newChatCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long:  "Reads one message per line until EOF or /quit. Slash commands run operations directly.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			if session == "" {
				session = uuid.NewString()
			}
			if a.cfg.MetricsAddr != "" {
				stop, err := serveMetrics(cmd.Context(), a)
				if err != nil {
					return err
				}
				defer stop()
			}
			return chat(cmd.Context(), a.orch, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "chat session id (default: random)")
	return cmd
}

// chat runs the read-eval-print loop.
func chat(ctx context.Context, o *orchestrator.Orchestrator, session string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "agentdesk ready. Type /quit to exit.")
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		resp, err := o.Handle(ctx, session, line)
		if err != nil {
			log.Debug(ctx, log.KV{K: "msg", V: "turn failed"}, log.KV{K: "error", V: err.Error()})
		}
		if resp == nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, resp.Message)
	}
}

func serveMetrics(ctx context.Context, a *app) (func(), error) {
	h, err := promfeature.Handler(a.tracker)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, err, log.KV{K: "msg", V: "metrics server stopped"})
		}
	}()
	log.Info(ctx, log.KV{K: "msg", V: "serving metrics"}, log.KV{K: "addr", V: ln.Addr().String()})
	return func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}, nil
}

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route TEXT...",
		Short: "Show how free text would be routed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			input := strings.Join(args, " ")
			cands := a.router.Route(input)
			d := a.router.Decide(cands)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "decision: %s\n", d.Action)
			for _, c := range cands {
				fmt.Fprintf(out, "  %s.%s %.2f (%s)\n", c.CapabilityID, c.OperationID, c.Confidence, c.Reason)
			}
			return nil
		},
	}
}

func newCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "List the registered capabilities and their commands",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			out := cmd.OutOrStdout()
			for _, d := range a.registry.List() {
				fmt.Fprintf(out, "%s - %s\n", d.Name, d.Description)
				for _, op := range d.Operations {
					fmt.Fprintf(out, "  %s\n", op.Usage())
				}
			}
			return nil
		},
	}
}

func newGoalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goal TEXT...",
		Short: "Plan and run a multi-step goal, e.g. \"create a project called X, then post about it\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			wf, err := a.orch.RunGoal(cmd.Context(), strings.Join(args, " "))
			if err != nil && wf.ID == "" {
				if errors.Is(err, agenterr.ErrRoutingAmbiguous) {
					return fmt.Errorf("could not plan the goal, rephrase each step as a command: %w", err)
				}
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s (%d/%d steps)\n", wf.Name, wf.Status, wf.CompletedSteps, wf.TotalSteps)
			for _, s := range wf.Steps {
				fmt.Fprintf(out, "  %s %s.%s %s", s.ID, s.CapabilityID, s.OperationID, s.Status)
				switch {
				case s.Error != "":
					fmt.Fprintf(out, ": %s", s.Error)
				case s.Output != "":
					fmt.Fprintf(out, ": %s", firstLine(s.Output))
				}
				fmt.Fprintln(out)
			}
			return err
		},
	}
}

func newCampaignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "campaign ARGS...",
		Short: "Generate a campaign, e.g. theme=\"spring sale\" days=14",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			resp, err := a.orch.Handle(cmd.Context(), "cli", "/campaign "+strings.Join(args, " "))
			if resp != nil {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			}
			return err
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			h, ok := a.Health(cmd.Context())
			out := cmd.OutOrStdout()
			names := make([]string, 0, len(h.Status))
			for n := range h.Status {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(out, "%s: %s\n", n, h.Status[n])
			}
			if !ok {
				return errors.New("unhealthy")
			}
			fmt.Fprintln(out, "healthy")
			return nil
		},
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
