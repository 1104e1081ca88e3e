package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helix-collective/helix/pkg/config"
	"github.com/helix-collective/helix/pkg/engine"
	"github.com/helix-collective/helix/pkg/logging"
	"github.com/helix-collective/helix/pkg/router"
	"github.com/helix-collective/helix/pkg/score"
)

// app holds the global flags shared by every subcommand.
type app struct {
	configFile string
	dbPath     string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "helix",
		Short: "Score-driven routing across LLM handlers",
		Long: `Helix scores each input on a set of weighted dimensions, classifies the
resulting level into a category, and routes the task through a fallback chain
of handlers. Every assessment and routing outcome is kept in history for trend
analysis, and questions can be put to a panel of LLM voters.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "path to helix config file")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "history database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(a.scoreCmd())
	rootCmd.AddCommand(a.askCmd())
	rootCmd.AddCommand(a.voteCmd())
	rootCmd.AddCommand(a.trendCmd())
	rootCmd.AddCommand(a.projectCmd())
	rootCmd.AddCommand(a.historyCmd())
	rootCmd.AddCommand(a.routesCmd())
	rootCmd.AddCommand(a.validateCmd())

	return rootCmd
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return nil, err
	}
	if a.dbPath != "" {
		cfg.History.Path = a.dbPath
	}
	return cfg, nil
}

// openEngine loads configuration and builds the engine. The returned func
// flushes the logger and closes the history store.
func (a *app) openEngine(ctx context.Context) (*engine.Engine, *config.Config, func(), error) {
	logger, err := logging.New(a.logLevel, a.logFormat)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	e, err := engine.New(ctx, cfg, engine.WithLogger(logger))
	if err != nil {
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("failed to start engine: %w", err)
	}

	closeFn := func() {
		if err := e.Close(); err != nil {
			logger.Warn("failed to close history store", zap.Error(err))
		}
		logger.Sync()
	}
	return e, cfg, closeFn, nil
}

func (a *app) scoreCmd() *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "score [text]",
		Short: "Score text and record it in history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			assessment, err := e.Assess(cmd.Context(), score.TextInput(args[0]), nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonFlag {
				return writeJSON(out, assessment)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DIMENSION\tVALUE")
			for _, name := range assessment.Vector.Names() {
				v, _ := assessment.Vector.Get(name)
				fmt.Fprintf(w, "%s\t%.3f\n", name, v)
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "LEVEL\t%.2f\n", assessment.Level)
			fmt.Fprintf(w, "CATEGORY\t%s\n", assessment.Category.Name)
			if len(assessment.Hits) > 0 {
				fmt.Fprintf(w, "TRIGGERS\t%s\n", formatHits(assessment.Hits))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the assessment as JSON")
	return cmd
}

func (a *app) askCmd() *cobra.Command {
	var taskFlag string
	var preferFlag string

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Score a prompt and route it to a handler",
		Long: `Scores the prompt, detects its task type (or uses --task), and walks the
task type's fallback chain until a handler succeeds. Use --prefer to try a
named candidate first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := e.Process(cmd.Context(), engine.Request{
				Input:     score.TextInput(args[0]),
				Task:      router.Task{Type: taskFlag},
				Preferred: preferFlag,
			})

			errOut := cmd.ErrOrStderr()
			if report != nil && report.Assessment != nil {
				fmt.Fprintf(errOut, "Level %.2f (%s)\n", report.Assessment.Level, report.Assessment.Category.Name)
			}
			if report != nil && report.Outcome != nil {
				for _, at := range report.Outcome.Trail {
					if at.Status != router.StatusSuccess {
						fmt.Fprintf(errOut, "  %s %s after %s: %s\n", at.Handler, at.Status, at.Latency.Round(time.Millisecond), at.Error)
					}
				}
			}
			if err != nil {
				return err
			}

			out := report.Outcome
			fmt.Fprintf(errOut, "Routed %s to %s (%d attempts)\n", out.TaskType, out.Handler, out.Attempts)
			if out.Result != nil {
				fmt.Fprintln(cmd.OutOrStdout(), out.Result.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskFlag, "task", "", "task type (default: detected from the prompt)")
	cmd.Flags().StringVar(&preferFlag, "prefer", "", "candidate to try first")
	return cmd
}

func (a *app) voteCmd() *cobra.Command {
	var deadline time.Duration
	var threshold float64

	cmd := &cobra.Command{
		Use:   "vote [question]",
		Short: "Put a question to the voter panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cfg, closeFn, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if deadline == 0 {
				deadline = cfg.Consensus.Deadline
			}
			if threshold == 0 {
				threshold = cfg.Consensus.ApprovalThreshold
			}

			res, err := e.DecideWith(cmd.Context(), args[0], deadline, threshold)
			if res == nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VOTER\tDECISION\tCONFIDENCE\tLATENCY\tNOTE")
			for _, v := range res.Votes {
				note := v.Rationale
				if v.Error != "" {
					note = v.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", v.Voter, v.Decision, v.Confidence, v.Latency.Round(time.Millisecond), note)
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "RESULT\t%s\t%.2f\t(threshold %.2f)\n", res.Status, res.ApprovalRate, res.Threshold)
			if ferr := w.Flush(); ferr != nil {
				return ferr
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&deadline, "deadline", 0, "per-vote deadline (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "approval threshold in (0,1] (default from config)")
	return cmd
}

func (a *app) trendCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Summarise recent levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := e.Trend(cmd.Context(), window)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "WINDOW\t%s\n", t.Window)
			fmt.Fprintf(w, "SAMPLES\t%d\n", t.SampleCount)
			fmt.Fprintf(w, "DIRECTION\t%s\n", t.Direction)
			if t.SampleCount > 0 {
				fmt.Fprintf(w, "AVERAGE\t%.2f\n", t.Average)
				fmt.Fprintf(w, "RANGE\t%.2f - %.2f\n", t.Min, t.Max)
				fmt.Fprintf(w, "LATEST\t%.2f\n", t.Latest)
				fmt.Fprintf(w, "DELTA\t%+.2f\n", t.Delta)
			}
			return w.Flush()
		},
	}

	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "history window to analyse")
	return cmd
}

func (a *app) projectCmd() *cobra.Command {
	var window, horizon time.Duration

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Forecast the level from recent history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			p, err := e.Project(cmd.Context(), window, horizon)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "HORIZON\t%s\n", p.Horizon)
			fmt.Fprintf(w, "SAMPLES\t%d\n", p.SampleCount)
			fmt.Fprintf(w, "CONFIDENCE\t%s\n", p.Confidence)
			if p.SampleCount > 0 {
				fmt.Fprintf(w, "PREDICTED\t%.2f\n", p.Predicted)
				fmt.Fprintf(w, "SLOPE\t%+.3f\n", p.Slope)
				fmt.Fprintf(w, "VARIANCE\t%.3f\n", p.Variance)
			}
			return w.Flush()
		},
	}

	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "history window to fit")
	cmd.Flags().DurationVar(&horizon, "horizon", time.Hour, "how far ahead to project")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var since time.Duration
	var outcomesFlag bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded assessments or routing outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if outcomesFlag {
				outcomes, err := e.Outcomes(cmd.Context(), from)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "TIME\tTASK TYPE\tCATEGORY\tHANDLER\tSTATUS\tATTEMPTS\tLATENCY")
				for _, o := range outcomes {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						o.Timestamp.Local().Format(time.DateTime), o.TaskType, o.Category,
						dash(o.Handler), o.Status, o.Attempts, o.Latency.Round(time.Millisecond))
				}
				return w.Flush()
			}

			records, err := e.History(cmd.Context(), from)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "TIME\tLEVEL\tCATEGORY\tID")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n",
					r.Timestamp.Local().Format(time.DateTime), r.Level, r.Category, r.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to list (0 lists everything)")
	cmd.Flags().BoolVar(&outcomesFlag, "outcomes", false, "list routing outcomes instead of assessments")
	return cmd
}

func (a *app) routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Show task types and their fallback chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cfg, closeFn, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			taskTypes := make([]string, 0, len(cfg.Routing.TaskTypes))
			for name := range cfg.Routing.TaskTypes {
				taskTypes = append(taskTypes, name)
			}
			sort.Strings(taskTypes)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TASK TYPE\tCHAIN\tTRIGGERS")
			for _, name := range taskTypes {
				tt := cfg.Routing.TaskTypes[name]
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, formatList(e.Router().Chain(name)), formatList(tt.Triggers))
			}

			fmt.Fprintln(w)
			fmt.Fprintf(w, "DEFAULT\t%s\t-\n", cfg.Routing.DefaultTaskType)
			if len(cfg.Routing.CategoryPreference) > 0 {
				cats := make([]string, 0, len(cfg.Routing.CategoryPreference))
				for c, candidate := range cfg.Routing.CategoryPreference {
					cats = append(cats, c+"="+candidate)
				}
				sort.Strings(cats)
				fmt.Fprintf(w, "PREFER\t%s\t-\n", strings.Join(cats, ", "))
			}
			return w.Flush()
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				var cfgErr *config.ConfigError
				if errors.As(err, &cfgErr) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Found %d validation errors:\n", len(cfgErr.Problems))
					for _, p := range cfgErr.Problems {
						fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", p)
					}
				}
				return err
			}

			var missing []string
			for _, name := range []string{"anthropic", "openai", "google", "xai", "perplexity"} {
				if !cfg.HasAdapter(name) {
					missing = append(missing, name)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration valid.")
			if len(missing) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No credentials for: %s\n", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func formatHits(hits []score.Hit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("%s(%s %+.2f)", h.Phrase, h.Dimension, h.Delta)
	}
	return strings.Join(parts, ", ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
