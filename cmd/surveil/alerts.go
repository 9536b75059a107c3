package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/router"
	"github.com/flemzord/surveil/internal/stream"
	"github.com/flemzord/surveil/internal/task"
	"github.com/flemzord/surveil/pkg/app"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <alert.xml>...",
		Short: "Print the category each alert would be routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			classifier := router.NewClassifier(router.RulesFromConfig(cfg.Routing.Rules))

			t := newTable(cmd.OutOrStdout(), "Alert", "Type", "Rule", "Category")
			for _, path := range args {
				a, err := alert.ParseFile(path)
				if err != nil {
					return err
				}
				info := classifier.Info(a)
				category := string(info.Category)
				if !info.Category.Valid() {
					category = warn.Sprint(category)
				}
				t.AppendRow(table.Row{info.ID, info.Type, info.RuleCode, category})
			}
			t.Render()
			return nil
		},
	}
}

func routeCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "route <alert.xml>",
		Short: "Classify an alert and forward it to its category processor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			r := app.NewRouter(cfg, app.NewLogger(cmd.ErrOrStderr(), logLevel(cmd), app.Secrets(cfg)...))

			res, err := r.Route(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printJSON(out, res); err != nil {
				return err
			}
			if !follow || res.RoutedTo == nil || res.AgentResponse == nil || res.AgentResponse.Status != router.StatusSuccess {
				return nil
			}

			endpoint, _ := r.Endpoint(*res.RoutedTo)
			fmt.Fprintln(out)
			return r.Client().Follow(cmd.Context(), endpoint, res.TaskID(), "", func(ev stream.Event) error {
				printEvent(out, ev)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream the remote analysis events until it finishes")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <alert.xml>",
		Short: "Investigate one alert locally and print the decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := alert.ParseFile(args[0])
			if err != nil {
				return err
			}
			rt, _, err := buildRuntime(cmd, configPath(cmd), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			c := alert.Category(category)
			if c == "" {
				c = rt.Classifier.Classify(a)
			}
			if !rt.Runner.Supports(c) {
				return fmt.Errorf("alert %s (type %q, rule %q) matches no supported category", a.ID, a.Type, a.RuleCode)
			}

			out := cmd.OutOrStdout()
			rec, err := analyzeLive(cmd.Context(), rt.Runner, a, c, func(ev stream.Event) {
				if !asJSON {
					printEvent(cmd.ErrOrStderr(), ev)
				}
			})
			if err != nil {
				return err
			}
			if rec.Status == task.StatusError {
				return fmt.Errorf("analysis of %s failed: %s", a.ID, rec.Error)
			}
			if asJSON {
				return printJSON(out, rec.Decision)
			}
			printDecision(out, *rec.Decision)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Skip classification and use this category (insider_trading, wash_trade)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decision as JSON")
	return cmd
}

// analyzeLive submits a to the runner and reports every event until the
// task finishes.
func analyzeLive(ctx context.Context, runner *task.Runner, a *alert.Alert, c alert.Category, onEvent func(stream.Event)) (task.Record, error) {
	rec, err := runner.Submit(a, c)
	if err != nil {
		return task.Record{}, err
	}
	events, err := runner.Manager().Subscribe(ctx, rec.ID, "")
	if err != nil {
		return task.Record{}, err
	}
	for ev := range events {
		onEvent(ev)
	}
	if err := ctx.Err(); err != nil {
		return task.Record{}, err
	}
	return runner.Manager().Get(rec.ID)
}

// batchResult is one row of the batch summary.
type batchResult struct {
	path     string
	alertID  string
	category alert.Category
	status   string
	decision *decision.Decision
	err      error
}

func batchCmd() *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Investigate every alert file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := filepath.Glob(filepath.Join(args[0], "*.xml"))
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no .xml alert files in %s", args[0])
			}
			slices.Sort(paths)

			rt, _, err := buildRuntime(cmd, configPath(cmd), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			results := runBatch(cmd.Context(), rt, paths, parallel, cmd.ErrOrStderr())
			out := cmd.OutOrStdout()
			renderBatch(out, results)
			fmt.Fprintln(out)
			printToolStats(out, rt.Runner.Aggregate().Snapshot())

			var errs []error
			for _, r := range results {
				if r.err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(r.path), r.err))
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d alerts failed", len(errs), len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "Number of alerts analysed concurrently")
	return cmd
}

// runBatch analyses paths with at most parallel concurrent analyses. Per
// alert failures are recorded in the results, never returned.
func runBatch(ctx context.Context, rt *app.Runtime, paths []string, parallel int, progress io.Writer) []batchResult {
	results := make([]batchResult, len(paths))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, path := range paths {
		g.Go(func() error {
			res := analyzeFile(ctx, rt, path)
			results[i] = res

			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.err != nil:
				failure.Fprintf(progress, "✗ %s: %v\n", filepath.Base(path), res.err)
			case res.decision != nil:
				fmt.Fprintf(progress, "✓ %s %s\n", res.alertID, determinationColor(res.decision.Determination).Sprint(res.decision.Determination))
			default:
				warn.Fprintf(progress, "- %s %s\n", res.alertID, res.status)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func analyzeFile(ctx context.Context, rt *app.Runtime, path string) batchResult {
	res := batchResult{path: path}
	a, err := alert.ParseFile(path)
	if err != nil {
		res.status, res.err = "invalid", err
		return res
	}
	res.alertID = a.ID
	res.category = rt.Classifier.Classify(a)
	if !rt.Runner.Supports(res.category) {
		res.status = "unsupported"
		return res
	}

	rec, err := rt.Runner.Run(ctx, a, res.category)
	if err != nil {
		res.status, res.err = "error", err
		return res
	}
	res.status = string(rec.Status)
	if rec.Status == task.StatusError {
		res.err = errors.New(rec.Error)
		return res
	}
	res.decision = rec.Decision
	return res
}

func renderBatch(w io.Writer, results []batchResult) {
	t := newTable(w, "Alert", "Category", "Status", "Determination", "Genuine", "False positive")
	counts := make(map[decision.Determination]int)
	for _, r := range results {
		id := r.alertID
		if id == "" {
			id = filepath.Base(r.path)
		}
		row := table.Row{id, r.category, r.status, "", "", ""}
		if d := r.decision; d != nil {
			counts[d.Determination]++
			row[3] = determinationColor(d.Determination).Sprint(d.Determination)
			row[4] = fmt.Sprintf("%d%%", d.GenuineConfidence)
			row[5] = fmt.Sprintf("%d%%", d.FalsePositiveConfidence)
		}
		t.AppendRow(row)
	}

	var summary []string
	for _, d := range []decision.Determination{decision.Escalate, decision.Close, decision.NeedsHumanReview} {
		summary = append(summary, fmt.Sprintf("%s %d", d, counts[d]))
	}
	t.AppendFooter(table.Row{len(results), "", "", strings.Join(summary, ", "), "", ""})
	t.Render()
}

