package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/flemzord/surveil/internal/audit"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/modules/storage/sqlite"
	"github.com/flemzord/surveil/pkg/app"
)

// determinations is the column order of summary tables.
var determinations = []decision.Determination{decision.Escalate, decision.Close, decision.NeedsHumanReview}

func statsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise past decisions per category",
		Long: "Summarise past decisions from the audit log, or from a SQLite decision " +
			"store with --db.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				summary   map[string]map[decision.Determination]int
				fallbacks int
				err       error
			)
			if dbPath != "" {
				summary, err = sqliteSummary(cmd, dbPath)
			} else {
				summary, fallbacks, err = auditSummary(cmd)
			}
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), summary)
			if fallbacks > 0 {
				warn.Fprintf(cmd.OutOrStdout(), "%d fallback decisions need manual review\n", fallbacks)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Read a storage.sqlite database instead of the audit log")
	return cmd
}

func sqliteSummary(cmd *cobra.Command, path string) (map[string]map[decision.Determination]int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	s, err := sqlite.OpenStore(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	return s.Summary(cmd.Context())
}

func auditSummary(cmd *cobra.Command) (map[string]map[decision.Determination]int, int, error) {
	cfg, _, err := app.LoadConfig(configPath(cmd))
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(cfg.Analysis.OutputDir, "audit.jsonl"))
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()
	return summarizeAudit(f)
}

// summarizeAudit counts audit entries per category and determination.
// Malformed lines are skipped.
func summarizeAudit(r io.Reader) (map[string]map[decision.Determination]int, int, error) {
	out := make(map[string]map[decision.Determination]int)
	fallbacks := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		var e audit.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.AlertID == "" {
			continue
		}
		if out[e.Category] == nil {
			out[e.Category] = make(map[decision.Determination]int)
		}
		out[e.Category][decision.Determination(e.Determination)]++
		if e.Fallback {
			fallbacks++
		}
	}
	return out, fallbacks, sc.Err()
}

func renderSummary(w io.Writer, summary map[string]map[decision.Determination]int) {
	header := []any{"Category"}
	for _, d := range determinations {
		header = append(header, d)
	}
	header = append(header, "Total")
	t := newTable(w, header...)

	totals := make([]int, len(determinations)+1)
	for _, category := range slices.Sorted(maps.Keys(summary)) {
		row := table.Row{category}
		sum := 0
		for i, d := range determinations {
			n := summary[category][d]
			row = append(row, n)
			totals[i] += n
			sum += n
		}
		totals[len(determinations)] += sum
		t.AppendRow(append(row, sum))
	}
	footer := table.Row{"all"}
	for _, n := range totals {
		footer = append(footer, n)
	}
	t.AppendFooter(footer)
	t.Render()
	fmt.Fprintln(w)
}
