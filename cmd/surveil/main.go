// Package main is the entry point for the surveil CLI.
package main

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "surveil",
		Short:         "Triage trade surveillance alerts with an evidence-gathering reasoning engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")
	root.AddCommand(
		versionCmd(),
		startCmd(),
		configCmd(),
		initCmd(),
		classifyCmd(),
		routeCmd(),
		analyzeCmd(),
		batchCmd(),
		statsCmd(),
		mcpCmd(),
		serviceCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "surveil %s (commit: %s, built: %s)\n", version, commit, date)
			groups := core.Namespaces()
			if len(groups) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, ns := range slices.Sorted(maps.Keys(groups)) {
				ids := make([]string, len(groups[ns]))
				for i, id := range groups[ns] {
					ids[i] = string(id)
				}
				fmt.Fprintf(out, "  %-8s %s\n", ns, strings.Join(ids, ", "))
			}
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway and the analysis pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(app.RunParams{
				ConfigPath: configPath(cmd),
				Version:    version,
				Commit:     commit,
				Date:       date,
				LogLevel:   logLevel(cmd),
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision its modules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			if len(args) == 1 {
				path = args[0]
			}
			rt, cfgPath, err := buildRuntime(cmd, path, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s (%d modules)\n", cfgPath, len(rt.ModuleIDs()))
			for _, id := range rt.ModuleIDs() {
				fmt.Fprintf(out, "  %s\n", id)
			}
			if err := rt.Preflight(); err != nil {
				warn.Fprintf(out, "Evidence sources incomplete:\n  %v\n", err)
			}
			return nil
		},
	})
	return cmd
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}

func logLevel(cmd *cobra.Command) slog.Level {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// buildRuntime loads the configuration and wires a runtime for a one-shot
// command. One-shot commands log warnings and above unless --debug is set.
func buildRuntime(cmd *cobra.Command, path string, serve bool) (*app.Runtime, string, error) {
	cfg, cfgPath, err := app.LoadConfig(path)
	if err != nil {
		return nil, cfgPath, err
	}
	level := logLevel(cmd)
	if level == slog.LevelInfo && !serve {
		level = slog.LevelWarn
	}
	rt, err := app.Build(cmd.Context(), cfg, app.Options{
		Version:   version,
		LogLevel:  level,
		LogWriter: cmd.ErrOrStderr(),
		Serve:     serve,
	})
	return rt, cfgPath, err
}
