package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/surveil/internal/config"
	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/pkg/app"
)

// initAnswers are the choices collected by the init wizard.
type initAnswers struct {
	Model       string
	APIKeyEnv   string
	DataDir     string
	OutputDir   string
	Storage     string
	Bind        string
	BearerToken string
	Exporter    string
	InsiderURL  string
	WashURL     string
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Model:     "claude-sonnet-4-5",
		APIKeyEnv: "ANTHROPIC_API_KEY",
		DataDir:   "data",
		OutputDir: "output",
		Storage:   "storage.file",
		Bind:      "127.0.0.1:8080",
		Exporter:  "none",
	}
}

var configTemplate = template.Must(template.New("surveil.yaml").Parse(`version: "1"

analysis:
  data_dir: {{ .DataDir }}
  output_dir: {{ .OutputDir }}
  max_iterations: 10
  timeout: 5m
  max_concurrent: 4
  task_ttl: 1h
{{- if or .InsiderURL .WashURL }}

routing:
  endpoints:
{{- if .InsiderURL }}
    insider_trading: {{ .InsiderURL }}
{{- end }}
{{- if .WashURL }}
    wash_trade: {{ .WashURL }}
{{- end }}
{{- end }}

telemetry:
  exporter: {{ .Exporter }}

modules:
  engine.anthropic:
    model: {{ .Model }}
    api_key_env: {{ .APIKeyEnv }}
  {{ .Storage }}: {}
  gateway.http:
    bind: "{{ .Bind }}"
{{- if .BearerToken }}
    auth:
      bearer_token: "{{ .BearerToken }}"
{{- end }}
`))

func initCmd() *cobra.Command {
	var (
		output string
		force  bool
		accept bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = app.DefaultConfigPath()
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			answers := defaultAnswers()
			if !accept {
				if err := askInit(&answers); err != nil {
					return err
				}
			}
			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return err
			}
			success.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: the user config path)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&accept, "yes", "y", false, "Accept the defaults without prompting")
	return cmd
}

func askInit(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Anthropic model").Value(&a.Model),
			huh.NewInput().Title("Environment variable holding the API key").Value(&a.APIKeyEnv),
		),
		huh.NewGroup(
			huh.NewInput().Title("Evidence data directory").Value(&a.DataDir),
			huh.NewInput().Title("Output directory").Value(&a.OutputDir),
			huh.NewSelect[string]().
				Title("Decision store").
				Options(storageOptions()...).
				Value(&a.Storage),
		),
		huh.NewGroup(
			huh.NewInput().Title("Gateway bind address").Value(&a.Bind).Validate(notEmpty),
			huh.NewInput().Title("Bearer token (empty disables auth)").EchoMode(huh.EchoModePassword).Value(&a.BearerToken),
			huh.NewSelect[string]().
				Title("Trace exporter").
				Options(huh.NewOptions("none", "stdout")...).
				Value(&a.Exporter),
		),
		huh.NewGroup(
			huh.NewInput().Title("Insider trading processor URL (optional)").Value(&a.InsiderURL),
			huh.NewInput().Title("Wash trade processor URL (optional)").Value(&a.WashURL),
		),
	)
	return form.Run()
}

// storageOptions offers the compiled decision stores.
func storageOptions() []huh.Option[string] {
	labels := map[core.ModuleID]string{"storage.file": "JSON files", "storage.sqlite": "SQLite"}
	var opts []huh.Option[string]
	for _, id := range core.Namespaces()["storage"] {
		label := labels[id]
		if label == "" {
			label = string(id)
		}
		opts = append(opts, huh.NewOption(label, string(id)))
	}
	return opts
}

func notEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("value is required")
	}
	return nil
}

// renderConfig fills the template and parses the result back so a bad
// answer fails here rather than at the next start.
func renderConfig(a initAnswers) ([]byte, error) {
	var b strings.Builder
	if err := configTemplate.Execute(&b, a); err != nil {
		return nil, err
	}
	data := []byte(b.String())
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("generated configuration is invalid: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("generated configuration is invalid: %w", err)
	}
	return data, nil
}
