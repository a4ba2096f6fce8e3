package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/walkative/knowledge-engine/cmd/knowledge-cli/ui"
	"github.com/walkative/knowledge-engine/internal/bootstrap"
	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/observability"
)

// app carries state shared by every subcommand.
type app struct {
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *ui.UI
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "knowledge-cli",
		Short: "Query the walking-tour knowledge base from the terminal",
		Long: `knowledge-cli runs the same retrieval pipeline as the knowledge API
against the configured catalog and vector store.

Use this tool to:
- Search the catalog and knowledge chunks for a question
- Inspect how a question is normalized and classified
- Evaluate a file of questions in bulk
- List the cities the normalizer recognizes
- Clear cached retrieval responses

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if a.verbose {
				cfg.Observability.LogLevel = "debug"
			} else if cfg.Observability.LogLevel == "info" {
				cfg.Observability.LogLevel = "warn"
			}
			cfg.Observability.LogFormat = "console"
			if a.outputJSON {
				cfg.Observability.LogFormat = "json"
			}
			cfg.Observability.ServiceName = "knowledge-cli"

			a.cfg = cfg
			a.logger = bootstrap.NewLogger(cfg, cmd.ErrOrStderr())
			a.ui = ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), a.outputJSON, a.noColor)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	cmd.PersistentFlags().BoolVar(&a.outputJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newKeywordsCmd(a))
	cmd.AddCommand(newEvalCmd(a))
	cmd.AddCommand(newCitiesCmd(a))
	cmd.AddCommand(newCacheCmd(a))

	return cmd
}

// services opens the store, cache and embedder for commands that retrieve.
func (a *app) services(ctx context.Context) (*bootstrap.Services, error) {
	services, err := bootstrap.New(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}
	return services, nil
}

func (a *app) printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
