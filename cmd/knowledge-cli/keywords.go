package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/walkative/knowledge-engine/internal/retrieval"
)

func newKeywordsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords <question>",
		Short: "Show how a question is normalized and classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis := retrieval.Analyze(strings.Join(args, " "))

			if a.outputJSON {
				return a.printJSON(cmd, analysis)
			}

			a.ui.Section("Keywords")
			a.ui.KeyValue("Tokens", strings.Join(analysis.Tokens, ", "))
			a.ui.KeyValue("Intent", analysis.Intent)
			city := analysis.City
			if city == "" {
				city = "-"
			}
			a.ui.KeyValue("City", city)
			a.ui.KeyValue("Product query", analysis.ProductQuery)
			a.ui.KeyValue("Ranking", analysis.Ranking)
			return nil
		},
	}
}
