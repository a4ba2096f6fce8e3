package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/walkative/knowledge-engine/cmd/knowledge-cli/ui"
	"github.com/walkative/knowledge-engine/internal/retrieval"
)

func newSearchCmd(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Retrieve knowledge fragments for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			services, err := a.services(ctx)
			if err != nil {
				return err
			}
			defer services.Close()

			query := strings.Join(args, " ")

			spin := a.ui.Spinner("Searching...")
			spin.Start()
			resp, err := services.Retriever.Retrieve(ctx, retrieval.RetrievalRequest{
				Query: query,
				Mode:  retrieval.Mode(mode),
			})
			spin.Stop()
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if a.outputJSON {
				return a.printJSON(cmd, resp)
			}
			printResponse(a.ui, query, resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "retrieval mode: structured, semantic or hybrid (default from config)")

	return cmd
}

func printResponse(out *ui.UI, query string, resp *retrieval.RetrievalResponse) {
	out.Section("Search")
	out.KeyValue("Question", query)
	out.KeyValue("Intent", resp.Intent)
	out.KeyValue("Mode", resp.Mode)
	out.KeyValue("Tokens", strings.Join(resp.Tokens, ", "))
	out.KeyValue("Latency", ui.FormatDuration(time.Duration(resp.LatencyMs)*time.Millisecond))
	if resp.Degraded {
		out.Warning("Semantic search unavailable; showing structured results only")
	}

	if len(resp.Fragments) == 0 {
		out.Warning("No fragments found")
		return
	}

	out.Section(fmt.Sprintf("%d fragments", len(resp.Fragments)))
	for _, f := range resp.Fragments {
		out.Box(f.Source, f.Content+metadataLine(f.Metadata))
	}
}

func metadataLine(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return "\n\n" + strings.Join(parts, " ")
}
