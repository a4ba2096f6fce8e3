package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/walkative/knowledge-engine/cmd/knowledge-cli/ui"
	"github.com/walkative/knowledge-engine/internal/retrieval"
)

// evalRow is one line of the eval report.
type evalRow struct {
	Query     string `json:"query"`
	Intent    string `json:"intent,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Fragments int    `json:"fragments"`
	LatencyMs int64  `json:"latencyMs"`
	Degraded  bool   `json:"degraded,omitempty"`
	Error     string `json:"error,omitempty"`
}

// evalReport summarizes an eval run.
type evalReport struct {
	Total    int       `json:"total"`
	Failed   int       `json:"failed"`
	Empty    int       `json:"empty"`
	Duration string    `json:"duration"`
	Results  []evalRow `json:"results"`
}

func newEvalCmd(a *app) *cobra.Command {
	var (
		file    string
		mode    string
		workers int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run every question in a file through the retriever",
		Long: `Eval reads one question per line (blank lines and lines starting with #
are skipped), retrieves them concurrently and prints a summary table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open queries: %w", err)
			}
			queries, err := readQueries(f)
			f.Close()
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				return fmt.Errorf("no queries in %s", file)
			}

			parsed, err := retrieval.ParseMode(mode, "")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			services, err := a.services(ctx)
			if err != nil {
				return err
			}
			defer services.Close()

			bar := a.ui.ProgressBar(len(queries), "Evaluating")
			processor := retrieval.NewBatchProcessor(services.Retriever, workers, timeout)

			start := time.Now()
			results, err := processor.Process(ctx, queries, parsed, func(retrieval.BatchResult) { bar.Add() })
			bar.Finish()
			if err != nil {
				return err
			}

			report := buildReport(results, time.Since(start))
			if a.outputJSON {
				return a.printJSON(cmd, report)
			}
			printReport(a.ui, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one question per line (required)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "retrieval mode (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 5, "concurrent retrievals")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall time limit")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return queries, nil
}

func buildReport(results []retrieval.BatchResult, elapsed time.Duration) evalReport {
	report := evalReport{
		Total:    len(results),
		Duration: elapsed.Round(time.Millisecond).String(),
		Results:  make([]evalRow, 0, len(results)),
	}

	for _, res := range results {
		row := evalRow{Query: res.Query}
		switch {
		case res.Err != nil:
			row.Error = res.Err.Error()
			report.Failed++
		case res.Response != nil:
			row.Intent = string(res.Response.Intent)
			row.Mode = string(res.Response.Mode)
			row.Fragments = len(res.Response.Fragments)
			row.LatencyMs = res.Response.LatencyMs
			row.Degraded = res.Response.Degraded
			if row.Fragments == 0 {
				report.Empty++
			}
		}
		report.Results = append(report.Results, row)
	}
	return report
}

func printReport(out *ui.UI, report evalReport) {
	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		status := "ok"
		switch {
		case r.Error != "":
			status = "error"
		case r.Degraded:
			status = "degraded"
		case r.Fragments == 0:
			status = "empty"
		}
		rows = append(rows, []string{
			truncate(r.Query, 48),
			r.Intent,
			strconv.Itoa(r.Fragments),
			ui.FormatDuration(time.Duration(r.LatencyMs) * time.Millisecond),
			status,
		})
	}

	out.Section("Eval")
	out.Table([]string{"Question", "Intent", "Fragments", "Latency", "Status"}, rows)

	if report.Failed > 0 {
		out.Error("%d of %d queries failed", report.Failed, report.Total)
	} else {
		out.Success("%d queries in %s (%d empty)", report.Total, report.Duration, report.Empty)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
