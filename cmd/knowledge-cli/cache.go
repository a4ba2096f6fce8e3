package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached retrieval responses",
	}
	cmd.AddCommand(newCacheClearCmd(a))
	return cmd
}

func newCacheClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached retrieval response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			services, err := a.services(ctx)
			if err != nil {
				return err
			}
			defer services.Close()

			cleared := services.Responses != nil
			if cleared {
				if err := services.Responses.Invalidate(ctx); err != nil {
					return fmt.Errorf("clear cache: %w", err)
				}
			}

			if a.outputJSON {
				return a.printJSON(cmd, map[string]any{
					"cleared": cleared,
					"cache":   a.cfg.Cache.Driver,
				})
			}
			if !cleared {
				a.ui.Warning("Response caching is disabled; nothing to clear")
				return nil
			}
			a.ui.Success("Cleared cached responses (%s cache)", a.cfg.Cache.Driver)
			return nil
		},
	}
}
