package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/walkative/knowledge-engine/internal/keywords"
)

type cityEntry struct {
	City  string   `json:"city"`
	Forms []string `json:"forms"`
}

func newCitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cities",
		Short: "List recognized cities and the spellings mapped to each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []cityEntry
			for _, city := range keywords.KnownCities() {
				entries = append(entries, cityEntry{City: city, Forms: keywords.CityForms(city)})
			}

			if a.outputJSON {
				return a.printJSON(cmd, entries)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.City, strings.Join(e.Forms[1:], ", ")})
			}
			a.ui.Section("Cities")
			a.ui.Table([]string{"City", "Also matches"}, rows)
			return nil
		},
	}
}
