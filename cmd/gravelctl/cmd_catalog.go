package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/dressmygravel/internal/catalog"
	"github.com/kjstillabower/dressmygravel/internal/models"
)

func newCatalogCmd() *cobra.Command {
	var path, category, id string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the clothing catalog",
		Long: `Load and validate a catalog file (or the embedded default) and list its items.
With --id, print one item in full as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			if id != "" {
				item, ok := cat.Lookup(id)
				if !ok {
					return fmt.Errorf("%w: no item with id %q", models.ErrInvalidArgument, id)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(item)
			}
			items := cat.Items()
			if category != "" {
				items = cat.ByCategory(models.Category(category))
				if len(items) == 0 {
					return fmt.Errorf("%w: no items in category %q", models.ErrInvalidArgument, category)
				}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tRANGE °C\tMODIFIERS")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%g..%g\t%v\n",
					it.ID, it.Category, it.TemperatureRange.Min, it.TemperatureRange.Max, it.WeatherModifiers)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "catalog YAML file (default embedded catalog)")
	cmd.Flags().StringVar(&category, "category", "", "only list this category")
	cmd.Flags().StringVar(&id, "id", "", "show a single item by ID")
	return cmd
}
