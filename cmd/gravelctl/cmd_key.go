package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/dressmygravel/internal/geo"
	"github.com/kjstillabower/dressmygravel/internal/validation"
)

func newKeyCmd() *cobra.Command {
	var lat, lon string
	var precision float64
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the weather cache key for a coordinate",
		Long:  `Round a coordinate onto the caching grid and print the key it is cached under.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := validation.ParseCoordinates(lat, lon)
			if err != nil {
				return err
			}
			grid, err := geo.NewGrid(precision)
			if err != nil {
				return err
			}
			key, err := grid.KeyFor(loc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&lat, "lat", "", "latitude in decimal degrees")
	cmd.Flags().StringVar(&lon, "lon", "", "longitude in decimal degrees")
	cmd.Flags().Float64Var(&precision, "precision", geo.DefaultPrecision, "grid step in degrees")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}
