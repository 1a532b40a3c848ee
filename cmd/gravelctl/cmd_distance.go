package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/dressmygravel/internal/geo"
)

func newDistanceCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Great-circle distance between two points",
		Long:  `Print the haversine distance in kilometers between --from and --to, each given as lat,lon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parsePoint(from)
			if err != nil {
				return err
			}
			b, err := parsePoint(to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f km\n", geo.CalculateDistance(a.Lat, a.Lon, b.Lat, b.Lon))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start point as lat,lon")
	cmd.Flags().StringVar(&to, "to", "", "end point as lat,lon")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
