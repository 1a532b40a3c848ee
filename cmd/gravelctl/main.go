package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/validation"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gravelctl",
		Short: "gravelctl - what to wear on a gravel ride",
		Long: `gravelctl inspects cache keys and distances on the weather grid, lists the
clothing catalog and builds ride recommendations, either from live weather
or from conditions given on the command line.`,
		SilenceUsage: true,
	}
	root.AddCommand(newKeyCmd(), newDistanceCmd(), newRecommendCmd(), newCatalogCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parsePoint parses "lat,lon" into coordinates.
func parsePoint(s string) (models.LocationCoordinates, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return models.LocationCoordinates{}, fmt.Errorf("%w: point %q must be lat,lon", models.ErrInvalidArgument, s)
	}
	return validation.ParseCoordinates(lat, lon)
}
