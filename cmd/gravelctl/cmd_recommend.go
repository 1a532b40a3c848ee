package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/dressmygravel/internal/app"
	"github.com/kjstillabower/dressmygravel/internal/catalog"
	"github.com/kjstillabower/dressmygravel/internal/config"
	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/observability"
	"github.com/kjstillabower/dressmygravel/internal/recommend"
	"github.com/kjstillabower/dressmygravel/internal/validation"
)

type recommendFlags struct {
	lat, lon    string
	name        string
	asJSON      bool
	verbose     bool
	catalogPath string

	// Offline conditions. Setting --temp skips the weather provider.
	temp, feelsLike float64
	humidity        float64
	wind, gust      float64
	precip          float64
	precipType      string
	uv              float64
	visibility      float64
}

func newRecommendCmd() *cobra.Command {
	f := &recommendFlags{}
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend ride clothing for a coordinate",
		Long: `Fetch current weather for --lat/--lon through the configured provider and
print what to wear. Pass --temp (and optionally the other condition flags)
to skip the provider and recommend for the given conditions instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := validation.ParseCoordinates(f.lat, f.lon)
			if err != nil {
				return err
			}
			if loc.Name, err = validation.ValidateLabel(f.name, validation.MaxLabelLen); err != nil {
				return err
			}

			var rec models.RideRecommendation
			if cmd.Flags().Changed("temp") {
				rec, err = recommendOffline(cmd, f, loc)
			} else {
				rec, err = recommendLive(cmd, f, loc)
			}
			if err != nil {
				return err
			}
			if f.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			printRecommendation(cmd.OutOrStdout(), rec)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.lat, "lat", "", "latitude in decimal degrees")
	fl.StringVar(&f.lon, "lon", "", "longitude in decimal degrees")
	fl.StringVar(&f.name, "name", "", "optional place name")
	fl.BoolVar(&f.asJSON, "json", false, "print the recommendation as JSON")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log to stderr")
	fl.StringVar(&f.catalogPath, "catalog", "", "catalog YAML file (offline mode; default embedded catalog)")
	fl.Float64Var(&f.temp, "temp", 0, "air temperature in °C")
	fl.Float64Var(&f.feelsLike, "feels-like", 0, "feels-like temperature in °C (defaults to --temp)")
	fl.Float64Var(&f.humidity, "humidity", 50, "relative humidity in percent")
	fl.Float64Var(&f.wind, "wind", 0, "wind speed in m/s")
	fl.Float64Var(&f.gust, "gust", 0, "wind gust in m/s")
	fl.Float64Var(&f.precip, "precip", 0, "precipitation in mm/h")
	fl.StringVar(&f.precipType, "precip-type", "", "rain or snow")
	fl.Float64Var(&f.uv, "uv", 0, "UV index")
	fl.Float64Var(&f.visibility, "visibility", 10000, "visibility in meters")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func recommendOffline(cmd *cobra.Command, f *recommendFlags, loc models.LocationCoordinates) (models.RideRecommendation, error) {
	weather := models.WeatherData{
		Temperature:       f.temp,
		FeelsLike:         f.temp,
		Humidity:          f.humidity,
		WindSpeed:         f.wind,
		Precipitation:     f.precip,
		PrecipitationType: models.PrecipitationType(f.precipType),
		UVIndex:           f.uv,
		Visibility:        f.visibility,
		Timestamp:         time.Now().Unix(),
	}
	if cmd.Flags().Changed("feels-like") {
		weather.FeelsLike = f.feelsLike
	}
	if cmd.Flags().Changed("gust") {
		g := f.gust
		weather.WindGust = &g
	}

	engine, err := recommend.NewEngine(recommend.DefaultThresholds())
	if err != nil {
		return models.RideRecommendation{}, err
	}
	cat, err := catalog.Load(f.catalogPath)
	if err != nil {
		return models.RideRecommendation{}, err
	}
	clothing, err := engine.Recommend(weather, cat.Items())
	if err != nil {
		return models.RideRecommendation{}, err
	}
	return models.RideRecommendation{
		Location:       loc,
		Weather:        weather,
		Recommendation: clothing,
	}, nil
}

func recommendLive(cmd *cobra.Command, f *recommendFlags, loc models.LocationCoordinates) (models.RideRecommendation, error) {
	logger := zap.NewNop()
	if f.verbose {
		var err error
		if logger, err = observability.NewLogger(); err != nil {
			return models.RideRecommendation{}, err
		}
		defer func() { _ = logger.Sync() }()
	}
	cfg, err := config.Load()
	if err != nil {
		return models.RideRecommendation{}, err
	}
	if f.catalogPath != "" {
		cfg.CatalogPath = f.catalogPath
	}
	a, err := app.Build(cfg, nil, logger)
	if err != nil {
		return models.RideRecommendation{}, err
	}
	defer func() {
		_ = observability.FlushTelemetry(cmd.Context(), nil, a.Closers()...)
	}()
	return a.Recommendation.Recommend(cmd.Context(), loc)
}

func printRecommendation(w io.Writer, rec models.RideRecommendation) {
	where := rec.Location.Name
	if where == "" {
		where = fmt.Sprintf("%.4f,%.4f", rec.Location.Lat, rec.Location.Lon)
	}
	fmt.Fprintf(w, "%s: %.1f°C (feels %.1f°C), zone %s\n",
		where, rec.Weather.Temperature, rec.Weather.FeelsLike, rec.Recommendation.TemperatureZone)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, it := range rec.Recommendation.Items {
		fmt.Fprintf(w, "%-12s %s\n", it.Category, it.Name)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, rec.Recommendation.Reasoning)
	for _, warn := range rec.Recommendation.Warnings {
		fmt.Fprintf(w, "! %s\n", warn)
	}
}
