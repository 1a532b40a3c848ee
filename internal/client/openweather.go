package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

// DefaultOpenWeatherURL is the OpenWeatherMap current conditions endpoint.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// defaultVisibility is reported when the provider omits visibility (clear air).
const defaultVisibility = 10000

// OpenWeatherClient fetches current conditions from OpenWeatherMap in metric units.
type OpenWeatherClient struct {
	apiKey string
	apiURL string
	caller *caller
	now    func() time.Time
}

// NewOpenWeatherClient validates the key and builds a client. An empty BaseURL
// uses DefaultOpenWeatherURL.
func NewOpenWeatherClient(opts Options) (*OpenWeatherClient, error) {
	if err := checkAPIKey(opts.APIKey); err != nil {
		return nil, err
	}
	apiURL := opts.BaseURL
	if apiURL == "" {
		apiURL = DefaultOpenWeatherURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	return &OpenWeatherClient{
		apiKey: opts.APIKey,
		apiURL: apiURL,
		caller: newCaller(models.SourceOpenWeather, opts),
		now:    time.Now,
	}, nil
}

// Name implements Provider.
func (c *OpenWeatherClient) Name() models.Source {
	return models.SourceOpenWeather
}

type openWeatherResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Visibility *float64 `json:"visibility"`
	Wind       struct {
		Speed float64  `json:"speed"`
		Gust  *float64 `json:"gust"`
	} `json:"wind"`
	Rain *struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Snow *struct {
		OneHour float64 `json:"1h"`
	} `json:"snow"`
	Dt int64 `json:"dt"`
}

// Fetch implements Provider.
func (c *OpenWeatherClient) Fetch(ctx context.Context, loc models.LocationCoordinates) (models.WeatherAPIResponse, error) {
	body, err := c.caller.get(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.buildRequest(ctx, loc)
	})
	if err != nil {
		return models.WeatherAPIResponse{}, err
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherAPIResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return models.WeatherAPIResponse{
		Weather:  mapOpenWeather(apiResp, c.now()),
		Location: loc,
		Source:   models.SourceOpenWeather,
		CachedAt: c.now().Unix(),
	}, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, loc models.LocationCoordinates) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
}

func mapOpenWeather(r openWeatherResponse, now time.Time) models.WeatherData {
	data := models.WeatherData{
		Temperature: r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		Humidity:    clamp(r.Main.Humidity, 0, 100),
		WindSpeed:   math.Max(0, r.Wind.Speed),
		Visibility:  defaultVisibility,
		Conditions:  make([]models.WeatherCondition, 0, len(r.Weather)),
		Timestamp:   r.Dt,
	}
	if data.Timestamp == 0 {
		data.Timestamp = now.Unix()
	}
	if r.Wind.Gust != nil {
		g := math.Max(*r.Wind.Gust, data.WindSpeed)
		data.WindGust = &g
	}
	if r.Visibility != nil {
		data.Visibility = math.Max(0, *r.Visibility)
	}
	for _, w := range r.Weather {
		data.Conditions = append(data.Conditions, models.WeatherCondition{
			ID:          w.ID,
			Main:        w.Main,
			Description: w.Description,
			Icon:        w.Icon,
		})
	}

	switch {
	case r.Snow != nil && r.Snow.OneHour > 0:
		data.Precipitation = r.Snow.OneHour
		data.PrecipitationType = models.PrecipitationSnow
	case r.Rain != nil && r.Rain.OneHour > 0:
		data.Precipitation = r.Rain.OneHour
		data.PrecipitationType = models.PrecipitationRain
	case len(r.Weather) > 0:
		data.PrecipitationType = precipitationFromMain(r.Weather[0].Main)
	}
	return data
}

func precipitationFromMain(main string) models.PrecipitationType {
	switch strings.ToLower(main) {
	case "rain", "drizzle", "thunderstorm":
		return models.PrecipitationRain
	case "snow":
		return models.PrecipitationSnow
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
