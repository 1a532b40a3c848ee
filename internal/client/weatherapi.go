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

// DefaultWeatherAPIURL is the WeatherAPI.com current conditions endpoint.
const DefaultWeatherAPIURL = "https://api.weatherapi.com/v1/current.json"

// WeatherAPIClient fetches current conditions from WeatherAPI.com and
// normalizes them to the OpenWeatherMap vocabulary used by the engine.
type WeatherAPIClient struct {
	apiKey string
	apiURL string
	caller *caller
	now    func() time.Time
}

// NewWeatherAPIClient validates the key and builds a client. An empty BaseURL
// uses DefaultWeatherAPIURL.
func NewWeatherAPIClient(opts Options) (*WeatherAPIClient, error) {
	if err := checkAPIKey(opts.APIKey); err != nil {
		return nil, err
	}
	apiURL := opts.BaseURL
	if apiURL == "" {
		apiURL = DefaultWeatherAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	return &WeatherAPIClient{
		apiKey: opts.APIKey,
		apiURL: apiURL,
		caller: newCaller(models.SourceWeatherAPI, opts),
		now:    time.Now,
	}, nil
}

// Name implements Provider.
func (c *WeatherAPIClient) Name() models.Source {
	return models.SourceWeatherAPI
}

type weatherAPIResponse struct {
	Current struct {
		LastUpdatedEpoch int64    `json:"last_updated_epoch"`
		TempC            float64  `json:"temp_c"`
		FeelsLikeC       float64  `json:"feelslike_c"`
		Humidity         float64  `json:"humidity"`
		WindKph          float64  `json:"wind_kph"`
		GustKph          float64  `json:"gust_kph"`
		PrecipMm         float64  `json:"precip_mm"`
		VisKm            *float64 `json:"vis_km"`
		UV               float64  `json:"uv"`
		Condition        struct {
			Text string `json:"text"`
			Icon string `json:"icon"`
			Code int    `json:"code"`
		} `json:"condition"`
	} `json:"current"`
}

// Fetch implements Provider.
func (c *WeatherAPIClient) Fetch(ctx context.Context, loc models.LocationCoordinates) (models.WeatherAPIResponse, error) {
	body, err := c.caller.get(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.buildRequest(ctx, loc)
	})
	if err != nil {
		return models.WeatherAPIResponse{}, err
	}

	var apiResp weatherAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherAPIResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return models.WeatherAPIResponse{
		Weather:  mapWeatherAPI(apiResp, c.now()),
		Location: loc,
		Source:   models.SourceWeatherAPI,
		CachedAt: c.now().Unix(),
	}, nil
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, loc models.LocationCoordinates) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", strconv.FormatFloat(loc.Lat, 'f', -1, 64)+","+strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	params.Set("aqi", "no")
	baseURL.RawQuery = params.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
}

// kphToMS converts km/h to m/s.
func kphToMS(kph float64) float64 {
	return kph / 3.6
}

func mapWeatherAPI(r weatherAPIResponse, now time.Time) models.WeatherData {
	cur := r.Current
	main, desc := weatherAPICondition(cur.Condition.Code, cur.Condition.Text)
	data := models.WeatherData{
		Temperature:   cur.TempC,
		FeelsLike:     cur.FeelsLikeC,
		Humidity:      clamp(cur.Humidity, 0, 100),
		WindSpeed:     math.Max(0, kphToMS(cur.WindKph)),
		Precipitation: math.Max(0, cur.PrecipMm),
		Visibility:    defaultVisibility,
		UVIndex:       math.Max(0, cur.UV),
		Conditions: []models.WeatherCondition{{
			ID:          cur.Condition.Code,
			Main:        main,
			Description: desc,
			Icon:        cur.Condition.Icon,
		}},
		Timestamp: cur.LastUpdatedEpoch,
	}
	if data.Timestamp == 0 {
		data.Timestamp = now.Unix()
	}
	if cur.GustKph > 0 {
		g := math.Max(kphToMS(cur.GustKph), data.WindSpeed)
		data.WindGust = &g
	}
	if cur.VisKm != nil {
		data.Visibility = math.Max(0, *cur.VisKm*1000)
	}
	data.PrecipitationType = precipitationFromMain(main)
	if data.PrecipitationType == "" && data.Precipitation > 0 {
		data.PrecipitationType = models.PrecipitationRain
	}
	return data
}

// weatherAPICondition maps a WeatherAPI.com condition code onto the
// OpenWeatherMap "main" group and a lower-case description.
func weatherAPICondition(code int, text string) (main, description string) {
	description = strings.ToLower(strings.TrimSpace(text))
	switch {
	case code == 1000:
		return "Clear", "clear sky"
	case code == 1003:
		return "Clouds", "partly cloudy"
	case code == 1006 || code == 1009:
		return "Clouds", description
	case code == 1030:
		return "Mist", description
	case code == 1135 || code == 1147:
		return "Fog", description
	case code == 1087 || (code >= 1273 && code <= 1282):
		return "Thunderstorm", description
	case code == 1150 || code == 1153 || code == 1168 || code == 1171:
		return "Drizzle", description
	case code == 1063 || code == 1072 || (code >= 1180 && code <= 1201) || (code >= 1240 && code <= 1246):
		return "Rain", description
	case code == 1066 || code == 1069 || code == 1114 || code == 1117 ||
		(code >= 1204 && code <= 1237) || (code >= 1249 && code <= 1264):
		return "Snow", description
	}
	return "Clouds", description
}
