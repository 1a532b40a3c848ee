package models

// LocationCoordinates identifies where a rider wants a recommendation for.
// Name and Country are display-only and never affect cache keys.
type LocationCoordinates struct {
	Lat     float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon     float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
	Name    string  `json:"name,omitempty" yaml:"name,omitempty"`
	Country string  `json:"country,omitempty" yaml:"country,omitempty"`
}

// WeatherCondition is one provider-reported condition. Slice order is provider priority.
type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// PrecipitationType is empty when the provider reports no precipitation kind.
type PrecipitationType string

const (
	PrecipitationRain PrecipitationType = "rain"
	PrecipitationSnow PrecipitationType = "snow"
)

// WeatherData is a point-in-time observation. Temperatures are °C, wind m/s,
// precipitation mm/h, visibility meters, timestamp epoch seconds.
type WeatherData struct {
	Temperature       float64            `json:"temperature"`
	FeelsLike         float64            `json:"feelsLike"`
	Humidity          float64            `json:"humidity"`
	WindSpeed         float64            `json:"windSpeed"`
	WindGust          *float64           `json:"windGust,omitempty"`
	Precipitation     float64            `json:"precipitation"`
	PrecipitationType PrecipitationType  `json:"precipitationType,omitempty"`
	Visibility        float64            `json:"visibility"`
	UVIndex           float64            `json:"uvIndex"`
	Conditions        []WeatherCondition `json:"conditions"`
	Timestamp         int64              `json:"timestamp"`
}

// Source tags which provider adapter produced a response.
type Source string

const (
	SourceOpenWeather Source = "openweather"
	SourceWeatherAPI  Source = "weatherapi"
)

// WeatherAPIResponse wraps a reading with where and when it was fetched.
// Built once by the provider adapter; treat as read-only afterwards.
type WeatherAPIResponse struct {
	Weather  WeatherData         `json:"weather"`
	Location LocationCoordinates `json:"location"`
	Source   Source              `json:"source"`
	CachedAt int64               `json:"cachedAt"`
}
