package models

// Category is the body slot a clothing item covers.
type Category string

const (
	CategoryHelmet      Category = "helmet"
	CategoryTop         Category = "top"
	CategoryBottom      Category = "bottom"
	CategoryHands       Category = "hands"
	CategoryFeet        Category = "feet"
	CategoryAccessories Category = "accessories"
	CategoryEyewear     Category = "eyewear"
)

// Categories lists every category head to toe. Recommendations use this order.
var Categories = []Category{
	CategoryHelmet,
	CategoryEyewear,
	CategoryTop,
	CategoryBottom,
	CategoryHands,
	CategoryFeet,
	CategoryAccessories,
}

// Modifier is a situational tag refining clothing choice within a zone.
type Modifier string

const (
	ModifierRain     Modifier = "rain"
	ModifierWind     Modifier = "wind"
	ModifierSun      Modifier = "sun"
	ModifierHumidity Modifier = "humidity"
)

// TemperatureZone is the coarse band derived from the feels-like temperature.
type TemperatureZone string

const (
	ZoneHot  TemperatureZone = "hot"
	ZoneWarm TemperatureZone = "warm"
	ZoneCool TemperatureZone = "cool"
	ZoneCold TemperatureZone = "cold"
)

// TemperatureRange bounds are inclusive, in °C.
type TemperatureRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max" validate:"gtefield=Min"`
}

// Contains reports whether t lies within the range, both ends inclusive.
func (r TemperatureRange) Contains(t float64) bool {
	return t >= r.Min && t <= r.Max
}

// GravelFeatures describes gear traits specific to unpaved riding.
type GravelFeatures struct {
	DustProtection   bool   `json:"dustProtection,omitempty" yaml:"dust_protection,omitempty"`
	VibrationDamping bool   `json:"vibrationDamping,omitempty" yaml:"vibration_damping,omitempty"`
	StorageCapacity  bool   `json:"storageCapacity,omitempty" yaml:"storage_capacity,omitempty"`
	Durability       string `json:"durability,omitempty" yaml:"durability,omitempty" validate:"omitempty,oneof=high medium low"`
}

// ClothingItem is read-only catalog reference data.
type ClothingItem struct {
	ID               string            `json:"id" yaml:"id" validate:"required"`
	Name             string            `json:"name" yaml:"name" validate:"required"`
	Category         Category          `json:"category" yaml:"category" validate:"required,oneof=helmet top bottom hands feet accessories eyewear"`
	Description      string            `json:"description" yaml:"description"`
	TemperatureRange TemperatureRange  `json:"temperatureRange" yaml:"temperature_range"`
	WeatherModifiers []Modifier        `json:"weatherModifiers" yaml:"weather_modifiers" validate:"dive,oneof=rain wind sun humidity"`
	WindResistant    bool              `json:"windResistant,omitempty" yaml:"wind_resistant,omitempty"`
	Waterproof       bool              `json:"waterproof,omitempty" yaml:"waterproof,omitempty"`
	Breathable       bool              `json:"breathable,omitempty" yaml:"breathable,omitempty"`
	AffiliateLinks   map[string]string `json:"affiliateLinks,omitempty" yaml:"affiliate_links,omitempty" validate:"omitempty,dive,url"`
	GravelFeatures   *GravelFeatures   `json:"gravelFeatures,omitempty" yaml:"gravel_features,omitempty"`
}

// ClothingRecommendation is built fresh per request and never mutated.
// Warnings is always non-nil so it encodes as [] when nothing applies.
type ClothingRecommendation struct {
	TemperatureZone TemperatureZone `json:"temperatureZone"`
	Items           []ClothingItem  `json:"items"`
	Reasoning       string          `json:"reasoning"`
	Alternatives    []ClothingItem  `json:"alternatives,omitempty"`
	Warnings        []string        `json:"warnings"`
}

// RideRecommendation is what the service hands back to callers: the weather
// used, where it came from, and the clothing derived from it.
type RideRecommendation struct {
	Location       LocationCoordinates    `json:"location"`
	CacheKey       string                 `json:"cacheKey"`
	Source         Source                 `json:"source"`
	Weather        WeatherData            `json:"weather"`
	Recommendation ClothingRecommendation `json:"recommendation"`
}
