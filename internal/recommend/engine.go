// Package recommend turns a weather observation and a clothing catalog into
// a clothing recommendation. Everything here is pure and safe for concurrent use.
package recommend

import (
	"fmt"
	"math"
	"strings"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

// Warning texts. Callers may match on these.
const (
	WarningGusty         = "gusty conditions"
	WarningSnow          = "snow expected"
	WarningHighUV        = "high UV exposure"
	WarningLowVisibility = "low visibility"
	WarningFreezing      = "freezing temperatures: watch for ice on the gravel"
	WarningExtremeHeat   = "extreme heat: carry extra water"
)

// Engine produces recommendations from fixed thresholds.
type Engine struct {
	thresholds Thresholds
}

// NewEngine returns an Engine, rejecting thresholds that leave gaps or overlaps between zones.
func NewEngine(t Thresholds) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Engine{thresholds: t}, nil
}

// Thresholds returns the engine's configuration.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Recommend classifies w, filters catalog and picks at most one item per category.
// catalog is read, never modified. Invalid readings fail with models.ErrInvalidArgument.
func (e *Engine) Recommend(w models.WeatherData, catalog []models.ClothingItem) (models.ClothingRecommendation, error) {
	if err := ValidateWeather(w); err != nil {
		return models.ClothingRecommendation{}, err
	}

	zone := e.ClassifyZone(w.FeelsLike)
	active := e.ActiveModifiers(w)

	qualifying := make([]models.ClothingItem, 0, len(catalog))
	for _, item := range catalog {
		if qualifies(item, w.FeelsLike, active) {
			qualifying = append(qualifying, item)
		}
	}

	items, alternatives := selectPrimary(qualifying, active)

	return models.ClothingRecommendation{
		TemperatureZone: zone,
		Items:           items,
		Reasoning:       reasoning(zone, w.FeelsLike, active, len(items)),
		Alternatives:    alternatives,
		Warnings:        e.warnings(w),
	}, nil
}

// ClassifyZone maps a feels-like temperature onto exactly one zone.
// Each band includes its lower bound.
func (e *Engine) ClassifyZone(feelsLike float64) models.TemperatureZone {
	switch {
	case feelsLike >= e.thresholds.HotMin:
		return models.ZoneHot
	case feelsLike >= e.thresholds.WarmMin:
		return models.ZoneWarm
	case feelsLike >= e.thresholds.CoolMin:
		return models.ZoneCool
	default:
		return models.ZoneCold
	}
}

// ActiveModifiers returns the modifiers w triggers in the order rain, wind, sun, humidity.
func (e *Engine) ActiveModifiers(w models.WeatherData) []models.Modifier {
	var out []models.Modifier
	if w.Precipitation > 0 || w.PrecipitationType == models.PrecipitationRain {
		out = append(out, models.ModifierRain)
	}
	if w.WindSpeed > e.thresholds.WindSpeed || (w.WindGust != nil && *w.WindGust > e.thresholds.WindGust) {
		out = append(out, models.ModifierWind)
	}
	if isSunny(w.Conditions) {
		out = append(out, models.ModifierSun)
	}
	if w.Humidity > e.thresholds.Humidity {
		out = append(out, models.ModifierHumidity)
	}
	return out
}

// ValidateWeather rejects readings the engine cannot reason about.
func ValidateWeather(w models.WeatherData) error {
	if !isFinite(w.Temperature) || !isFinite(w.FeelsLike) {
		return fmt.Errorf("%w: temperature and feels-like must be finite, got %v / %v",
			models.ErrInvalidArgument, w.Temperature, w.FeelsLike)
	}
	if !isFinite(w.Humidity) || w.Humidity < 0 || w.Humidity > 100 {
		return fmt.Errorf("%w: humidity must be within 0-100, got %v", models.ErrInvalidArgument, w.Humidity)
	}
	if !isFinite(w.WindSpeed) || w.WindSpeed < 0 {
		return fmt.Errorf("%w: wind speed must be non-negative, got %v", models.ErrInvalidArgument, w.WindSpeed)
	}
	if w.WindGust != nil && (!isFinite(*w.WindGust) || *w.WindGust < w.WindSpeed) {
		return fmt.Errorf("%w: wind gust %v below sustained speed %v", models.ErrInvalidArgument, *w.WindGust, w.WindSpeed)
	}
	if !isFinite(w.Precipitation) || w.Precipitation < 0 {
		return fmt.Errorf("%w: precipitation must be non-negative, got %v", models.ErrInvalidArgument, w.Precipitation)
	}
	switch w.PrecipitationType {
	case "", models.PrecipitationRain, models.PrecipitationSnow:
	default:
		return fmt.Errorf("%w: precipitation type must be rain or snow, got %q", models.ErrInvalidArgument, w.PrecipitationType)
	}
	if !isFinite(w.Visibility) || w.Visibility < 0 {
		return fmt.Errorf("%w: visibility must be non-negative, got %v", models.ErrInvalidArgument, w.Visibility)
	}
	if !isFinite(w.UVIndex) || w.UVIndex < 0 {
		return fmt.Errorf("%w: UV index must be non-negative, got %v", models.ErrInvalidArgument, w.UVIndex)
	}
	return nil
}

func (e *Engine) warnings(w models.WeatherData) []string {
	out := []string{}
	if w.WindGust != nil && *w.WindGust-w.WindSpeed >= e.thresholds.GustWarningDelta {
		out = append(out, WarningGusty)
	}
	if w.PrecipitationType == models.PrecipitationSnow {
		out = append(out, WarningSnow)
	}
	if w.UVIndex >= e.thresholds.HighUV {
		out = append(out, WarningHighUV)
	}
	if w.Visibility < e.thresholds.LowVisibility {
		out = append(out, WarningLowVisibility)
	}
	if w.FeelsLike <= e.thresholds.Freezing {
		out = append(out, WarningFreezing)
	}
	if w.FeelsLike >= e.thresholds.ExtremeHeat {
		out = append(out, WarningExtremeHeat)
	}
	return out
}

// qualifies reports whether item fits the temperature and, when it is tagged,
// shares at least one modifier with the active set.
func qualifies(item models.ClothingItem, feelsLike float64, active []models.Modifier) bool {
	if !item.TemperatureRange.Contains(feelsLike) {
		return false
	}
	if len(item.WeatherModifiers) == 0 {
		return true
	}
	return overlap(item.WeatherModifiers, active) > 0
}

// selectPrimary keeps the best-scoring item per category (first listed wins ties)
// and returns the rest as alternatives in catalog order.
func selectPrimary(qualifying []models.ClothingItem, active []models.Modifier) ([]models.ClothingItem, []models.ClothingItem) {
	best := make(map[models.Category]int, len(models.Categories))
	var seen []models.Category
	for i, item := range qualifying {
		j, ok := best[item.Category]
		if !ok {
			best[item.Category] = i
			seen = append(seen, item.Category)
			continue
		}
		if overlap(item.WeatherModifiers, active) > overlap(qualifying[j].WeatherModifiers, active) {
			best[item.Category] = i
		}
	}

	chosen := make(map[int]bool, len(best))
	items := make([]models.ClothingItem, 0, len(best))
	for _, cat := range orderCategories(seen) {
		idx := best[cat]
		chosen[idx] = true
		items = append(items, qualifying[idx])
	}

	var alternatives []models.ClothingItem
	for i, item := range qualifying {
		if !chosen[i] {
			alternatives = append(alternatives, item)
		}
	}
	return items, alternatives
}

// orderCategories sorts seen head to toe; categories outside the known set
// follow in first-seen order.
func orderCategories(seen []models.Category) []models.Category {
	present := make(map[models.Category]bool, len(seen))
	for _, c := range seen {
		present[c] = true
	}
	out := make([]models.Category, 0, len(seen))
	known := make(map[models.Category]bool, len(models.Categories))
	for _, c := range models.Categories {
		known[c] = true
		if present[c] {
			out = append(out, c)
		}
	}
	for _, c := range seen {
		if !known[c] {
			out = append(out, c)
		}
	}
	return out
}

func overlap(item, active []models.Modifier) int {
	n := 0
	for _, m := range item {
		for _, a := range active {
			if m == a {
				n++
				break
			}
		}
	}
	return n
}

func isSunny(conditions []models.WeatherCondition) bool {
	if len(conditions) == 0 {
		return false
	}
	primary := conditions[0]
	if strings.EqualFold(primary.Main, "clear") {
		return true
	}
	desc := strings.ToLower(strings.TrimSpace(primary.Description))
	return desc == "few clouds" || desc == "partly cloudy"
}

func reasoning(zone models.TemperatureZone, feelsLike float64, active []models.Modifier, matched int) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(string(zone[:1])) + string(zone[1:]))
	fmt.Fprintf(&b, " conditions (feels like %.0f°C)", feelsLike)
	if len(active) > 0 {
		b.WriteString(" with ")
		b.WriteString(joinModifiers(active))
	}
	b.WriteString(".")
	if matched == 0 {
		b.WriteString(" No clothing in the catalog matches these conditions.")
	}
	return b.String()
}

func joinModifiers(active []models.Modifier) string {
	phrases := make([]string, 0, len(active))
	for _, m := range active {
		switch m {
		case models.ModifierRain:
			phrases = append(phrases, "rain expected")
		case models.ModifierWind:
			phrases = append(phrases, "strong wind")
		case models.ModifierSun:
			phrases = append(phrases, "strong sun")
		case models.ModifierHumidity:
			phrases = append(phrases, "high humidity")
		}
	}
	switch len(phrases) {
	case 0:
		return ""
	case 1:
		return phrases[0]
	default:
		return strings.Join(phrases[:len(phrases)-1], ", ") + " and " + phrases[len(phrases)-1]
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
