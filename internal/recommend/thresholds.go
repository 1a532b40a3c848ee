package recommend

import (
	"fmt"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

// Thresholds drives zone classification, modifier detection and warnings.
// Temperatures are feels-like °C, speeds m/s.
type Thresholds struct {
	HotMin  float64 // feels-like >= HotMin is hot
	WarmMin float64 // [WarmMin, HotMin) is warm
	CoolMin float64 // [CoolMin, WarmMin) is cool; below is cold

	WindSpeed float64 // sustained wind above this activates the wind modifier
	WindGust  float64 // gusts above this activate the wind modifier
	Humidity  float64 // relative humidity above this activates the humidity modifier

	GustWarningDelta float64 // gust minus sustained speed at or above this warns
	HighUV           float64
	LowVisibility    float64 // meters
	Freezing         float64
	ExtremeHeat      float64
}

// DefaultThresholds returns defaults tuned for gravel riding.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HotMin:           24,
		WarmMin:          14,
		CoolMin:          4,
		WindSpeed:        5.6, // ~20 km/h
		WindGust:         10,
		Humidity:         80,
		GustWarningDelta: 5,
		HighUV:           6,
		LowVisibility:    1000,
		Freezing:         0,
		ExtremeHeat:      32,
	}
}

// Validate checks the zone bands are strictly ordered and limits are sane.
func (t Thresholds) Validate() error {
	if !(t.HotMin > t.WarmMin && t.WarmMin > t.CoolMin) {
		return fmt.Errorf("%w: zone thresholds must satisfy hot > warm > cool, got %v > %v > %v",
			models.ErrInvalidArgument, t.HotMin, t.WarmMin, t.CoolMin)
	}
	if t.WindSpeed < 0 || t.WindGust < 0 || t.GustWarningDelta < 0 {
		return fmt.Errorf("%w: wind thresholds must not be negative", models.ErrInvalidArgument)
	}
	if t.Humidity < 0 || t.Humidity > 100 {
		return fmt.Errorf("%w: humidity threshold must be within 0-100, got %v", models.ErrInvalidArgument, t.Humidity)
	}
	if t.HighUV < 0 || t.LowVisibility < 0 {
		return fmt.Errorf("%w: UV and visibility thresholds must not be negative", models.ErrInvalidArgument)
	}
	return nil
}
