// Package geo reduces raw coordinates onto a coarse caching grid so that
// nearby riders share one weather lookup.
package geo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

// DefaultPrecision is the grid step in degrees. 0.1° is roughly 11 km at the
// equator: weather is effectively uniform inside a cell.
const DefaultPrecision = 0.1

// EarthRadiusKm is the mean Earth radius used for haversine distance.
const EarthRadiusKm = 6371.0

const keyPrefix = "weather:"

// maxDecimals bounds how many decimal digits a precision may need.
const maxDecimals = 10

// Grid rounds coordinates to a fixed precision and derives cache keys from them.
// The zero value is not usable; use NewGrid or DefaultGrid.
type Grid struct {
	precision float64
	decimals  int
}

// DefaultGrid is the 0.1° grid used by the package-level helpers.
var DefaultGrid = Grid{precision: DefaultPrecision, decimals: 1}

// NewGrid returns a Grid for the given precision in degrees.
func NewGrid(precision float64) (Grid, error) {
	if err := checkPrecision(precision); err != nil {
		return Grid{}, err
	}
	return Grid{precision: precision, decimals: decimalsFor(precision)}, nil
}

// Precision returns the grid step in degrees.
func (g Grid) Precision() float64 {
	return g.precision
}

// Round snaps lat and lon independently to the nearest grid line, halves away from zero.
func (g Grid) Round(lat, lon float64) (float64, float64, error) {
	if err := checkPrecision(g.precision); err != nil {
		return 0, 0, err
	}
	if !isFinite(lat) || !isFinite(lon) {
		return 0, 0, fmt.Errorf("%w: coordinates must be finite, got (%v, %v)", models.ErrInvalidArgument, lat, lon)
	}
	return g.snap(lat), g.snap(lon), nil
}

// Key returns "weather:{lat}:{lon}" for the cell containing (lat, lon).
// Every point of a cell yields a byte-identical key.
func (g Grid) Key(lat, lon float64) (string, error) {
	rlat, rlon, err := g.Round(lat, lon)
	if err != nil {
		return "", err
	}
	return keyPrefix + g.format(rlat) + ":" + g.format(rlon), nil
}

// KeyFor returns the cache key for loc. Name and Country are ignored.
func (g Grid) KeyFor(loc models.LocationCoordinates) (string, error) {
	return g.Key(loc.Lat, loc.Lon)
}

func (g Grid) snap(v float64) float64 {
	r := math.Round(v/g.precision) * g.precision
	// Strip float noise such as 35.300000000000004.
	scale := math.Pow(10, float64(g.decimals))
	r = math.Round(r*scale) / scale
	if r == 0 {
		r = 0 // drop negative zero
	}
	return r
}

func (g Grid) format(v float64) string {
	return strconv.FormatFloat(v, 'f', g.decimals, 64)
}

// RoundCoordinates rounds lat and lon to the nearest multiple of precision.
func RoundCoordinates(lat, lon, precision float64) (float64, float64, error) {
	g, err := NewGrid(precision)
	if err != nil {
		return 0, 0, err
	}
	return g.Round(lat, lon)
}

// GenerateWeatherCacheKey returns the cache key on the default 0.1° grid,
// e.g. "weather:35.3:-80.8".
func GenerateWeatherCacheKey(lat, lon float64) (string, error) {
	return DefaultGrid.Key(lat, lon)
}

// CalculateDistance returns the great-circle distance in kilometers between
// two points using the haversine formula.
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon
	// Rounding can push a a hair past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func checkPrecision(p float64) error {
	if !isFinite(p) || p <= 0 {
		return fmt.Errorf("%w: grid precision must be positive, got %v", models.ErrInvalidArgument, p)
	}
	return nil
}

// decimalsFor returns the fewest decimal digits that represent multiples of p exactly.
func decimalsFor(p float64) int {
	for d := 0; d < maxDecimals; d++ {
		scaled := p * math.Pow(10, float64(d))
		if math.Abs(scaled-math.Round(scaled)) < 1e-9*math.Max(1, scaled) {
			return d
		}
	}
	return maxDecimals
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
