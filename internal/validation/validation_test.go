package validation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

func TestParseCoordinates_Valid(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		want     models.LocationCoordinates
	}{
		{"charlotte", "35.2271", "-80.8431", models.LocationCoordinates{Lat: 35.2271, Lon: -80.8431}},
		{"whitespace", " 1.5 ", "\t2", models.LocationCoordinates{Lat: 1.5, Lon: 2}},
		{"bounds inclusive", "-90", "180", models.LocationCoordinates{Lat: -90, Lon: 180}},
		{"origin", "0", "0", models.LocationCoordinates{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCoordinates(tc.lat, tc.lon)
			if err != nil {
				t.Fatalf("ParseCoordinates() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseCoordinates() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseCoordinates_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		want     error
	}{
		{"missing lat", "", "1", ErrLatitudeRequired},
		{"missing lon", "1", "  ", ErrLongitudeRequired},
		{"lat not number", "north", "1", ErrCoordinateNotNumber},
		{"lon not number", "1", "1,5", ErrCoordinateNotNumber},
		{"lat too big", "90.01", "0", ErrLatitudeOutOfRange},
		{"lon too small", "0", "-180.5", ErrLongitudeOutOfRange},
		{"lat NaN", "NaN", "0", ErrLatitudeOutOfRange},
		{"lon Inf", "0", "Inf", ErrLongitudeOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCoordinates(tc.lat, tc.lon)
			if !errors.Is(err, tc.want) {
				t.Errorf("ParseCoordinates(%q, %q) error = %v, want %v", tc.lat, tc.lon, err, tc.want)
			}
			if !errors.Is(err, models.ErrInvalidArgument) {
				t.Errorf("error %v should wrap ErrInvalidArgument", err)
			}
		})
	}
}

func TestValidateCoordinates(t *testing.T) {
	if err := ValidateCoordinates(models.LocationCoordinates{Lat: 47.6, Lon: -122.3, Name: "Seattle"}); err != nil {
		t.Errorf("ValidateCoordinates(valid) error = %v", err)
	}
	err := ValidateCoordinates(models.LocationCoordinates{Lat: math.Inf(-1), Lon: 0})
	if !errors.Is(err, ErrLatitudeOutOfRange) {
		t.Errorf("ValidateCoordinates(-Inf lat) error = %v, want ErrLatitudeOutOfRange", err)
	}
}

func TestValidateLabel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"empty allowed", "", "", nil},
		{"trimmed", "  Bentonville ", "Bentonville", nil},
		{"unicode", "Zürich", "Zürich", nil},
		{"punctuation", "St. John's, NL", "St. John's, NL", nil},
		{"slash", "sea/ttle", "", ErrLabelInvalidChars},
		{"angle brackets", "<script>", "", ErrLabelInvalidChars},
		{"too long", strings.Repeat("a", MaxLabelLen+1), "", ErrLabelTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateLabel(tc.input, MaxLabelLen)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("ValidateLabel(%q) error = %v, want %v", tc.input, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateLabel(%q) error = %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ValidateLabel(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestStruct_ClothingItem(t *testing.T) {
	valid := models.ClothingItem{
		ID:               "rain-shell",
		Name:             "Packable rain shell",
		Category:         models.CategoryTop,
		TemperatureRange: models.TemperatureRange{Min: 2, Max: 18},
		WeatherModifiers: []models.Modifier{models.ModifierRain},
		AffiliateLinks:   map[string]string{"rei": "https://www.rei.com/product/1"},
	}
	if err := Struct(valid); err != nil {
		t.Fatalf("Struct(valid) error = %v", err)
	}

	bad := valid
	bad.Category = "cape"
	bad.TemperatureRange = models.TemperatureRange{Min: 10, Max: 5}
	bad.WeatherModifiers = []models.Modifier{"fog"}
	err := Struct(bad)
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("Struct(bad) error = %v, want ErrInvalidArgument", err)
	}
	for _, field := range []string{"Category", "Max", "WeatherModifiers[0]"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Struct(bad) error %q does not mention %s", err.Error(), field)
		}
	}
}
