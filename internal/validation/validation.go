// Package validation checks caller-supplied coordinates, display labels and
// catalog records. Every error it returns wraps models.ErrInvalidArgument.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/dressmygravel/internal/models"
)

var (
	// ErrLatitudeRequired is returned when the lat parameter is missing.
	ErrLatitudeRequired = fmt.Errorf("%w: lat is required", models.ErrInvalidArgument)

	// ErrLongitudeRequired is returned when the lon parameter is missing.
	ErrLongitudeRequired = fmt.Errorf("%w: lon is required", models.ErrInvalidArgument)

	// ErrCoordinateNotNumber is returned when lat or lon is not a finite decimal number.
	ErrCoordinateNotNumber = fmt.Errorf("%w: coordinates must be decimal numbers", models.ErrInvalidArgument)

	// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
	ErrLatitudeOutOfRange = fmt.Errorf("%w: lat must be between -90 and 90", models.ErrInvalidArgument)

	// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
	ErrLongitudeOutOfRange = fmt.Errorf("%w: lon must be between -180 and 180", models.ErrInvalidArgument)

	// ErrLabelTooLong is returned when a name or country label exceeds the maximum length.
	ErrLabelTooLong = fmt.Errorf("%w: label too long", models.ErrInvalidArgument)

	// ErrLabelInvalidChars is returned when a label contains disallowed characters.
	ErrLabelInvalidChars = fmt.Errorf("%w: label contains invalid characters", models.ErrInvalidArgument)
)

// MaxLabelLen bounds name and country labels, in runes.
const MaxLabelLen = 100

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseCoordinates parses lat and lon query values into coordinates and checks
// their ranges. Surrounding whitespace is ignored.
func ParseCoordinates(latStr, lonStr string) (models.LocationCoordinates, error) {
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if latStr == "" {
		return models.LocationCoordinates{}, ErrLatitudeRequired
	}
	if lonStr == "" {
		return models.LocationCoordinates{}, ErrLongitudeRequired
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return models.LocationCoordinates{}, fmt.Errorf("%w: lat=%q", ErrCoordinateNotNumber, latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return models.LocationCoordinates{}, fmt.Errorf("%w: lon=%q", ErrCoordinateNotNumber, lonStr)
	}
	loc := models.LocationCoordinates{Lat: lat, Lon: lon}
	if err := ValidateCoordinates(loc); err != nil {
		return models.LocationCoordinates{}, err
	}
	return loc, nil
}

// ValidateCoordinates checks lat/lon ranges. NaN and infinities fail both bounds.
func ValidateCoordinates(loc models.LocationCoordinates) error {
	err := validate.Struct(loc)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		switch fieldErrs[0].Field() {
		case "Lat":
			return fmt.Errorf("%w: got %v", ErrLatitudeOutOfRange, loc.Lat)
		case "Lon":
			return fmt.Errorf("%w: got %v", ErrLongitudeOutOfRange, loc.Lon)
		}
	}
	return fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
}

// ValidateLabel trims a display label (location name, country) and restricts
// it to letters (Unicode), digits, space, comma, period, apostrophe and hyphen.
// An empty label is valid; labels are optional.
func ValidateLabel(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrLabelTooLong
	}
	for _, c := range r {
		if !isAllowedLabelRune(c) {
			return "", ErrLabelInvalidChars
		}
	}
	return s, nil
}

func isAllowedLabelRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// Struct runs the struct-tag rules on v (catalog items, config sections) and
// flattens failures into one ErrInvalidArgument listing each field.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", models.ErrInvalidArgument, strings.Join(parts, "; "))
}
