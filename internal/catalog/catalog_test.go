package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/recommend"
)

func TestDefault_LoadsEmbeddedCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotZero(t, c.Len())

	seen := map[models.Category]bool{}
	for _, item := range c.Items() {
		seen[item.Category] = true
	}
	for _, cat := range models.Categories {
		assert.True(t, seen[cat], "embedded catalog has no %s items", cat)
	}
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	d, err := Default()
	require.NoError(t, err)
	assert.Equal(t, d.Items(), c.Items())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := `items:
  - id: vest
    name: Wind vest
    category: top
    temperature_range: {min: 5, max: 18}
    weather_modifiers: [wind]
  - id: bibs
    name: Bib shorts
    category: bottom
    temperature_range: {min: 15, max: 40}
    gravel_features: {vibration_damping: true, durability: high}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "vest", items[0].ID)
	assert.Equal(t, []models.Modifier{models.ModifierWind}, items[0].WeatherModifiers)
	require.NotNil(t, items[1].GravelFeatures)
	assert.True(t, items[1].GravelFeatures.VibrationDamping)
	assert.Equal(t, "high", items[1].GravelFeatures.Durability)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantSub string
	}{
		{
			name:    "empty document",
			body:    "",
			wantSub: "empty",
		},
		{
			name:    "no items",
			body:    "items: []\n",
			wantSub: "Items",
		},
		{
			name: "unknown field",
			body: `items:
  - id: a
    name: A
    category: top
    colour: red
`,
			wantSub: "colour",
		},
		{
			name: "unknown category",
			body: `items:
  - id: a
    name: A
    category: cape
`,
			wantSub: "Category",
		},
		{
			name: "inverted range",
			body: `items:
  - id: a
    name: A
    category: top
    temperature_range: {min: 20, max: 10}
`,
			wantSub: "Max",
		},
		{
			name: "unknown modifier",
			body: `items:
  - id: a
    name: A
    category: top
    weather_modifiers: [hail]
`,
			wantSub: "WeatherModifiers",
		},
		{
			name: "bad affiliate link",
			body: `items:
  - id: a
    name: A
    category: top
    affiliate_links: {shop: not a url}
`,
			wantSub: "AffiliateLinks",
		},
		{
			name: "missing id",
			body: `items:
  - name: A
    category: top
`,
			wantSub: "ID",
		},
		{
			name: "duplicate id",
			body: `items:
  - id: a
    name: A
    category: top
  - id: a
    name: B
    category: bottom
`,
			wantSub: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidArgument), "err = %v", err)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}
}

func TestItems_ReturnsCopy(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	original := c.Items()[0]
	items := c.Items()
	items[0].Name = "changed"
	if len(items[0].WeatherModifiers) > 0 {
		items[0].WeatherModifiers[0] = "hail"
	}
	if items[0].GravelFeatures != nil {
		items[0].GravelFeatures.Durability = "changed"
	}

	again := c.Items()
	assert.Equal(t, original, again[0])
}

func TestLookupAndByCategory(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	item, ok := c.Lookup("rain-shell")
	require.True(t, ok)
	assert.Equal(t, models.CategoryTop, item.Category)
	assert.True(t, item.Waterproof)

	_, ok = c.Lookup("jetpack")
	assert.False(t, ok)

	for _, it := range c.ByCategory(models.CategoryFeet) {
		assert.Equal(t, models.CategoryFeet, it.Category)
	}
	assert.Empty(t, c.ByCategory("cape"))
}

func TestDefault_RainyCoolRide(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	e, err := recommend.NewEngine(recommend.DefaultThresholds())
	require.NoError(t, err)

	w := models.WeatherData{
		Temperature:       11,
		FeelsLike:         10,
		Humidity:          70,
		WindSpeed:         3,
		Precipitation:     1.2,
		PrecipitationType: models.PrecipitationRain,
		Visibility:        8000,
		Conditions:        []models.WeatherCondition{{ID: 500, Main: "Rain", Description: "light rain"}},
	}
	rec, err := e.Recommend(w, c.Items())
	require.NoError(t, err)

	assert.Equal(t, models.ZoneCool, rec.TemperatureZone)
	byCat := map[models.Category]string{}
	for _, it := range rec.Items {
		_, dup := byCat[it.Category]
		assert.False(t, dup, "category %s chosen twice", it.Category)
		byCat[it.Category] = it.ID
	}
	assert.Equal(t, "rain-shell", byCat[models.CategoryTop])
	assert.Equal(t, "rain-pants", byCat[models.CategoryBottom])
	assert.Equal(t, "waterproof-gloves", byCat[models.CategoryHands])
}
