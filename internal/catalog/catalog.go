// Package catalog holds the clothing reference data the recommendation engine
// selects from. A default gravel catalog is embedded in the binary; a YAML
// file with the same layout can replace it.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/dressmygravel/internal/models"
	"github.com/kjstillabower/dressmygravel/internal/validation"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog supplies clothing items in catalog order.
type Catalog interface {
	Items() []models.ClothingItem
}

// Static is an immutable, ordered set of validated clothing items.
type Static struct {
	items []models.ClothingItem
	byID  map[string]int
}

type catalogFile struct {
	Items []models.ClothingItem `yaml:"items" validate:"required,min=1,dive"`
}

// Default returns the embedded gravel catalog.
func Default() (*Static, error) {
	s, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		return nil, fmt.Errorf("embedded catalog: %w", err)
	}
	return s, nil
}

// Load reads a catalog file. An empty path yields the embedded default.
func Load(path string) (*Static, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a YAML catalog. Unknown fields are rejected so
// a misspelled key fails loudly instead of silently dropping data.
func Parse(r io.Reader) (*Static, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: catalog is empty", models.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("%w: decode catalog: %v", models.ErrInvalidArgument, err)
	}
	return New(file.Items)
}

// New validates items and returns them as a Static catalog. IDs must be unique.
func New(items []models.ClothingItem) (*Static, error) {
	if err := validation.Struct(catalogFile{Items: items}); err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(items))
	for i, item := range items {
		if prev, dup := byID[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate item id %q at positions %d and %d",
				models.ErrInvalidArgument, item.ID, prev, i)
		}
		byID[item.ID] = i
	}

	return &Static{items: cloneItems(items), byID: byID}, nil
}

// Items returns a copy; callers may reorder or modify it freely.
func (s *Static) Items() []models.ClothingItem {
	return cloneItems(s.items)
}

// Len returns the number of items.
func (s *Static) Len() int {
	return len(s.items)
}

// Lookup returns the item with the given ID.
func (s *Static) Lookup(id string) (models.ClothingItem, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.ClothingItem{}, false
	}
	return cloneItem(s.items[i]), true
}

// ByCategory returns the items in one category, in catalog order.
func (s *Static) ByCategory(c models.Category) []models.ClothingItem {
	var out []models.ClothingItem
	for _, item := range s.items {
		if item.Category == c {
			out = append(out, cloneItem(item))
		}
	}
	return out
}

func cloneItems(items []models.ClothingItem) []models.ClothingItem {
	out := make([]models.ClothingItem, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}

func cloneItem(item models.ClothingItem) models.ClothingItem {
	if item.WeatherModifiers != nil {
		item.WeatherModifiers = append([]models.Modifier(nil), item.WeatherModifiers...)
	}
	if item.AffiliateLinks != nil {
		links := make(map[string]string, len(item.AffiliateLinks))
		for k, v := range item.AffiliateLinks {
			links[k] = v
		}
		item.AffiliateLinks = links
	}
	if item.GravelFeatures != nil {
		gf := *item.GravelFeatures
		item.GravelFeatures = &gf
	}
	return item
}
