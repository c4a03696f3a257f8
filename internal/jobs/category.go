package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// CategoriesFile is the name of the persisted category mapping.
const CategoriesFile = "categories.json"

// Category maps a category name to the directory its jobs land in.
type Category struct {
	SavePath string `json:"savePath"`

	extra map[string]json.RawMessage
}

// MarshalJSON writes savePath plus preserved unknown keys.
func (c Category) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.extra)+1)
	for k, v := range c.extra {
		out[k] = v
	}
	out["savePath"] = c.SavePath
	return json.Marshal(out)
}

// UnmarshalJSON reads a category, keeping unknown keys.
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Category{}
	if sp, ok := raw["savePath"]; ok {
		if err := json.Unmarshal(sp, &c.SavePath); err != nil {
			return fmt.Errorf("decode savePath: %w", err)
		}
		delete(raw, "savePath")
	}
	if len(raw) > 0 {
		c.extra = raw
	}
	return nil
}

// Categories is the persisted name to category mapping.
type Categories map[string]Category

// Names returns the category names in sorted order.
func (c Categories) Names() []string {
	return slices.Sorted(maps.Keys(c))
}

// CategoryStore persists categories.json with the same locking as Store.
type CategoryStore struct {
	file     *jsonFile
	defaults Categories
	log      *slog.Logger
}

// NewCategoryStore creates a store backed by dir/categories.json. defaults
// seed the file the first time it is read.
func NewCategoryStore(dir string, defaults Categories, log *slog.Logger) *CategoryStore {
	if log == nil {
		log = slog.Default()
	}
	return &CategoryStore{
		file:     newJSONFile(filepath.Join(dir, CategoriesFile)),
		defaults: defaults,
		log:      log.With("component", "categories"),
	}
}

// Load returns the mapping, writing the defaults first if the file is missing.
func (s *CategoryStore) Load(ctx context.Context) (Categories, error) {
	cats := Categories{}
	err := s.file.with(ctx, true, func() error {
		found, err := s.file.read(&cats)
		if err != nil || found {
			return err
		}
		cats = maps.Clone(s.defaults)
		if cats == nil {
			cats = Categories{}
		}
		s.log.Info("seeding categories", "count", len(cats))
		return s.file.write(cats)
	})
	if err != nil {
		return nil, err
	}
	return cats, nil
}

// Set creates or updates one category, preserving its unknown keys.
func (s *CategoryStore) Set(ctx context.Context, name, savePath string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty category name", ErrInvalidInput)
	}
	return s.file.with(ctx, true, func() error {
		cats := Categories{}
		found, err := s.file.read(&cats)
		if err != nil {
			return err
		}
		if !found {
			maps.Copy(cats, s.defaults)
		}
		c := cats[name]
		c.SavePath = savePath
		cats[name] = c
		return s.file.write(cats)
	})
}
