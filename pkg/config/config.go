// Package config loads and validates the pipeline run configuration.
//
// Configuration is a single TOML file describing the target grid, the
// ranked vector layers, the lookup table and the optional cache and
// store backends. The loaded Config is treated as immutable: every
// component receives it (or a slice of it) explicitly, nothing reads
// ambient state.
package config

import (
	"math"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
)

// Grid describes the target grid.
type Grid struct {
	Xmin     float64 `toml:"xmin"`
	Ymin     float64 `toml:"ymin"`
	Xmax     float64 `toml:"xmax"`
	Ymax     float64 `toml:"ymax"`
	CellSize float64 `toml:"cell_size"`
	Proj4    string  `toml:"proj4"`
}

// Spec converts the grid section into a grid.Spec.
func (g Grid) Spec() grid.Spec {
	return grid.Spec{
		Xmin: g.Xmin, Ymin: g.Ymin, Xmax: g.Xmax, Ymax: g.Ymax,
		CellSize: g.CellSize, Proj4: g.Proj4,
	}
}

// Layer declares one ranked vector input.
type Layer struct {
	Name      string   `toml:"name"`
	Path      string   `toml:"path"`
	Attribute string   `toml:"attribute"`
	Prefix    string   `toml:"prefix"`
	Rank      int      `toml:"rank"`
	Include   []string `toml:"include"`
	Exclude   []string `toml:"exclude"`

	// FixedValue collapses every feature of the layer to one category
	// regardless of attributes. Used for layers that carry identity in
	// their geometry alone, like built-up masks.
	FixedValue string `toml:"fixed_value"`
}

// Impervious configures the optional impervious-percent override.
type Impervious struct {
	// Path of the continuous 0-100 percent raster artifact. Empty
	// disables the override stage.
	Path string `toml:"path"`

	Prefix string `toml:"prefix"`

	// OverrideFirst gives the reclassified override priority over the
	// merged layers during final assembly.
	OverrideFirst bool `toml:"override_first"`
}

// Inputs holds the remaining input artifacts.
type Inputs struct {
	// Lookup is the global lookup table CSV (label, target class).
	Lookup string `toml:"lookup"`

	// Previous is the prior run's final raster for change analysis.
	// Empty skips the diff stage.
	Previous string `toml:"previous"`
}

// CacheConfig selects and configures the artifact cache backend.
type CacheConfig struct {
	// Backend is one of "file", "redis" or "none". Empty means "file".
	Backend string `toml:"backend"`

	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// StoreConfig configures the optional lookup persistence side-channel.
type StoreConfig struct {
	Enabled    bool   `toml:"enabled"`
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// Config is a fully parsed and validated run configuration.
type Config struct {
	Grid       Grid        `toml:"grid"`
	Layers     []Layer     `toml:"layer"`
	Impervious Impervious  `toml:"impervious"`
	Inputs     Inputs      `toml:"inputs"`
	OutputDir  string      `toml:"output_dir"`
	Cache      CacheConfig `toml:"cache"`
	Store      StoreConfig `toml:"store"`
}

// Load reads and validates a TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "config: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates TOML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "config: parse")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "out"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "file"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	g := c.Grid
	if g.CellSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "config: cell_size must be positive, got %g", g.CellSize)
	}
	if g.Xmax <= g.Xmin || g.Ymax <= g.Ymin {
		return errors.New(errors.ErrCodeInvalidConfig,
			"config: grid extent is empty (%g,%g)-(%g,%g)", g.Xmin, g.Ymin, g.Xmax, g.Ymax)
	}
	if !divides(g.Xmax-g.Xmin, g.CellSize) || !divides(g.Ymax-g.Ymin, g.CellSize) {
		return errors.New(errors.ErrCodeInvalidConfig,
			"config: grid extent is not a whole number of %g-unit cells", g.CellSize)
	}
	if err := errors.ValidateProj4(g.Proj4); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "config: grid proj4")
	}

	if len(c.Layers) == 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "config: at least one layer is required")
	}
	seen := make(map[string]bool, len(c.Layers))
	for i, l := range c.Layers {
		if err := errors.ValidateLayerName(l.Name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "config: layer %d", i+1)
		}
		if seen[l.Name] {
			return errors.New(errors.ErrCodeInvalidConfig, "config: duplicate layer name %q", l.Name)
		}
		seen[l.Name] = true
		if err := errors.ValidateInputPath(l.Path); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "config: layer %q path", l.Name)
		}
		if err := errors.ValidateCodePrefix(l.Prefix); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "config: layer %q prefix", l.Name)
		}
		if l.Attribute == "" && l.FixedValue == "" {
			return errors.New(errors.ErrCodeInvalidConfig,
				"config: layer %q needs an attribute or a fixed_value", l.Name)
		}
		if l.Rank < 1 {
			return errors.New(errors.ErrCodeInvalidConfig,
				"config: layer %q rank must be >= 1, got %d", l.Name, l.Rank)
		}
	}

	if err := errors.ValidateInputPath(c.Inputs.Lookup); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "config: inputs.lookup")
	}
	if c.Impervious.Path != "" {
		if err := errors.ValidateCodePrefix(c.Impervious.Prefix); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "config: impervious.prefix")
		}
	}

	switch c.Cache.Backend {
	case "file", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "config: cache.redis_addr is required for the redis backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "config: unknown cache backend %q", c.Cache.Backend)
	}

	if c.Store.Enabled && c.Store.URI == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "config: store.uri is required when the store is enabled")
	}
	return nil
}

// divides reports whether span is a whole multiple of step, allowing
// for float noise in hand-written extents.
func divides(span, step float64) bool {
	n := span / step
	return math.Abs(n-math.Round(n)) < 1e-9
}
