package config

import (
	"strings"
	"testing"

	"github.com/hydrolt/luraster/pkg/errors"
)

const validTOML = `
output_dir = "run1"

[grid]
xmin = 300000.0
ymin = 5980000.0
xmax = 302000.0
ymax = 5981000.0
cell_size = 5.0
proj4 = "+proj=tmerc +lat_0=0 +lon_0=24 +k=0.9998 +x_0=500000 +y_0=0 +ellps=GRS80 +units=m +no_defs"

[inputs]
lookup = "data/globallookup.csv"
previous = "prev/final.lur"

[[layer]]
name = "crops"
path = "data/crops.shp"
attribute = "CODE"
prefix = "C"
rank = 1

[[layer]]
name = "forest"
path = "data/forest.shp"
attribute = "SPECIES"
prefix = "F"
rank = 2
exclude = ["0", ""]

[[layer]]
name = "builtup"
path = "data/builtup.shp"
prefix = "A"
rank = 3
fixed_value = "mask"

[impervious]
path = "data/imperv.lur"
prefix = "U"

[cache]
backend = "file"
dir = ".cache"

[store]
enabled = true
uri = "mongodb://localhost:27017"
database = "landuse"
collection = "lookup"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(validTOML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	spec := cfg.Grid.Spec()
	if spec.CellSize != 5 || spec.Ncols() != 400 || spec.Nrows() != 200 {
		t.Errorf("grid spec = %+v (%dx%d)", spec, spec.Nrows(), spec.Ncols())
	}

	if len(cfg.Layers) != 3 {
		t.Fatalf("got %d layers, want 3", len(cfg.Layers))
	}
	if cfg.Layers[1].Exclude[0] != "0" {
		t.Errorf("forest exclude = %v", cfg.Layers[1].Exclude)
	}
	if cfg.Layers[2].FixedValue != "mask" {
		t.Errorf("builtup fixed_value = %q", cfg.Layers[2].FixedValue)
	}
	if cfg.OutputDir != "run1" {
		t.Errorf("output_dir = %q", cfg.OutputDir)
	}
	if !cfg.Store.Enabled || cfg.Store.Database != "landuse" {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestParseDefaults(t *testing.T) {
	minimal := `
[grid]
xmin = 0.0
ymin = 0.0
xmax = 10.0
ymax = 10.0
cell_size = 1.0
proj4 = "+proj=longlat"

[inputs]
lookup = "lookup.csv"

[[layer]]
name = "a"
path = "a.shp"
attribute = "X"
prefix = "A"
rank = 1
`
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.OutputDir != "out" {
		t.Errorf("default output_dir = %q, want out", cfg.OutputDir)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("default cache backend = %q, want file", cfg.Cache.Backend)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name string
		edit func(string) string
		want string
	}{
		{"zero cell size", func(s string) string { return strings.Replace(s, "cell_size = 5.0", "cell_size = 0.0", 1) }, "cell_size"},
		{"ragged extent", func(s string) string { return strings.Replace(s, "xmax = 302000.0", "xmax = 302001.3", 1) }, "whole number"},
		{"missing proj4", func(s string) string { return strings.Replace(s, `proj4 = "+proj=tmerc +lat_0=0 +lon_0=24 +k=0.9998 +x_0=500000 +y_0=0 +ellps=GRS80 +units=m +no_defs"`, `proj4 = ""`, 1) }, "proj4"},
		{"duplicate layer", func(s string) string { return strings.Replace(s, `name = "forest"`, `name = "crops"`, 1) }, "duplicate"},
		{"zero rank", func(s string) string { return strings.Replace(s, "rank = 1", "rank = 0", 1) }, "rank"},
		{"missing lookup", func(s string) string { return strings.Replace(s, `lookup = "data/globallookup.csv"`, `lookup = ""`, 1) }, "lookup"},
		{"bad cache backend", func(s string) string { return strings.Replace(s, `backend = "file"`, `backend = "memcached"`, 1) }, "backend"},
		{"store without uri", func(s string) string { return strings.Replace(s, `uri = "mongodb://localhost:27017"`, `uri = ""`, 1) }, "store.uri"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.edit(validTOML)))
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Fatalf("err = %v, want INVALID_CONFIG", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestParseRedisBackendNeedsAddr(t *testing.T) {
	s := strings.Replace(validTOML, `backend = "file"`, `backend = "redis"`, 1)
	if _, err := Parse([]byte(s)); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("err = %v, want INVALID_CONFIG", err)
	}

	s = strings.Replace(s, `dir = ".cache"`, `redis_addr = "localhost:6379"`, 1)
	if _, err := Parse([]byte(s)); err != nil {
		t.Fatalf("redis backend with addr should validate: %v", err)
	}
}
