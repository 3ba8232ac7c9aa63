package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/ctessum/geom"

	"github.com/hydrolt/luraster/pkg/cache"
	"github.com/hydrolt/luraster/pkg/config"
	"github.com/hydrolt/luraster/pkg/grid"
	"github.com/hydrolt/luraster/pkg/vector"
)

func TestBuildPlan(t *testing.T) {
	cfg := &config.Config{}
	cfg.Impervious.Path = "imperv.lur"
	cfg.Inputs.Previous = "prev.lur"
	cfg.Store.Enabled = true

	plan := BuildPlan(cfg, Options{})
	for _, name := range []string{StageRasterize, StageMerge, StageTranslate, StageOverride, StageAssemble, StageDiff, StageStats, StageStore} {
		if !Enabled(plan, name) {
			t.Errorf("stage %s should be enabled", name)
		}
	}

	plan = BuildPlan(cfg, Options{SkipOverride: true, SkipDiff: true, SkipStats: true, SkipStore: true})
	for _, name := range []string{StageOverride, StageDiff, StageStats, StageStore} {
		if Enabled(plan, name) {
			t.Errorf("stage %s should be disabled by flag", name)
		}
	}
	for _, name := range []string{StageRasterize, StageMerge, StageTranslate, StageAssemble} {
		if !Enabled(plan, name) {
			t.Errorf("core stage %s can never be disabled", name)
		}
	}

	// Unconfigured optional inputs disable their stages with a reason.
	plan = BuildPlan(&config.Config{}, Options{})
	for _, s := range plan {
		if s.Name == StageDiff || s.Name == StageOverride || s.Name == StageStore {
			if s.Enabled {
				t.Errorf("stage %s should be disabled without configuration", s.Name)
			}
			if s.Reason == "" {
				t.Errorf("disabled stage %s should carry a reason", s.Name)
			}
		}
	}
}

// rect builds a rectangle polygon covering [x0,x1] x [y0,y1].
func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

// fakeLoader serves in-memory layers keyed by name, standing in for
// shapefile loading.
func fakeLoader(t *testing.T) func(name, path string, opts vector.ShapefileOptions) (*vector.Layer, error) {
	t.Helper()
	return func(name, path string, opts vector.ShapefileOptions) (*vector.Layer, error) {
		layer := vector.NewLayer(name)
		switch name {
		case "crops":
			// Left two columns of the 4x4 grid.
			layer.Add(rect(0, 0, 2, 4), "WW")
		case "forest":
			// Columns 0..2, overlapping crops.
			layer.Add(rect(0, 0, 3, 4), "Pa")
		default:
			return nil, fmt.Errorf("unexpected layer %q", name)
		}
		return layer, nil
	}
}

const testLookup = `globalcode,SWATCODE
C_WW,WWHT
F_Pa,FRSE
U_URLD,URLD
U_URML,URML
U_URMD,URMD
U_URHD,URHD
U_UIDU,UIDU
`

// testConfig builds a runnable configuration over a 4x4 unit-cell grid
// with two fake layers and an impervious override covering the last
// column.
func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()

	for _, f := range []string{"crops.shp", "forest.shp"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(f), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "lookup.csv"), []byte(testLookup), 0644); err != nil {
		t.Fatal(err)
	}

	spec := grid.Spec{Xmin: 0, Ymin: 0, Xmax: 4, Ymax: 4, CellSize: 1, Proj4: "+proj=longlat"}
	imperv := grid.New(spec)
	for row := 0; row < 4; row++ {
		imperv.Set(row, 3, 100)
	}
	if err := grid.WriteFile(filepath.Join(dir, "imperv.lur"), imperv); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Grid: config.Grid{Xmin: 0, Ymin: 0, Xmax: 4, Ymax: 4, CellSize: 1, Proj4: "+proj=longlat"},
		Layers: []config.Layer{
			{Name: "crops", Path: filepath.Join(dir, "crops.shp"), Attribute: "CODE", Prefix: "C", Rank: 1},
			{Name: "forest", Path: filepath.Join(dir, "forest.shp"), Attribute: "SPECIES", Prefix: "F", Rank: 2},
		},
		OutputDir: filepath.Join(dir, "out"),
	}
	cfg.Impervious.Path = filepath.Join(dir, "imperv.lur")
	cfg.Impervious.Prefix = "U"
	cfg.Inputs.Lookup = filepath.Join(dir, "lookup.csv")
	return cfg
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func TestExecuteEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	runner := NewRunner(cache.NewNullCache(), nil, quietLogger())
	runner.LoadLayer = fakeLoader(t)

	res, err := runner.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.RunID == "" {
		t.Error("run should be assigned an ID")
	}

	final, err := grid.ReadFile(res.Paths.Final())
	if err != nil {
		t.Fatalf("read final raster: %v", err)
	}

	// Target codes follow lookup file order: WWHT=1, FRSE=2, UIDU=7.
	// Crops (rank 1) win columns 0-1, forest takes column 2, the
	// impervious override fills column 3.
	for row := 0; row < 4; row++ {
		wants := []int32{1, 1, 2, 7}
		for col, want := range wants {
			if got := final.At(row, col); got != want {
				t.Errorf("final (%d,%d) = %d, want %d", row, col, got, want)
			}
		}
	}

	// Minimal lookup: exactly the codes present.
	if len(res.LookupRows) != 3 {
		t.Fatalf("lookup rows = %+v, want 3", res.LookupRows)
	}
	names := map[int32]string{1: "WWHT", 2: "FRSE", 7: "UIDU"}
	for _, r := range res.LookupRows {
		if names[r.Code] != r.Name {
			t.Errorf("lookup row %+v, want name %q", r, names[r.Code])
		}
	}

	// All stage artifacts of the enabled plan exist.
	for _, path := range []string{
		res.Paths.Layer("crops"), res.Paths.Layer("forest"), res.Paths.Legend(),
		res.Paths.Merged(), res.Paths.Translated(), res.Paths.Override(),
		res.Paths.Final(), res.Paths.FinalLookup(),
		res.Paths.CodeStats(), res.Paths.ClassStats(),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("artifact %s missing: %v", path, err)
		}
	}

	// Diff was not configured.
	if Enabled(res.Plan, StageDiff) {
		t.Error("diff should be disabled without a previous raster")
	}
	if _, err := os.Stat(res.Paths.Diff()); err == nil {
		t.Error("diff artifact should not be written when the stage is disabled")
	}
}

func TestExecuteDeterministic(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	runner := NewRunner(cache.NewNullCache(), nil, quietLogger())
	runner.LoadLayer = fakeLoader(t)

	if _, err := runner.Execute(context.Background(), cfg, Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := os.ReadFile(Artifacts{Dir: cfg.OutputDir}.Final())
	if err != nil {
		t.Fatal(err)
	}

	cfg.OutputDir = filepath.Join(dir, "out2")
	if _, err := runner.Execute(context.Background(), cfg, Options{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := os.ReadFile(Artifacts{Dir: cfg.OutputDir}.Final())
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Error("re-running with identical inputs should produce a byte-identical final raster")
	}
}

func TestExecuteCacheReuse(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	fc, err := cache.NewFileCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(fc, nil, quietLogger())
	runner.LoadLayer = fakeLoader(t)

	res1, err := runner.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res1.CacheInfo.RasterizeHit || res1.CacheInfo.MergeHit {
		t.Error("first run should not hit the cache")
	}

	cfg.OutputDir = filepath.Join(dir, "out2")
	res2, err := runner.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !res2.CacheInfo.RasterizeHit || !res2.CacheInfo.MergeHit ||
		!res2.CacheInfo.TranslateHit || !res2.CacheInfo.OverrideHit {
		t.Errorf("second run should hit the cache: %+v", res2.CacheInfo)
	}

	first, _ := os.ReadFile(res1.Paths.Final())
	second, _ := os.ReadFile(res2.Paths.Final())
	if !bytes.Equal(first, second) {
		t.Error("cached run should restore identical artifacts")
	}

	// Refresh bypasses the cache.
	cfg.OutputDir = filepath.Join(dir, "out3")
	res3, err := runner.Execute(context.Background(), cfg, Options{Refresh: true})
	if err != nil {
		t.Fatalf("refresh run: %v", err)
	}
	if res3.CacheInfo.RasterizeHit {
		t.Error("refresh should bypass the cache")
	}
}

func TestExecuteDiffAgainstPrevious(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	runner := NewRunner(cache.NewNullCache(), nil, quietLogger())
	runner.LoadLayer = fakeLoader(t)

	res1, err := runner.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	cfg.OutputDir = filepath.Join(dir, "out2")
	cfg.Inputs.Previous = res1.Paths.Final()
	res2, err := runner.Execute(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !Enabled(res2.Plan, StageDiff) {
		t.Fatal("diff should be enabled with a previous raster")
	}
	data, err := os.ReadFile(res2.Paths.Diff())
	if err != nil {
		t.Fatalf("read diff artifact: %v", err)
	}
	// Identical runs: every pair is "unchanged".
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		t.Fatalf("diff artifact has no data rows:\n%s", data)
	}
	for _, line := range lines[1:] {
		if !strings.Contains(line, "unchanged") {
			t.Errorf("diff of identical rasters has non-unchanged row %q", line)
		}
	}
}
