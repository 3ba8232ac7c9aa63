package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hydrolt/luraster/pkg/cache"
	"github.com/hydrolt/luraster/pkg/config"
	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
	"github.com/hydrolt/luraster/pkg/landuse"
	"github.com/hydrolt/luraster/pkg/observability"
	"github.com/hydrolt/luraster/pkg/store"
	"github.com/hydrolt/luraster/pkg/vector"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for its collaborators - it doesn't
// store run results. Multiple goroutines can safely use the same
// Runner with different configurations.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Store  store.LookupStore
	Logger *log.Logger

	// LoadLayer loads one vector layer. Defaults to shapefile loading;
	// embedders can substitute other sources.
	LoadLayer func(name, path string, opts vector.ShapefileOptions) (*vector.Layer, error)
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:     c,
		Keyer:     keyer,
		Store:     store.NullStore{},
		Logger:    logger,
		LoadLayer: vector.LoadShapefile,
	}
}

// Execute runs the full pipeline for one configuration.
func (r *Runner) Execute(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}

	plan := BuildPlan(cfg, opts)
	start := time.Now()
	observability.Stage().OnRunStart(ctx, opts.RunID, StageNames(plan))
	for _, s := range plan {
		if !s.Enabled {
			observability.Stage().OnStageSkipped(ctx, opts.RunID, s.Name)
			opts.Logger.Debug("stage skipped", "stage", s.Name, "reason", s.Reason)
		}
	}

	res, err := r.execute(ctx, cfg, opts, plan)
	observability.Stage().OnRunComplete(ctx, opts.RunID, time.Since(start), err)
	return res, err
}

func (r *Runner) execute(ctx context.Context, cfg *config.Config, opts Options, plan []PlanStage) (*Result, error) {
	logger := opts.Logger

	spec := cfg.Grid.Spec()
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "pipeline: grid")
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "pipeline: encode grid spec")
	}
	gridHash := cache.Hash(specJSON)

	arts := Artifacts{Dir: cfg.OutputDir}
	if err := os.MkdirAll(filepath.Join(cfg.OutputDir, "layers"), 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIOWrite, err, "pipeline: create output dir %s", cfg.OutputDir)
	}

	lut, err := landuse.ReadLookupCSV(cfg.Inputs.Lookup)
	if err != nil {
		return nil, err
	}
	lookupHash, err := cache.HashFile(cfg.Inputs.Lookup)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "pipeline: hash lookup %s", cfg.Inputs.Lookup)
	}

	result := &Result{RunID: opts.RunID, Plan: plan, Paths: arts}
	result.Stats.Layers = len(cfg.Layers)
	result.Stats.Cells = spec.Ncells()

	// Stage 1: Rasterize
	stageStart := time.Now()
	observability.Stage().OnStageStart(ctx, opts.RunID, StageRasterize)
	reg, layerRasters, layerKeys, rasterizeHit, err := r.rasterize(ctx, cfg, spec, gridHash, arts, opts, Enabled(plan, StageOverride))
	result.Stats.RasterizeTime = time.Since(stageStart)
	observability.Stage().OnStageComplete(ctx, opts.RunID, StageRasterize, spec.Ncells(), result.Stats.RasterizeTime, err)
	if err != nil {
		return nil, err
	}
	result.CacheInfo.RasterizeHit = rasterizeHit
	result.Stats.Codes = reg.Len()
	logger.Info("rasterized layers",
		"layers", len(cfg.Layers),
		"codes", reg.Len(),
		"cached", rasterizeHit,
		"duration", result.Stats.RasterizeTime)

	legendHash, err := cache.HashFile(arts.Legend())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "pipeline: hash legend")
	}

	// Stage 2: Merge
	stageStart = time.Now()
	observability.Stage().OnStageStart(ctx, opts.RunID, StageMerge)
	merged, mergeHit, err := r.merge(ctx, cfg, gridHash, layerKeys, layerRasters, arts, opts)
	result.Stats.MergeTime = time.Since(stageStart)
	observability.Stage().OnStageComplete(ctx, opts.RunID, StageMerge, spec.Ncells(), result.Stats.MergeTime, err)
	if err != nil {
		return nil, err
	}
	result.CacheInfo.MergeHit = mergeHit
	logger.Info("merged layers", "cached", mergeHit, "duration", result.Stats.MergeTime)

	mergedHash, err := cache.HashFile(arts.Merged())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "pipeline: hash merged raster")
	}

	// Stage 3: Translate
	stageStart = time.Now()
	observability.Stage().OnStageStart(ctx, opts.RunID, StageTranslate)
	translated, translateHit, err := r.translateCached(ctx, merged, mergedHash, reg, lut, lookupHash, legendHash, arts.Translated(), opts)
	result.Stats.TranslateTime = time.Since(stageStart)
	observability.Stage().OnStageComplete(ctx, opts.RunID, StageTranslate, spec.Ncells(), result.Stats.TranslateTime, err)
	if err != nil {
		return nil, err
	}
	result.CacheInfo.TranslateHit = translateHit
	logger.Info("translated raster", "cached", translateHit, "duration", result.Stats.TranslateTime)

	// Stage 4: Override (optional)
	var override *grid.Raster
	if Enabled(plan, StageOverride) {
		stageStart = time.Now()
		observability.Stage().OnStageStart(ctx, opts.RunID, StageOverride)
		var overrideHit bool
		override, overrideHit, err = r.override(ctx, cfg, spec, reg, lut, lookupHash, legendHash, arts, opts)
		result.Stats.OverrideTime = time.Since(stageStart)
		observability.Stage().OnStageComplete(ctx, opts.RunID, StageOverride, spec.Ncells(), result.Stats.OverrideTime, err)
		if err != nil {
			return nil, err
		}
		result.CacheInfo.OverrideHit = overrideHit
		logger.Info("reclassified override", "cached", overrideHit, "duration", result.Stats.OverrideTime)
	}

	// Stage 5: Assemble
	stageStart = time.Now()
	observability.Stage().OnStageStart(ctx, opts.RunID, StageAssemble)
	final, rows, err := landuse.Assemble(translated, override, lut, landuse.AssembleOptions{
		OverrideFirst: cfg.Impervious.OverrideFirst,
	})
	if err == nil {
		err = grid.WriteFile(arts.Final(), final)
	}
	if err == nil {
		err = landuse.WriteFinalLookupCSV(arts.FinalLookup(), rows)
	}
	result.Stats.AssembleTime = time.Since(stageStart)
	observability.Stage().OnStageComplete(ctx, opts.RunID, StageAssemble, spec.Ncells(), result.Stats.AssembleTime, err)
	if err != nil {
		return nil, err
	}
	result.LookupRows = rows
	logger.Info("assembled final raster",
		"classes", len(rows),
		"path", arts.Final(),
		"duration", result.Stats.AssembleTime)

	// Stage 6: Diff (optional)
	if Enabled(plan, StageDiff) {
		stageStart = time.Now()
		observability.Stage().OnStageStart(ctx, opts.RunID, StageDiff)
		diffHit, err := r.diff(ctx, cfg, final, arts, opts, logger)
		result.Stats.DiffTime = time.Since(stageStart)
		observability.Stage().OnStageComplete(ctx, opts.RunID, StageDiff, spec.Ncells(), result.Stats.DiffTime, err)
		if err != nil {
			return nil, err
		}
		result.CacheInfo.DiffHit = diffHit
	}

	// Stage 7: Stats (optional)
	if Enabled(plan, StageStats) {
		stageStart = time.Now()
		observability.Stage().OnStageStart(ctx, opts.RunID, StageStats)
		codeStats, classStats, err := landuse.AreaStats(merged, reg, lut)
		if err == nil {
			err = landuse.WriteCodeStatsCSV(arts.CodeStats(), codeStats)
		}
		if err == nil {
			err = landuse.WriteClassStatsCSV(arts.ClassStats(), classStats)
		}
		result.Stats.StatsTime = time.Since(stageStart)
		observability.Stage().OnStageComplete(ctx, opts.RunID, StageStats, spec.Ncells(), result.Stats.StatsTime, err)
		if err != nil {
			return nil, err
		}
		logger.Info("computed area stats", "codes", len(codeStats), "classes", len(classStats))
	}

	// Stage 8: Store (optional)
	if Enabled(plan, StageStore) {
		stageStart = time.Now()
		observability.Stage().OnStageStart(ctx, opts.RunID, StageStore)
		err := r.Store.UpsertLookup(ctx, opts.RunID, rows)
		observability.Stage().OnStageComplete(ctx, opts.RunID, StageStore, len(rows), time.Since(stageStart), err)
		if err != nil {
			return nil, err
		}
		logger.Info("persisted lookup table", "rows", len(rows))
	}

	return result, nil
}

// rasterize builds the per-layer rasters and the code legend. On a full
// cache hit the vector sources are not touched at all; the legend and
// layer artifacts are restored from their cached bytes.
func (r *Runner) rasterize(ctx context.Context, cfg *config.Config, spec grid.Spec, gridHash string, arts Artifacts, opts Options, withOverride bool) (*landuse.Registry, []*grid.Raster, []string, bool, error) {
	keys := make([]string, len(cfg.Layers))
	for i, lc := range cfg.Layers {
		srcHash, err := sourceHash(lc.Path)
		if err != nil {
			return nil, nil, nil, false, err
		}
		keys[i] = r.Keyer.LayerKey(gridHash, lc.Name, cache.LayerKeyOpts{
			SourceHash: srcHash,
			Attribute:  lc.Attribute,
			Prefix:     lc.Prefix,
			Rank:       lc.Rank,
			Include:    lc.Include,
			Exclude:    lc.Exclude,
			FixedValue: lc.FixedValue,
		})
	}

	// The legend also covers the override codes, so its identity
	// includes whether (and under which prefix) the override runs.
	legendParts := append(append([]string{}, keys...), "override:"+overridePrefix(cfg, withOverride))
	legendKey := r.Keyer.LegendKey(gridHash, cache.MergeKeyOpts{LayerHashes: legendParts})

	if !opts.Refresh {
		if reg, rasters, ok := r.restoreRasterize(ctx, cfg, legendKey, keys, arts); ok {
			observability.Cache().OnCacheHit(ctx, "rasterize")
			return reg, rasters, keys, true, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "rasterize")

	// Load all vector sources concurrently.
	layers := make([]*vector.Layer, len(cfg.Layers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)
	for i, lc := range cfg.Layers {
		i, lc := i, lc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			layer, err := r.LoadLayer(lc.Name, lc.Path, vector.ShapefileOptions{
				Attribute:  lc.Attribute,
				GridProj4:  spec.Proj4,
				Include:    lc.Include,
				Exclude:    lc.Exclude,
				FixedValue: lc.FixedValue,
				Bounds:     vector.ClipBounds(spec.Xmin, spec.Ymin, spec.Xmax, spec.Ymax),
			})
			if err != nil {
				return err
			}
			layers[i] = layer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, false, err
	}

	// Register codes sequentially in declared layer order so the
	// encoding does not depend on goroutine scheduling. The burn phase
	// then only reads the registry.
	reg := landuse.NewRegistry()
	for i, lc := range cfg.Layers {
		for _, v := range layers[i].Values() {
			if _, err := reg.Register(lc.Prefix, v); err != nil {
				return nil, nil, nil, false, err
			}
		}
	}
	if withOverride {
		for _, b := range landuse.ImperviousBreaks {
			if _, err := reg.Register(cfg.Impervious.Prefix, b.Value); err != nil {
				return nil, nil, nil, false, err
			}
		}
	}

	rasters := make([]*grid.Raster, len(cfg.Layers))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)
	for i, lc := range cfg.Layers {
		i, lc := i, lc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rz := &landuse.Rasterizer{Spec: spec, Registry: reg}
			raster, err := rz.Rasterize(layers[i], lc.Prefix)
			if err != nil {
				return err
			}
			rasters[i] = raster
			return grid.WriteFile(arts.Layer(lc.Name), raster)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, false, err
	}

	if err := landuse.WriteLegendCSV(arts.Legend(), reg); err != nil {
		return nil, nil, nil, false, err
	}

	// Cache the stage artifacts.
	if data, err := os.ReadFile(arts.Legend()); err == nil {
		_ = r.Cache.Set(ctx, legendKey, data, cache.RasterTTL)
		observability.Cache().OnCacheSet(ctx, "legend", len(data))
	}
	for i, lc := range cfg.Layers {
		if data, err := os.ReadFile(arts.Layer(lc.Name)); err == nil {
			_ = r.Cache.Set(ctx, keys[i], data, cache.RasterTTL)
			observability.Cache().OnCacheSet(ctx, "layer", len(data))
		}
	}

	return reg, rasters, keys, false, nil
}

// restoreRasterize rebuilds the rasterize stage outputs from cache.
// Any miss or decode failure falls back to recomputation.
func (r *Runner) restoreRasterize(ctx context.Context, cfg *config.Config, legendKey string, keys []string, arts Artifacts) (*landuse.Registry, []*grid.Raster, bool) {
	legendData, hit, err := r.Cache.Get(ctx, legendKey)
	if err != nil || !hit {
		return nil, nil, false
	}

	layerData := make([][]byte, len(keys))
	for i, k := range keys {
		data, hit, err := r.Cache.Get(ctx, k)
		if err != nil || !hit {
			return nil, nil, false
		}
		layerData[i] = data
	}

	rasters := make([]*grid.Raster, len(keys))
	for i, data := range layerData {
		raster, err := grid.Read(bytes.NewReader(data))
		if err != nil {
			return nil, nil, false
		}
		rasters[i] = raster
	}

	if err := os.WriteFile(arts.Legend(), legendData, 0644); err != nil {
		return nil, nil, false
	}
	reg, err := landuse.ReadLegendCSV(arts.Legend())
	if err != nil {
		return nil, nil, false
	}
	for i, lc := range cfg.Layers {
		if err := os.WriteFile(arts.Layer(lc.Name), layerData[i], 0644); err != nil {
			return nil, nil, false
		}
	}
	return reg, rasters, true
}

// merge combines the layer rasters by rank.
func (r *Runner) merge(ctx context.Context, cfg *config.Config, gridHash string, layerKeys []string, layerRasters []*grid.Raster, arts Artifacts, opts Options) (*grid.Raster, bool, error) {
	mergeKey := r.Keyer.MergeKey(gridHash, cache.MergeKeyOpts{LayerHashes: layerKeys})

	if !opts.Refresh {
		if raster, ok := r.restoreRaster(ctx, mergeKey, arts.Merged()); ok {
			observability.Cache().OnCacheHit(ctx, "merge")
			return raster, true, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "merge")

	ranked := make([]landuse.Ranked, len(cfg.Layers))
	for i, lc := range cfg.Layers {
		ranked[i] = landuse.Ranked{Name: lc.Name, Rank: lc.Rank, Raster: layerRasters[i]}
	}
	merged, err := landuse.Merge(ranked)
	if err != nil {
		return nil, false, err
	}
	if err := r.persistRaster(ctx, mergeKey, "merge", arts.Merged(), merged); err != nil {
		return nil, false, err
	}
	return merged, false, nil
}

// translateCached translates a raster with caching.
func (r *Runner) translateCached(ctx context.Context, src *grid.Raster, srcHash string, reg *landuse.Registry, lut *landuse.LookupTable, lookupHash, legendHash, path string, opts Options) (*grid.Raster, bool, error) {
	key := r.Keyer.TranslateKey(srcHash, cache.TranslateKeyOpts{
		LookupHash: lookupHash,
		LegendHash: legendHash,
	})

	if !opts.Refresh {
		if raster, ok := r.restoreRaster(ctx, key, path); ok {
			observability.Cache().OnCacheHit(ctx, "translate")
			return raster, true, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "translate")

	out, err := landuse.Translate(src, reg, lut)
	if err != nil {
		return nil, false, err
	}
	if err := r.persistRaster(ctx, key, "translate", path, out); err != nil {
		return nil, false, err
	}
	return out, false, nil
}

// override reclassifies the impervious raster and translates it into
// the target scheme.
func (r *Runner) override(ctx context.Context, cfg *config.Config, spec grid.Spec, reg *landuse.Registry, lut *landuse.LookupTable, lookupHash, legendHash string, arts Artifacts, opts Options) (*grid.Raster, bool, error) {
	impHash, err := cache.HashFile(cfg.Impervious.Path)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeIORead, err, "pipeline: hash impervious raster %s", cfg.Impervious.Path)
	}
	key := r.Keyer.TranslateKey(impHash, cache.TranslateKeyOpts{
		LookupHash: lookupHash,
		LegendHash: legendHash,
	})

	if !opts.Refresh {
		if raster, ok := r.restoreRaster(ctx, key, arts.Override()); ok {
			observability.Cache().OnCacheHit(ctx, "override")
			return raster, true, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "override")

	imp, err := grid.ReadFile(cfg.Impervious.Path)
	if err != nil {
		return nil, false, err
	}
	if err := grid.CheckAligned(spec, imp); err != nil {
		return nil, false, err
	}

	reclassed, err := landuse.Reclassify(imp, landuse.ImperviousBreaks, cfg.Impervious.Prefix, reg)
	if err != nil {
		return nil, false, err
	}
	out, err := landuse.Translate(reclassed, reg, lut)
	if err != nil {
		return nil, false, err
	}
	if err := r.persistRaster(ctx, key, "override", arts.Override(), out); err != nil {
		return nil, false, err
	}
	return out, false, nil
}

// diff compares the final raster against the previous run's final
// raster and writes the change summary.
func (r *Runner) diff(ctx context.Context, cfg *config.Config, final *grid.Raster, arts Artifacts, opts Options, logger *log.Logger) (bool, error) {
	finalHash, err := cache.HashFile(arts.Final())
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeIORead, err, "pipeline: hash final raster")
	}
	prevHash, err := cache.HashFile(cfg.Inputs.Previous)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeIORead, err, "pipeline: hash previous raster %s", cfg.Inputs.Previous)
	}
	key := r.Keyer.DiffKey(finalHash, cache.DiffKeyOpts{PreviousHash: prevHash})

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			if err := os.WriteFile(arts.Diff(), data, 0644); err == nil {
				observability.Cache().OnCacheHit(ctx, "diff")
				return true, nil
			}
		}
	}
	observability.Cache().OnCacheMiss(ctx, "diff")

	prev, err := grid.ReadFile(cfg.Inputs.Previous)
	if err != nil {
		return false, err
	}
	res, err := landuse.Diff(final, prev)
	if err != nil {
		return false, err
	}
	if err := landuse.WriteDiffCSV(arts.Diff(), res); err != nil {
		return false, err
	}
	if data, err := os.ReadFile(arts.Diff()); err == nil {
		_ = r.Cache.Set(ctx, key, data, cache.DiffTTL)
		observability.Cache().OnCacheSet(ctx, "diff", len(data))
	}
	logger.Info("compared against previous raster",
		"pairs", len(res.Entries),
		"changed_km2", res.ChangedArea()/1e6)
	return false, nil
}

// restoreRaster rebuilds one raster artifact from cache, writing it to
// its artifact path so the output directory stays complete.
func (r *Runner) restoreRaster(ctx context.Context, key, path string) (*grid.Raster, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		return nil, false
	}
	raster, err := grid.Read(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, false
	}
	return raster, true
}

// persistRaster writes a raster to its artifact path and caches the
// identical bytes.
func (r *Runner) persistRaster(ctx context.Context, key, keyType, path string, raster *grid.Raster) error {
	var buf bytes.Buffer
	if err := grid.Write(&buf, raster); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "pipeline: write %s", path)
	}
	_ = r.Cache.Set(ctx, key, buf.Bytes(), cache.RasterTTL)
	observability.Cache().OnCacheSet(ctx, keyType, buf.Len())
	return nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// overridePrefix returns the registry prefix the override stage will
// register under, or empty when the stage is disabled.
func overridePrefix(cfg *config.Config, enabled bool) string {
	if !enabled {
		return ""
	}
	return cfg.Impervious.Prefix
}

// sourceHash hashes a vector source. Shapefile geometry lives in the
// .shp, attributes in the .dbf and the CRS in the .prj; all three feed
// the hash when present.
func sourceHash(path string) (string, error) {
	h, err := cache.HashFile(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeIORead, err, "pipeline: hash source %s", path)
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".dbf", ".prj"} {
		if s, err := cache.HashFile(base + ext); err == nil {
			h = cache.Hash([]byte(h + s))
		}
	}
	return h, nil
}
