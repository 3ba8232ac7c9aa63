// Package pipeline provides the land-use raster construction pipeline.
//
// This package implements the complete rasterize → merge → translate →
// assemble chain that can be used by the CLI or embedded directly. By
// centralizing this logic, every entry point shares the same caching,
// artifact layout and stage semantics.
//
// # Architecture
//
// The pipeline consists of up to eight stages:
//
//  1. Rasterize: burn each ranked vector layer into its own raster and
//     build the category code legend
//  2. Merge: combine the layer rasters, first non-NoData in priority
//     order wins
//  3. Translate: replace category codes with target class codes via the
//     lookup table
//  4. Override: reclassify the impervious-percent raster into urban
//     classes (optional)
//  5. Assemble: combine translated and override rasters into the final
//     raster with its minimal lookup table
//  6. Diff: compare against a previous final raster (optional)
//  7. Stats: per-code and per-class area summaries (optional)
//  8. Store: persist the final lookup table (optional)
//
// Every stage is a deterministic function of its inputs; re-running a
// stage with identical inputs reproduces its artifact byte for byte,
// which is what makes artifact caching safe.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, cfg, pipeline.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Paths.Final())
package pipeline

import (
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hydrolt/luraster/pkg/config"
	"github.com/hydrolt/luraster/pkg/landuse"
)

// Stage names, in execution order.
const (
	StageRasterize = "rasterize"
	StageMerge     = "merge"
	StageTranslate = "translate"
	StageOverride  = "override"
	StageAssemble  = "assemble"
	StageDiff      = "diff"
	StageStats     = "stats"
	StageStore     = "store"
)

// Options contains the per-run knobs of the pipeline. The substantive
// configuration (grid, layers, lookup) lives in config.Config; Options
// only carries execution behavior.
type Options struct {
	// RunID identifies the run in logs, hooks and the store. Assigned
	// a fresh UUID when empty.
	RunID string `json:"run_id,omitempty"`

	// Refresh bypasses the cache and recomputes every stage.
	Refresh bool `json:"refresh,omitempty"`

	// Jobs bounds the rasterization fan-out. Defaults to GOMAXPROCS.
	Jobs int `json:"jobs,omitempty"`

	// Stage toggles. The core chain (rasterize, merge, translate,
	// assemble) cannot be disabled; the final raster is the point.
	SkipOverride bool `json:"skip_override,omitempty"`
	SkipDiff     bool `json:"skip_diff,omitempty"`
	SkipStats    bool `json:"skip_stats,omitempty"`
	SkipStore    bool `json:"skip_store,omitempty"`

	// Logger for stage progress. Defaults to the runner's logger.
	Logger *log.Logger `json:"-"`
}

// PlanStage is one entry of the resolved execution plan.
type PlanStage struct {
	Name    string
	Enabled bool
	Reason  string // why the stage is disabled, empty when enabled
}

// BuildPlan resolves which stages a run will execute, combining the
// configuration with the option toggles. The plan is advisory output
// for the operator; Execute derives the same decisions.
func BuildPlan(cfg *config.Config, opts Options) []PlanStage {
	plan := []PlanStage{
		{Name: StageRasterize, Enabled: true},
		{Name: StageMerge, Enabled: true},
		{Name: StageTranslate, Enabled: true},
	}

	switch {
	case cfg.Impervious.Path == "":
		plan = append(plan, PlanStage{Name: StageOverride, Reason: "no impervious raster configured"})
	case opts.SkipOverride:
		plan = append(plan, PlanStage{Name: StageOverride, Reason: "disabled by flag"})
	default:
		plan = append(plan, PlanStage{Name: StageOverride, Enabled: true})
	}

	plan = append(plan, PlanStage{Name: StageAssemble, Enabled: true})

	switch {
	case cfg.Inputs.Previous == "":
		plan = append(plan, PlanStage{Name: StageDiff, Reason: "no previous raster configured"})
	case opts.SkipDiff:
		plan = append(plan, PlanStage{Name: StageDiff, Reason: "disabled by flag"})
	default:
		plan = append(plan, PlanStage{Name: StageDiff, Enabled: true})
	}

	if opts.SkipStats {
		plan = append(plan, PlanStage{Name: StageStats, Reason: "disabled by flag"})
	} else {
		plan = append(plan, PlanStage{Name: StageStats, Enabled: true})
	}

	switch {
	case !cfg.Store.Enabled:
		plan = append(plan, PlanStage{Name: StageStore, Reason: "store not configured"})
	case opts.SkipStore:
		plan = append(plan, PlanStage{Name: StageStore, Reason: "disabled by flag"})
	default:
		plan = append(plan, PlanStage{Name: StageStore, Enabled: true})
	}

	return plan
}

// Enabled reports whether a named stage is enabled in the plan.
func Enabled(plan []PlanStage, name string) bool {
	for _, s := range plan {
		if s.Name == name {
			return s.Enabled
		}
	}
	return false
}

// StageNames returns the names of the enabled stages in order.
func StageNames(plan []PlanStage) []string {
	var names []string
	for _, s := range plan {
		if s.Enabled {
			names = append(names, s.Name)
		}
	}
	return names
}

// Artifacts maps stage outputs to their paths under the output
// directory. All stages address their inputs and outputs through this
// layout, so a run is fully described by its directory.
type Artifacts struct {
	Dir string
}

// Layer returns the raster path of one rasterized layer.
func (a Artifacts) Layer(name string) string {
	return filepath.Join(a.Dir, "layers", name+".lur")
}

// Legend returns the code legend path.
func (a Artifacts) Legend() string { return filepath.Join(a.Dir, "legend.csv") }

// Merged returns the merged raster path.
func (a Artifacts) Merged() string { return filepath.Join(a.Dir, "merged.lur") }

// Translated returns the translated raster path.
func (a Artifacts) Translated() string { return filepath.Join(a.Dir, "translated.lur") }

// Override returns the translated override raster path.
func (a Artifacts) Override() string { return filepath.Join(a.Dir, "override.lur") }

// Final returns the final raster path.
func (a Artifacts) Final() string { return filepath.Join(a.Dir, "final.lur") }

// FinalLookup returns the emitted lookup table path.
func (a Artifacts) FinalLookup() string { return filepath.Join(a.Dir, "final_lookup.csv") }

// Diff returns the change summary path.
func (a Artifacts) Diff() string { return filepath.Join(a.Dir, "diff.csv") }

// CodeStats returns the per-code area summary path.
func (a Artifacts) CodeStats() string { return filepath.Join(a.Dir, "stats_codes.csv") }

// ClassStats returns the per-class area summary path.
func (a Artifacts) ClassStats() string { return filepath.Join(a.Dir, "stats_classes.csv") }

// Result contains the outputs of a pipeline run.
type Result struct {
	// RunID is the identity of this run.
	RunID string

	// Plan is the resolved stage execution plan.
	Plan []PlanStage

	// Paths locates the written artifacts.
	Paths Artifacts

	// LookupRows is the emitted lookup table of the final raster.
	LookupRows []landuse.LookupRow

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks which stages hit the cache.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Layers int
	Codes  int
	Cells  int

	RasterizeTime time.Duration
	MergeTime     time.Duration
	TranslateTime time.Duration
	OverrideTime  time.Duration
	AssembleTime  time.Duration
	DiffTime      time.Duration
	StatsTime     time.Duration
}

// CacheInfo tracks cache hits for the cached stages.
type CacheInfo struct {
	RasterizeHit bool // legend and all layer rasters came from cache
	MergeHit     bool
	TranslateHit bool
	OverrideHit  bool
	DiffHit      bool
}
