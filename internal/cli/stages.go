package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hydrolt/luraster/pkg/config"
	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/grid"
	"github.com/hydrolt/luraster/pkg/landuse"
	"github.com/hydrolt/luraster/pkg/pipeline"
	"github.com/hydrolt/luraster/pkg/vector"
)

// The stage commands re-run one pipeline stage against the artifacts of
// a previous run. They read their inputs from and write their outputs
// to the configured output directory, so any stage can be repeated in
// isolation; identical inputs reproduce identical artifacts.

// loadArtifacts loads a configuration and resolves its artifact layout.
func loadArtifacts(path string) (*config.Config, pipeline.Artifacts, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, pipeline.Artifacts{}, err
	}
	return cfg, pipeline.Artifacts{Dir: cfg.OutputDir}, nil
}

// stageCmd builds a single-stage command with the shared --config flag.
func stageCmd(use, short string, run func(ctx context.Context, cfg *config.Config, arts pipeline.Artifacts) error) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, arts, err := loadArtifacts(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, arts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "luraster.toml", "configuration file")
	return cmd
}

func newRasterizeCmd() *cobra.Command {
	return stageCmd("rasterize", "Rasterize the configured vector layers", func(ctx context.Context, cfg *config.Config, arts pipeline.Artifacts) error {
		logger := loggerFromContext(ctx)

		spec := cfg.Grid.Spec()
		if err := spec.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "grid")
		}
		if err := os.MkdirAll(filepath.Join(cfg.OutputDir, "layers"), 0755); err != nil {
			return errors.Wrap(errors.ErrCodeIOWrite, err, "create output dir %s", cfg.OutputDir)
		}

		layers := make([]*vector.Layer, len(cfg.Layers))
		for i, lc := range cfg.Layers {
			prog := newProgress(logger)
			layer, err := vector.LoadShapefile(lc.Name, lc.Path, vector.ShapefileOptions{
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
			prog.done(fmt.Sprintf("Loaded %d features from layer %s", layer.Len(), lc.Name))
		}

		// Codes are registered in declared layer order, followed by the
		// override bins, matching the full pipeline's legend.
		reg := landuse.NewRegistry()
		for i, lc := range cfg.Layers {
			for _, v := range layers[i].Values() {
				if _, err := reg.Register(lc.Prefix, v); err != nil {
					return err
				}
			}
		}
		if cfg.Impervious.Path != "" {
			for _, b := range landuse.ImperviousBreaks {
				if _, err := reg.Register(cfg.Impervious.Prefix, b.Value); err != nil {
					return err
				}
			}
		}

		for i, lc := range cfg.Layers {
			prog := newProgress(logger)
			rz := &landuse.Rasterizer{Spec: spec, Registry: reg}
			raster, err := rz.Rasterize(layers[i], lc.Prefix)
			if err != nil {
				return err
			}
			if err := grid.WriteFile(arts.Layer(lc.Name), raster); err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Rasterized layer %s", lc.Name))
		}

		if err := landuse.WriteLegendCSV(arts.Legend(), reg); err != nil {
			return err
		}
		logger.Info("wrote legend", "codes", reg.Len(), "path", arts.Legend())
		return nil
	})
}

func newMergeCmd() *cobra.Command {
	return stageCmd("merge", "Merge the layer rasters by priority", func(ctx context.Context, cfg *config.Config, arts pipeline.Artifacts) error {
		logger := loggerFromContext(ctx)
		prog := newProgress(logger)

		ranked := make([]landuse.Ranked, len(cfg.Layers))
		for i, lc := range cfg.Layers {
			raster, err := grid.ReadFile(arts.Layer(lc.Name))
			if err != nil {
				return err
			}
			ranked[i] = landuse.Ranked{Name: lc.Name, Rank: lc.Rank, Raster: raster}
		}

		merged, err := landuse.Merge(ranked)
		if err != nil {
			return err
		}
		if err := grid.WriteFile(arts.Merged(), merged); err != nil {
			return err
		}
		prog.done(fmt.Sprintf("Merged %d layers into %s", len(ranked), arts.Merged()))
		return nil
	})
}

func newTranslateCmd() *cobra.Command {
	return stageCmd("translate", "Translate category codes into the target classification", func(ctx context.Context, cfg *config.Config, arts pipeline.Artifacts) error {
		logger := loggerFromContext(ctx)
		prog := newProgress(logger)

		merged, err := grid.ReadFile(arts.Merged())
		if err != nil {
			return err
		}
		reg, err := landuse.ReadLegendCSV(arts.Legend())
		if err != nil {
			return err
		}
		lut, err := landuse.ReadLookupCSV(cfg.Inputs.Lookup)
		if err != nil {
			return err
		}

		out, err := landuse.Translate(merged, reg, lut)
		if err != nil {
			return err
		}
		if err := grid.WriteFile(arts.Translated(), out); err != nil {
			return err
		}
		prog.done(fmt.Sprintf("Translated %d codes into %s", len(merged.DistinctCodes()), arts.Translated()))
		return nil
	})
}

func newImpervCmd() *cobra.Command {
	return stageCmd("imperv", "Reclassify the impervious raster into the urban override", func(ctx context.Context, cfg *config.Config, arts pipeline.Artifacts) error {
		logger := loggerFromContext(ctx)
		prog := newProgress(logger)

		if cfg.Impervious.Path == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "no impervious raster configured")
		}

		spec := cfg.Grid.Spec()
		imp, err := grid.ReadFile(cfg.Impervious.Path)
		if err != nil {
			return err
		}
		if err := grid.CheckAligned(spec, imp); err != nil {
			return err
		}
		reg, err := landuse.ReadLegendCSV(arts.Legend())
		if err != nil {
			return err
		}
		lut, err := landuse.ReadLookupCSV(cfg.Inputs.Lookup)
		if err != nil {
			return err
		}

		reclassed, err := landuse.Reclassify(imp, landuse.ImperviousBreaks, cfg.Impervious.Prefix, reg)
		if err != nil {
			return err
		}
		out, err := landuse.Translate(reclassed, reg, lut)
		if err != nil {
			return err
		}
		if err := grid.WriteFile(arts.Override(), out); err != nil {
			return err
		}
		// Reclassification may have extended the legend.
		if err := landuse.WriteLegendCSV(arts.Legend(), reg); err != nil {
			return err
		}
		prog.done(fmt.Sprintf("Reclassified impervious raster into %s", arts.Override()))
		return nil
	})
}

func newAssembleCmd() *cobra.Command {
	return stageCmd("assemble", "Assemble the final raster and its lookup table", func(ctx context.Context, cfg *config.Config, arts pipeline.Artifacts) error {
		logger := loggerFromContext(ctx)
		prog := newProgress(logger)

		translated, err := grid.ReadFile(arts.Translated())
		if err != nil {
			return err
		}
		lut, err := landuse.ReadLookupCSV(cfg.Inputs.Lookup)
		if err != nil {
			return err
		}

		var override *grid.Raster
		if _, err := os.Stat(arts.Override()); err == nil {
			if override, err = grid.ReadFile(arts.Override()); err != nil {
				return err
			}
		}

		final, rows, err := landuse.Assemble(translated, override, lut, landuse.AssembleOptions{
			OverrideFirst: cfg.Impervious.OverrideFirst,
		})
		if err != nil {
			return err
		}
		if err := grid.WriteFile(arts.Final(), final); err != nil {
			return err
		}
		if err := landuse.WriteFinalLookupCSV(arts.FinalLookup(), rows); err != nil {
			return err
		}
		prog.done(fmt.Sprintf("Assembled final raster with %d classes at %s", len(rows), arts.Final()))
		return nil
	})
}

func newDiffCmd() *cobra.Command {
	return stageCmd("diff", "Compare the final raster against a previous version", func(ctx context.Context, cfg *config.Config, arts pipeline.Artifacts) error {
		logger := loggerFromContext(ctx)

		if cfg.Inputs.Previous == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "no previous raster configured")
		}

		final, err := grid.ReadFile(arts.Final())
		if err != nil {
			return err
		}
		prev, err := grid.ReadFile(cfg.Inputs.Previous)
		if err != nil {
			return err
		}

		res, err := landuse.Diff(final, prev)
		if err != nil {
			return err
		}
		if err := landuse.WriteDiffCSV(arts.Diff(), res); err != nil {
			return err
		}
		logger.Info("compared against previous raster",
			"pairs", len(res.Entries),
			"changed_km2", res.ChangedArea()/1e6,
			"path", arts.Diff())
		return nil
	})
}

func newStatsCmd() *cobra.Command {
	return stageCmd("stats", "Summarize areas per code and target class", func(ctx context.Context, cfg *config.Config, arts pipeline.Artifacts) error {
		logger := loggerFromContext(ctx)

		merged, err := grid.ReadFile(arts.Merged())
		if err != nil {
			return err
		}
		reg, err := landuse.ReadLegendCSV(arts.Legend())
		if err != nil {
			return err
		}
		lut, err := landuse.ReadLookupCSV(cfg.Inputs.Lookup)
		if err != nil {
			return err
		}

		codeStats, classStats, err := landuse.AreaStats(merged, reg, lut)
		if err != nil {
			return err
		}
		if err := landuse.WriteCodeStatsCSV(arts.CodeStats(), codeStats); err != nil {
			return err
		}
		if err := landuse.WriteClassStatsCSV(arts.ClassStats(), classStats); err != nil {
			return err
		}
		logger.Info("wrote area statistics", "codes", len(codeStats), "classes", len(classStats))
		return nil
	})
}
