package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hydrolt/luraster/pkg/cache"
	"github.com/hydrolt/luraster/pkg/config"
	"github.com/hydrolt/luraster/pkg/pipeline"
	"github.com/hydrolt/luraster/pkg/store"
)

// runOpts holds the command-line flags for the run command.
type runOpts struct {
	configPath   string
	refresh      bool
	jobs         int
	skipOverride bool
	skipDiff     bool
	skipStats    bool
	skipStore    bool
}

// newRunCmd creates the run command executing the full pipeline.
func newRunCmd() *cobra.Command {
	var opts runOpts

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline for a configuration",
		Long: `Run the full pipeline: rasterize every configured layer, merge by
priority, translate to the target classification and assemble the final
raster. Optional stages (override, diff, stats, store) follow the
configuration and can be disabled individually.

Examples:
  luraster run -c nemunas.toml
  luraster run -c nemunas.toml --refresh --skip-store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "luraster.toml", "configuration file")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass the artifact cache")
	cmd.Flags().IntVar(&opts.jobs, "jobs", 0, "rasterization parallelism (0 = all CPUs)")
	cmd.Flags().BoolVar(&opts.skipOverride, "skip-override", false, "skip the impervious override stage")
	cmd.Flags().BoolVar(&opts.skipDiff, "skip-diff", false, "skip the change analysis stage")
	cmd.Flags().BoolVar(&opts.skipStats, "skip-stats", false, "skip the area statistics stage")
	cmd.Flags().BoolVar(&opts.skipStore, "skip-store", false, "skip lookup persistence")

	return cmd
}

func runPipeline(ctx context.Context, opts runOpts) error {
	logger := loggerFromContext(ctx)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	c, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(c, nil, logger)
	defer runner.Close()

	if cfg.Store.Enabled && !opts.skipStore {
		st, err := store.NewMongoStore(ctx, store.Config{
			URI:        cfg.Store.URI,
			Database:   cfg.Store.Database,
			Collection: cfg.Store.Collection,
		})
		if err != nil {
			return err
		}
		defer st.Close(ctx)
		runner.Store = st
	}

	prog := newProgress(logger)
	result, err := runner.Execute(ctx, cfg, pipeline.Options{
		Refresh:      opts.refresh,
		Jobs:         opts.jobs,
		SkipOverride: opts.skipOverride,
		SkipDiff:     opts.skipDiff,
		SkipStats:    opts.skipStats,
		SkipStore:    opts.skipStore,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Run %s finished, final raster at %s", result.RunID, result.Paths.Final()))
	return nil
}

// newPlanCmd creates the plan command printing the resolved stage plan.
func newPlanCmd() *cobra.Command {
	var configPath string
	var opts runOpts

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the stage execution plan for a configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			plan := pipeline.BuildPlan(cfg, pipeline.Options{
				SkipOverride: opts.skipOverride,
				SkipDiff:     opts.skipDiff,
				SkipStats:    opts.skipStats,
				SkipStore:    opts.skipStore,
			})
			for _, s := range plan {
				if s.Enabled {
					fmt.Printf("  %-10s enabled\n", s.Name)
				} else {
					fmt.Printf("  %-10s skipped (%s)\n", s.Name, s.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "luraster.toml", "configuration file")
	cmd.Flags().BoolVar(&opts.skipOverride, "skip-override", false, "skip the impervious override stage")
	cmd.Flags().BoolVar(&opts.skipDiff, "skip-diff", false, "skip the change analysis stage")
	cmd.Flags().BoolVar(&opts.skipStats, "skip-stats", false, "skip the area statistics stage")
	cmd.Flags().BoolVar(&opts.skipStore, "skip-store", false, "skip lookup persistence")

	return cmd
}

// openCache builds the configured cache backend.
func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "none":
		return cache.NewNullCache(), nil
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
	default:
		return cache.NewFileCache(cacheDir(cfg))
	}
}

// cacheDir resolves the file cache directory.
func cacheDir(cfg *config.Config) string {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir
	}
	return ".luraster-cache"
}
