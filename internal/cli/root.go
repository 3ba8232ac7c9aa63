package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hydrolt/luraster/pkg/buildinfo"
)

// Execute runs the luraster CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// The function sets up the root command with all subcommands, configures
// logging based on the --verbose flag, and executes the command tree.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "luraster",
		Short:        "luraster builds land-use rasters from ranked vector layers",
		Long:         `luraster rasterizes ranked vector land-use layers onto a shared grid, merges them by priority, translates category codes into a target classification and assembles the final model-ready raster with its lookup table.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newRasterizeCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newTranslateCmd())
	root.AddCommand(newImpervCmd())
	root.AddCommand(newAssembleCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}
