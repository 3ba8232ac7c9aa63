package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hydrolt/luraster/pkg/config"
)

// newCacheCmd creates the cache management command.
func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact cache",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "luraster.toml", "configuration file")

	cmd.AddCommand(cacheClearCmd(&configPath))
	cmd.AddCommand(cachePathCmd(&configPath))

	return cmd
}

// cacheClearCmd creates the "cache clear" subcommand. It only touches
// the file backend; Redis entries expire via their TTLs.
func cacheClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached stage artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			dir := cacheDir(cfg)

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				fmt.Println("Cache is empty")
				return nil
			}

			count := 0
			err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil // Skip errors, continue walking
				}
				if path == dir {
					return nil
				}
				if !info.IsDir() {
					if err := os.Remove(path); err == nil {
						count++
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			// Clean up empty subdirectories, deepest first.
			var dirs []string
			_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil || path == dir {
					return nil
				}
				if info.IsDir() {
					dirs = append(dirs, path)
				}
				return nil
			})
			for i := len(dirs) - 1; i >= 0; i-- {
				os.Remove(dirs[i])
			}

			fmt.Printf("Cleared %d cached entries\n", count)
			fmt.Printf("Directory: %s\n", dir)
			return nil
		},
	}
}

// cachePathCmd creates the "cache path" subcommand.
func cachePathCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			fmt.Println(cacheDir(cfg))
			return nil
		},
	}
}
