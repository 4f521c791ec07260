package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tim-sandbox/barista/pkg/cache"
	"github.com/Tim-sandbox/barista/pkg/config"
)

// Key patterns of the Redis backend, matching cache.DefaultKeyer.
var redisKeyPatterns = []string{"http:*", "summary:*"}

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry response and summary cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			var count int
			switch cfg.Cache.Backend {
			case config.CacheNone:
				printInfo("Cache is disabled")
				return nil
			case config.CacheRedis:
				rc, err := cache.NewRedisCache(cmd.Context(), cfg.Cache.RedisAddr)
				if err != nil {
					return fmt.Errorf("connect redis cache: %w", err)
				}
				defer rc.Close()
				if count, err = rc.Clear(cmd.Context(), redisKeyPatterns...); err != nil {
					return err
				}
			default:
				fc, err := cache.NewFileCache(cfg.Cache.Dir)
				if err != nil {
					return err
				}
				if count, err = fc.Clear(); err != nil {
					return err
				}
			}

			if count == 0 {
				printInfo("Cache is empty")
				return nil
			}
			printSuccess("Cleared %d cached entries", count)
			printDetail("Backend: %s", cfg.Cache.Backend)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	var packages bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if packages {
				fmt.Println(cfg.Scan.CacheDir)
				return nil
			}
			fmt.Println(cfg.Cache.Dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&packages, "packages", false, "print the package manager cache used by scans instead")
	return cmd
}
