package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/Tim-sandbox/barista/pkg/aggregate"
	"github.com/Tim-sandbox/barista/pkg/cache"
	"github.com/Tim-sandbox/barista/pkg/config"
	"github.com/Tim-sandbox/barista/pkg/deps"
	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/integrations/osv"
	"github.com/Tim-sandbox/barista/pkg/license"
	"github.com/Tim-sandbox/barista/pkg/repo"
	"github.com/Tim-sandbox/barista/pkg/scan"
	"github.com/Tim-sandbox/barista/pkg/scanlog"
	"github.com/Tim-sandbox/barista/pkg/stats"
	"github.com/Tim-sandbox/barista/pkg/store"
	"github.com/Tim-sandbox/barista/pkg/vuln"
)

// Cache kinds reported to the cache hooks.
const (
	cacheKindHTTP    = "http"
	cacheKindSummary = "summary"
)

// app is the set of components a command works with, built from one
// configuration.
type app struct {
	cfg    config.Config
	store  *store.Store
	cache  cache.Cache
	logs   scanlog.Store
	repo   *repo.Git
	runner *scan.Runner
	agg    *aggregate.Aggregator
	stats  *stats.Engine
}

// loadConfig reads the configuration selected by --config.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	c.Logger.Debug("config loaded", "database", cfg.Database.Path, "cache", cfg.Cache.Backend, "scanlog", cfg.ScanLog.Backend)
	return cfg, nil
}

// open loads the configuration and wires every component. The caller must
// Close the result.
func (c *CLI) open(ctx context.Context) (*app, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return openApp(ctx, cfg, c.Logger)
}

func openApp(ctx context.Context, cfg config.Config, logger *log.Logger) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if a.store, err = store.Open(cfg.Database.Path); err != nil {
		return a, err
	}
	if a.cache, err = newCache(ctx, cfg.Cache); err != nil {
		return a, err
	}
	if a.logs, err = scanlog.Open(ctx, cfg.ScanLog, a.store); err != nil {
		return a, err
	}
	policy, err := license.New(cfg.Licenses)
	if err != nil {
		return a, fmt.Errorf("license policy: %w", err)
	}

	httpCache := cache.Instrumented(a.cache, cacheKindHTTP)
	var advisories vuln.Source = vuln.None{}
	if !cfg.Scan.SkipAdvisories {
		advisories = vuln.NewOSV(osv.NewClient(httpCache, cfg.Scan.OSVURL, cfg.Cache.TTL.Std()))
	}

	a.repo = repo.NewGit(nil, repo.FromConfig(cfg.Credentials), logger)
	a.runner = scan.New(a.store, scan.Options{
		WorkDir:       cfg.Scan.WorkDir,
		Timeout:       cfg.Scan.Timeout.Std(),
		MaxConcurrent: cfg.Scan.MaxConcurrent,
		KeepWorkDir:   cfg.Scan.KeepWorkDir,
		Repo:          a.repo,
		Policy:        policy,
		Vulns:         advisories,
		Logs:          a.logs,
		Fetch: deps.Options{
			CacheDir:        cfg.Scan.CacheDir,
			NpmRegistry:     cfg.Scan.NpmRegistry,
			PypiRegistry:    cfg.Scan.PypiRegistry,
			MavenRepository: cfg.Scan.MavenRepository,
			HTTPCache:       httpCache,
			CacheTTL:        cfg.Cache.TTL.Std(),
		},
		Logger: logger,
	})
	a.agg = aggregate.New(a.store, cache.Instrumented(a.cache, cacheKindSummary), cache.NewDefaultKeyer(), logger)
	a.stats = stats.New(a.store, a.agg)
	return a, nil
}

// newCache builds the backend selected by cfg.
func newCache(ctx context.Context, cfg config.Cache) (cache.Cache, error) {
	switch cfg.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), nil
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return rc, nil
	default:
		fc, err := cache.NewFileCache(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return fc, nil
	}
}

// Close stops running scans and releases every backend.
func (a *app) Close() error {
	var errs []error
	if a.runner != nil {
		errs = append(errs, a.runner.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// parseProjectID parses a project id argument.
func parseProjectID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, bErrors.New(bErrors.ErrCodeInvalidInput, "invalid project id %q", s)
	}
	return id, nil
}
