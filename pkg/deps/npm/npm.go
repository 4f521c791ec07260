// Package npm resolves dependencies of JavaScript projects.
//
// Lock files are read in this order: package-lock.json (or
// npm-shrinkwrap.json), yarn.lock, pnpm-lock.yaml. A project with only a
// package.json gets a lock file generated by the npm toolchain first.
// Only production dependencies are reported.
package npm

import (
	"context"
	"path/filepath"
	"time"

	"github.com/Tim-sandbox/barista/pkg/command"
	"github.com/Tim-sandbox/barista/pkg/deps"
	npmregistry "github.com/Tim-sandbox/barista/pkg/integrations/npm"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// cacheSubdir is the npm cache location below the shared cache root.
const cacheSubdir = ".npm"

// Fetcher implements deps.Fetcher for npm projects.
type Fetcher struct{}

// New returns the npm fetcher.
func New() *Fetcher { return &Fetcher{} }

type lockParser struct {
	file  string
	parse func(workDir string) (*deps.Graph, error)
}

var lockParsers = []lockParser{
	{"npm-shrinkwrap.json", func(dir string) (*deps.Graph, error) {
		return parsePackageLock(filepath.Join(dir, "npm-shrinkwrap.json"), dir)
	}},
	{"package-lock.json", func(dir string) (*deps.Graph, error) {
		return parsePackageLock(filepath.Join(dir, "package-lock.json"), dir)
	}},
	{"yarn.lock", func(dir string) (*deps.Graph, error) {
		return parseYarnLock(filepath.Join(dir, "yarn.lock"), dir)
	}},
	{"pnpm-lock.yaml", func(dir string) (*deps.Graph, error) {
		return parsePnpmLock(filepath.Join(dir, "pnpm-lock.yaml"))
	}},
}

// FetchDependencies implements deps.Fetcher.
func (f *Fetcher) FetchDependencies(ctx context.Context, workDir string, opts deps.Options, logDir string) (*deps.Result, error) {
	opts = opts.WithDefaults()

	parser, ok := findLock(workDir)
	if !ok {
		if !deps.Exists(workDir, "package.json") {
			return nil, deps.Failed(nil, "no package.json in repository")
		}
		if err := generateLock(ctx, workDir, opts, logDir); err != nil {
			return nil, err
		}
		if parser, ok = findLock(workDir); !ok {
			return nil, deps.Failed(nil, "npm did not produce package-lock.json")
		}
	}

	opts.Logger.Debug("parsing lock file", "file", parser.file)
	g, err := parser.parse(workDir)
	if err != nil {
		return nil, deps.Failed(err, "parse %s", parser.file)
	}
	list := g.Dependencies()

	registry := npmregistry.NewClient(opts.HTTPCache, opts.NpmRegistry, opts.CacheTTL)
	err = deps.FillLicenses(ctx, list, opts, func(ctx context.Context, name, version string) (string, error) {
		info, err := registry.FetchVersion(ctx, name, version)
		if err != nil {
			return "", err
		}
		return info.License, nil
	})
	if err != nil {
		return nil, deps.Failed(err, "license lookup")
	}

	res := &deps.Result{
		PackageManager: model.PackageManagerNpm,
		Manifest:       parser.file,
		Dependencies:   list,
		FetchedAt:      time.Now().UTC(),
	}
	if err := deps.WriteResult(workDir, res); err != nil {
		return nil, deps.Failed(err, "write dependency manifest")
	}
	return res, nil
}

func findLock(workDir string) (lockParser, bool) {
	for _, p := range lockParsers {
		if deps.Exists(workDir, p.file) {
			return p, true
		}
	}
	return lockParser{}, false
}

// generateLock runs npm to resolve package.json into package-lock.json
// without executing lifecycle scripts.
func generateLock(ctx context.Context, workDir string, opts deps.Options, logDir string) error {
	logFile, err := deps.OpenLog(logDir)
	if err != nil {
		return deps.Failed(err, "open fetch log")
	}
	defer logFile.Close()

	args := []string{"install", "--package-lock-only", "--ignore-scripts", "--omit=dev", "--no-audit", "--no-fund"}
	if opts.NpmRegistry != "" {
		args = append(args, "--registry", opts.NpmRegistry)
	}
	cacheDir, err := deps.EnsureCacheDir(opts.CacheDir, cacheSubdir)
	if err != nil {
		return err
	}
	if cacheDir != "" {
		args = append(args, "--cache", cacheDir)
	}

	opts.Logger.Info("generating package-lock.json", "dir", workDir)
	_, err = opts.Executor.Run(ctx, command.Spec{
		Name: "npm",
		Args: args,
		Dir:  workDir,
		Env:  []string{"NODE_ENV=production"},
		Log:  logFile,
	})
	if err != nil {
		return deps.Failed(err, "npm install")
	}
	return nil
}
