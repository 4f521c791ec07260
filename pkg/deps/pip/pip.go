// Package pip resolves dependencies of Python projects.
//
// Sources, in order: poetry.lock, Pipfile.lock, requirements.txt (and the
// files it includes with -r). A Poetry project without a lock file gets
// one generated by the poetry toolchain. Development groups are excluded.
package pip

import (
	"context"
	"time"

	"github.com/Tim-sandbox/barista/pkg/command"
	"github.com/Tim-sandbox/barista/pkg/deps"
	"github.com/Tim-sandbox/barista/pkg/integrations"
	"github.com/Tim-sandbox/barista/pkg/integrations/pypi"
	"github.com/Tim-sandbox/barista/pkg/model"
)

const cacheSubdir = "pip"

// Fetcher implements deps.Fetcher for Python projects.
type Fetcher struct{}

// New returns the pip fetcher.
func New() *Fetcher { return &Fetcher{} }

type source struct {
	file  string
	parse func(workDir string) (*deps.Graph, error)
}

var sources = []source{
	{"poetry.lock", parsePoetryLock},
	{"Pipfile.lock", parsePipfileLock},
	{"requirements.txt", parseRequirements},
}

// FetchDependencies implements deps.Fetcher.
func (f *Fetcher) FetchDependencies(ctx context.Context, workDir string, opts deps.Options, logDir string) (*deps.Result, error) {
	opts = opts.WithDefaults()

	src, ok := findSource(workDir)
	if !ok {
		if !isPoetryProject(workDir) {
			return nil, deps.Failed(nil, "no poetry.lock, Pipfile.lock or requirements.txt in repository")
		}
		if err := generateLock(ctx, workDir, opts, logDir); err != nil {
			return nil, err
		}
		if src, ok = findSource(workDir); !ok {
			return nil, deps.Failed(nil, "poetry did not produce poetry.lock")
		}
	}

	opts.Logger.Debug("parsing dependency file", "file", src.file)
	g, err := src.parse(workDir)
	if err != nil {
		return nil, deps.Failed(err, "parse %s", src.file)
	}
	list := g.Dependencies()

	registry := pypi.NewClient(opts.HTTPCache, opts.PypiRegistry, opts.CacheTTL)
	err = deps.FillLicenses(ctx, list, opts, func(ctx context.Context, name, version string) (string, error) {
		info, err := registry.FetchRelease(ctx, name, version)
		if err != nil {
			return "", err
		}
		return info.License, nil
	})
	if err != nil {
		return nil, deps.Failed(err, "license lookup")
	}

	res := &deps.Result{
		PackageManager: model.PackageManagerPip,
		Manifest:       src.file,
		Dependencies:   list,
		FetchedAt:      time.Now().UTC(),
	}
	if err := deps.WriteResult(workDir, res); err != nil {
		return nil, deps.Failed(err, "write dependency manifest")
	}
	return res, nil
}

func findSource(workDir string) (source, bool) {
	for _, s := range sources {
		if deps.Exists(workDir, s.file) {
			return s, true
		}
	}
	return source{}, false
}

func generateLock(ctx context.Context, workDir string, opts deps.Options, logDir string) error {
	logFile, err := deps.OpenLog(logDir)
	if err != nil {
		return deps.Failed(err, "open fetch log")
	}
	defer logFile.Close()

	var env []string
	cacheDir, err := deps.EnsureCacheDir(opts.CacheDir, cacheSubdir)
	if err != nil {
		return err
	}
	if cacheDir != "" {
		env = append(env, "POETRY_CACHE_DIR="+cacheDir, "PIP_CACHE_DIR="+cacheDir)
	}

	opts.Logger.Info("generating poetry.lock", "dir", workDir)
	_, err = opts.Executor.Run(ctx, command.Spec{
		Name: "poetry",
		Args: []string{"lock", "--no-interaction"},
		Dir:  workDir,
		Env:  env,
		Log:  logFile,
	})
	if err != nil {
		return deps.Failed(err, "poetry lock")
	}
	return nil
}

func normalize(name string) string {
	return integrations.CanonicalName(name)
}
