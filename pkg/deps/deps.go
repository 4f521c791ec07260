// Package deps defines the dependency fetcher contract shared by every
// package manager integration.
//
// A [Fetcher] inspects a checked-out repository, produces the resolved
// dependency list and writes it to <workDir>/.barista/dependencies.json.
// Behaviour is selected purely from files in workDir and the explicit
// [Options]; fetchers never read global configuration.
//
// Every failure is returned as a FETCH_FAILED error. A fetcher either
// returns a complete [Result] or an error, never both.
package deps

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Tim-sandbox/barista/pkg/cache"
	"github.com/Tim-sandbox/barista/pkg/command"
	"github.com/Tim-sandbox/barista/pkg/model"
)

const (
	DefaultCacheTTL    = 24 * time.Hour // registry response cache duration
	DefaultConcurrency = 8              // parallel registry lookups per scan
)

// Fetcher resolves the dependencies of one checked-out repository.
type Fetcher interface {
	// FetchDependencies resolves dependencies under workDir. Toolchain
	// output is written below logDir.
	FetchDependencies(ctx context.Context, workDir string, opts Options, logDir string) (*Result, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, workDir string, opts Options, logDir string) (*Result, error)

func (f FetcherFunc) FetchDependencies(ctx context.Context, workDir string, opts Options, logDir string) (*Result, error) {
	return f(ctx, workDir, opts, logDir)
}

// Options is the explicit configuration of one fetch.
type Options struct {
	CacheDir        string        // shared package cache root; subdirectories are only ever created
	NpmRegistry     string        // npm registry base URL
	PypiRegistry    string        // PyPI JSON API base URL
	MavenRepository string        // Maven repository base URL
	HTTPCache       cache.Cache   // registry response cache (nil disables)
	CacheTTL        time.Duration // registry response cache duration (default: 24h)
	Concurrency     int           // parallel registry lookups (default: 8)
	Executor        command.Executor
	Logger          *log.Logger
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Executor == nil {
		opts.Executor = command.OS{}
	}
	if opts.HTTPCache == nil {
		opts.HTTPCache = cache.NewNullCache()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}

// Dependency is one resolved package.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	License string `json:"license,omitempty"`
	Path    string `json:"path"` // dependency chain from a direct dependency, joined by PathSeparator
	Direct  bool   `json:"direct"`
}

// PathSeparator joins the segments of a dependency chain.
const PathSeparator = ">"

// DisplayIdentifier returns "name@version".
func (d Dependency) DisplayIdentifier() string {
	if d.Version == "" {
		return d.Name
	}
	return d.Name + "@" + d.Version
}

// Result is the output of a successful fetch.
type Result struct {
	PackageManager model.PackageManager `json:"packageManager"`
	Manifest       string               `json:"manifest"` // file the dependencies were read from, relative to workDir
	Dependencies   []Dependency         `json:"dependencies"`
	FetchedAt      time.Time            `json:"fetchedAt"`
}
