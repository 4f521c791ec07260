// Package fetchers is the closed registry of dependency fetchers, keyed by
// package-manager code. Supporting a new ecosystem is one entry in All.
package fetchers

import (
	"slices"

	"github.com/Tim-sandbox/barista/pkg/deps"
	"github.com/Tim-sandbox/barista/pkg/deps/maven"
	"github.com/Tim-sandbox/barista/pkg/deps/npm"
	"github.com/Tim-sandbox/barista/pkg/deps/pip"
	"github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// All maps each supported package manager to its fetcher. Built once at
// process start and never mutated.
var All = map[model.PackageManager]deps.Fetcher{
	model.PackageManagerNpm:   deps.Instrumented(model.PackageManagerNpm, npm.New()),
	model.PackageManagerPip:   deps.Instrumented(model.PackageManagerPip, pip.New()),
	model.PackageManagerMaven: deps.Instrumented(model.PackageManagerMaven, maven.New()),
}

// Find returns the fetcher for code, or an UNSUPPORTED error.
func Find(code model.PackageManager) (deps.Fetcher, error) {
	if f, ok := All[code]; ok {
		return f, nil
	}
	return nil, errors.New(errors.ErrCodeUnsupported, "unsupported package manager %q", code)
}

// Supported returns the registered package-manager codes in sorted order.
func Supported() []model.PackageManager {
	out := make([]model.PackageManager, 0, len(All))
	for pm := range All {
		out = append(out, pm)
	}
	slices.Sort(out)
	return out
}
