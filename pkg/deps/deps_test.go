package deps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/observability"
)

func TestGraphDependencies(t *testing.T) {
	g := NewGraph()
	g.Add("a", &Node{Name: "a", Version: "1.0.0", Children: []string{"c"}})
	g.Add("b", &Node{Name: "b", Version: "2.0.0", Children: []string{"c", "missing"}})
	g.Add("c", &Node{Name: "c", Version: "3.0.0", Children: []string{"a"}})
	g.Add("orphan", &Node{Name: "orphan", Version: "0.1.0"})
	g.Roots = []string{"b", "a"}

	got := g.Dependencies()
	if len(got) != 3 {
		t.Fatalf("got %d deps, want 3: %+v", len(got), got)
	}
	want := []Dependency{
		{Name: "a", Version: "1.0.0", Path: "a", Direct: true},
		{Name: "b", Version: "2.0.0", Path: "b", Direct: true},
		{Name: "c", Version: "3.0.0", Path: "a>c"},
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("dep[%d] = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestWriteReadResult(t *testing.T) {
	dir := t.TempDir()
	r := &Result{
		PackageManager: model.PackageManagerNpm,
		Manifest:       "package-lock.json",
		Dependencies: []Dependency{
			{Name: "zeta", Version: "1.0.0"},
			{Name: "alpha", Version: "2.0.0", Direct: true},
		},
	}
	if err := WriteResult(dir, r); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	// Re-invocation replaces the manifest.
	if err := WriteResult(dir, r); err != nil {
		t.Fatalf("second WriteResult: %v", err)
	}

	got, err := ReadResult(dir)
	if err != nil {
		t.Fatalf("ReadResult: %v", err)
	}
	if len(got.Dependencies) != 2 || got.Dependencies[0].Name != "alpha" {
		t.Errorf("dependencies = %+v", got.Dependencies)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, OutputDir))
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %v", entries)
	}
}

func TestEnsureCacheDirIsAdditive(t *testing.T) {
	root := t.TempDir()
	dir, err := EnsureCacheDir(root, "npm")
	if err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(dir, "keep")
	os.WriteFile(marker, []byte("x"), 0o644)

	if _, err := EnsureCacheDir(root, "npm"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("existing cache content was removed")
	}

	if dir, err := EnsureCacheDir("", "npm"); dir != "" || err != nil {
		t.Errorf("empty cacheDir: %q %v", dir, err)
	}
}

func TestFillLicenses(t *testing.T) {
	var calls atomic.Int32
	list := []Dependency{
		{Name: "a", Version: "1"},
		{Name: "a", Version: "1", Path: "b>a"},
		{Name: "b", Version: "2", License: "MIT"},
		{Name: "c", Version: "3"},
	}
	opts := Options{}.WithDefaults()
	err := FillLicenses(context.Background(), list, opts, func(_ context.Context, name, version string) (string, error) {
		calls.Add(1)
		if name == "c" {
			return "", errors.New("registry down")
		}
		return "Apache-2.0", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("lookups = %d, want 2 (deduplicated)", calls.Load())
	}
	if list[0].License != "Apache-2.0" || list[1].License != "Apache-2.0" {
		t.Errorf("a licenses = %q %q", list[0].License, list[1].License)
	}
	if list[2].License != "MIT" {
		t.Error("existing license overwritten")
	}
	if list[3].License != "" {
		t.Errorf("failed lookup should leave license empty, got %q", list[3].License)
	}
}

func TestFillLicensesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := FillLicenses(ctx, []Dependency{{Name: "a"}}, Options{}.WithDefaults(), func(ctx context.Context, _, _ string) (string, error) {
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type fetchHooks struct {
	observability.NoopScanHooks
	deps int
	err  error
}

func (h *fetchHooks) OnFetchComplete(_ context.Context, _ string, n int, _ time.Duration, err error) {
	h.deps, h.err = n, err
}

func TestInstrumented(t *testing.T) {
	hooks := &fetchHooks{}
	observability.SetScanHooks(hooks)
	defer observability.Reset()

	failing := Instrumented(model.PackageManagerPip, FetcherFunc(func(context.Context, string, Options, string) (*Result, error) {
		return &Result{}, errors.New("pip exploded")
	}))
	res, err := failing.FetchDependencies(context.Background(), t.TempDir(), Options{}, "")
	if res != nil {
		t.Error("failed fetch must not return a partial result")
	}
	if !bErrors.Is(err, bErrors.ErrCodeFetchFailed) {
		t.Errorf("err = %v, want FETCH_FAILED", err)
	}
	if hooks.err == nil {
		t.Error("hook did not see the error")
	}

	ok := Instrumented(model.PackageManagerPip, FetcherFunc(func(context.Context, string, Options, string) (*Result, error) {
		return &Result{Dependencies: make([]Dependency, 3)}, nil
	}))
	if _, err := ok.FetchDependencies(context.Background(), t.TempDir(), Options{}, ""); err != nil {
		t.Fatal(err)
	}
	if hooks.deps != 3 {
		t.Errorf("hook deps = %d", hooks.deps)
	}

	empty := Instrumented(model.PackageManagerPip, FetcherFunc(func(context.Context, string, Options, string) (*Result, error) {
		return nil, nil
	}))
	res, err = empty.FetchDependencies(context.Background(), t.TempDir(), Options{}, "")
	if res != nil || !bErrors.Is(err, bErrors.ErrCodeFetchFailed) || !errors.Is(err, ErrNoResult) {
		t.Errorf("nil result = %v, %v; want FETCH_FAILED wrapping ErrNoResult", res, err)
	}
}
