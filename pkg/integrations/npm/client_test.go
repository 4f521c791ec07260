package npm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tim-sandbox/barista/pkg/cache"
	"github.com/Tim-sandbox/barista/pkg/integrations"
)

const packumentJSON = `{
  "name": "left-pad",
  "versions": {
    "1.0.0": {"license": "WTFPL"},
    "1.1.0": {"license": {"type": "MIT"}},
    "1.2.0": {"licenses": [{"type": "MIT"}, {"type": "Apache-2.0"}]}
  }
}`

func TestFetchVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/left-pad" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(packumentJSON))
	}))
	defer server.Close()

	c := NewClient(nil, server.URL+"/", time.Hour)

	tests := []struct {
		version string
		want    string
	}{
		{"1.0.0", "WTFPL"},
		{"1.1.0", "MIT"},
		{"1.2.0", "(MIT OR Apache-2.0)"},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			info, err := c.FetchVersion(context.Background(), "left-pad", tt.version)
			if err != nil {
				t.Fatalf("FetchVersion: %v", err)
			}
			if info.License != tt.want {
				t.Errorf("License = %q, want %q", info.License, tt.want)
			}
		})
	}
}

func TestFetchVersionMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/left-pad" {
			w.Write([]byte(packumentJSON))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := NewClient(nil, server.URL, time.Hour)

	if _, err := c.FetchVersion(context.Background(), "nope", "1.0.0"); !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("missing package: want ErrNotFound, got %v", err)
	}
	if _, err := c.FetchVersion(context.Background(), "left-pad", "9.9.9"); !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("missing version: want ErrNotFound, got %v", err)
	}
}

func TestFetchVersionScopedAndCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.EscapedPath() != "/@babel%2Fcore" {
			t.Errorf("path = %s", r.URL.EscapedPath())
		}
		w.Write([]byte(`{"name":"@babel/core","versions":{"7.0.0":{"license":"MIT"}}}`))
	}))
	defer server.Close()

	fc, _ := cache.NewFileCache(t.TempDir())
	c := NewClient(fc, server.URL, time.Hour)

	for i := 0; i < 2; i++ {
		info, err := c.FetchVersion(context.Background(), "@babel/core", "7.0.0")
		if err != nil {
			t.Fatalf("FetchVersion: %v", err)
		}
		if info.License != "MIT" {
			t.Errorf("License = %q", info.License)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("registry called %d times, want 1", calls.Load())
	}
}
