package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tim-sandbox/barista/pkg/integrations"
)

func TestClient_FetchRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flask/2.0.0/json":
			json.NewEncoder(w).Encode(apiResponse{Info: apiInfo{
				Name:        "Flask",
				Version:     "2.0.0",
				License:     "BSD-3-Clause",
				Classifiers: []string{"License :: OSI Approved :: BSD License"},
			}})
		case "/ruff/json":
			json.NewEncoder(w).Encode(apiResponse{Info: apiInfo{
				Name:              "ruff",
				Version:           "0.5.0",
				LicenseExpression: "MIT",
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewClient(nil, server.URL, time.Hour)

	info, err := c.FetchRelease(context.Background(), "Flask", "2.0.0")
	if err != nil {
		t.Fatalf("FetchRelease failed: %v", err)
	}
	if info.Name != "flask" {
		t.Errorf("Name = %s, want flask", info.Name)
	}
	if info.License != "BSD License" {
		t.Errorf("License = %q, want classifier license", info.License)
	}

	latest, err := c.FetchRelease(context.Background(), "ruff", "")
	if err != nil {
		t.Fatalf("FetchRelease latest: %v", err)
	}
	if latest.License != "MIT" || latest.Version != "0.5.0" {
		t.Errorf("latest = %+v", latest)
	}
}

func TestClient_FetchRelease_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c := NewClient(nil, server.URL, time.Hour)

	_, err := c.FetchRelease(context.Background(), "missing-pkg", "1.0")
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExtractLicenseType(t *testing.T) {
	tests := []struct {
		name        string
		license     string
		classifiers []string
		want        string
	}{
		{"classifier wins", "MIT", []string{"License :: OSI Approved :: Apache Software License"}, "Apache Software License"},
		{"short field", "MIT", nil, "MIT"},
		{"full text", "MIT License\n\nCopyright (c) ...", nil, "MIT License"},
		{"empty", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractLicenseType(tt.license, tt.classifiers); got != tt.want {
				t.Errorf("extractLicenseType() = %q, want %q", got, tt.want)
			}
		})
	}
}
