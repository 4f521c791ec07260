// Package pypi looks up release metadata in the PyPI JSON API.
package pypi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Tim-sandbox/barista/pkg/cache"
	"github.com/Tim-sandbox/barista/pkg/integrations"
)

// DefaultBaseURL is the public PyPI JSON API.
const DefaultBaseURL = "https://pypi.org/pypi"

// ReleaseInfo holds metadata for one release of a Python package.
//
// Package names are normalized following PEP 503 (lowercase, underscores→hyphens).
type ReleaseInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	License string `json:"license"`
	Summary string `json:"summary"`
}

// Client provides access to the PyPI JSON API.
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a PyPI client for baseURL (DefaultBaseURL when empty).
func NewClient(backend cache.Cache, baseURL string, cacheTTL time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(backend, "pypi", cacheTTL, nil),
		baseURL: integrations.BaseURL(baseURL),
	}
}

// FetchRelease retrieves metadata for pkg at version. An empty version
// fetches the latest release.
//
// Returns [integrations.ErrNotFound] if the package or release doesn't
// exist and [integrations.ErrNetwork] for HTTP failures.
func (c *Client) FetchRelease(ctx context.Context, pkg, version string) (*ReleaseInfo, error) {
	pkg = integrations.CanonicalName(pkg)

	var info ReleaseInfo
	err := c.Cached(ctx, pkg+"=="+version, false, &info, func() error {
		return c.fetch(ctx, pkg, version, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) fetch(ctx context.Context, pkg, version string, info *ReleaseInfo) error {
	endpoint := fmt.Sprintf("%s/%s/json", c.baseURL, pkg)
	if version != "" {
		endpoint = fmt.Sprintf("%s/%s/%s/json", c.baseURL, pkg, url.PathEscape(version))
	}

	var data apiResponse
	if err := c.Get(ctx, endpoint, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: pypi package %s %s", err, pkg, version)
		}
		return err
	}

	license := strings.TrimSpace(data.Info.LicenseExpression)
	if license == "" {
		license = extractLicenseType(data.Info.License, data.Info.Classifiers)
	}

	*info = ReleaseInfo{
		Name:    integrations.CanonicalName(data.Info.Name),
		Version: data.Info.Version,
		Summary: data.Info.Summary,
		License: license,
	}
	return nil
}

type apiResponse struct {
	Info apiInfo `json:"info"`
}

type apiInfo struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	Summary           string   `json:"summary"`
	License           string   `json:"license"`
	LicenseExpression string   `json:"license_expression"`
	Classifiers       []string `json:"classifiers"`
}

// extractLicenseType extracts a short license identifier from PyPI data.
// It prefers the classifier (e.g., "License :: OSI Approved :: MIT License" -> "MIT License")
// and falls back to the license field if it's short enough.
func extractLicenseType(license string, classifiers []string) string {
	for _, c := range classifiers {
		if strings.HasPrefix(c, "License :: ") {
			parts := strings.Split(c, " :: ")
			if len(parts) >= 3 {
				return parts[len(parts)-1]
			}
		}
	}

	if license != "" && len(license) < 100 && !strings.Contains(license, "\n") {
		return strings.TrimSpace(license)
	}

	// Full license text: keep the first line when it looks like a title.
	if license != "" {
		firstLine := strings.TrimSpace(strings.Split(license, "\n")[0])
		if len(firstLine) < 50 {
			return firstLine
		}
	}

	return ""
}
