// Package npm looks up package metadata in an npm-compatible registry.
package npm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tim-sandbox/barista/pkg/cache"
	"github.com/Tim-sandbox/barista/pkg/integrations"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org"

// VersionInfo is the metadata of one published version.
type VersionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	License string `json:"license"`
}

// Client reads packuments from a registry. Safe for concurrent use.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a client for the registry at baseURL (DefaultRegistry
// when empty). Responses are cached in backend for cacheTTL.
func NewClient(backend cache.Cache, baseURL string, cacheTTL time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultRegistry
	}
	return &Client{
		Client:  integrations.NewClient(backend, "npm", cacheTTL, map[string]string{"Accept": "application/json"}),
		baseURL: integrations.BaseURL(baseURL),
	}
}

// FetchVersion returns the metadata of pkg at version. The license is
// normalized from the string, object and legacy array forms.
func (c *Client) FetchVersion(ctx context.Context, pkg, version string) (*VersionInfo, error) {
	pkg = strings.TrimSpace(pkg)
	var info VersionInfo
	err := c.Cached(ctx, pkg+"@"+version, false, &info, func() error {
		return c.fetch(ctx, pkg, version, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) fetch(ctx context.Context, pkg, version string, info *VersionInfo) error {
	var data packument
	if err := c.Get(ctx, c.baseURL+"/"+escapeName(pkg), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: npm package %s", err, pkg)
		}
		return err
	}

	v, ok := data.Versions[version]
	if !ok {
		return fmt.Errorf("%w: npm package %s@%s", integrations.ErrNotFound, pkg, version)
	}

	license := licenseString(v.License)
	if license == "" {
		license = licenseString(v.Licenses)
	}
	*info = VersionInfo{Name: pkg, Version: version, License: license}
	return nil
}

// escapeName encodes the scope separator as the registry expects:
// "@babel/core" becomes "@babel%2Fcore".
func escapeName(pkg string) string {
	if strings.HasPrefix(pkg, "@") {
		return strings.Replace(pkg, "/", "%2F", 1)
	}
	return pkg
}

// licenseString flattens "MIT", {"type":"MIT"} and [{"type":"MIT"},{"type":"ISC"}].
func licenseString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		if s, ok := val["type"].(string); ok {
			return strings.TrimSpace(s)
		}
	case []any:
		var parts []string
		for _, item := range val {
			if s := licenseString(item); s != "" {
				parts = append(parts, s)
			}
		}
		switch len(parts) {
		case 0:
			return ""
		case 1:
			return parts[0]
		default:
			return "(" + strings.Join(parts, " OR ") + ")"
		}
	}
	return ""
}

type packument struct {
	Name     string                    `json:"name"`
	Versions map[string]versionDetails `json:"versions"`
}

type versionDetails struct {
	License  any `json:"license"`
	Licenses any `json:"licenses"`
}
