// Package osv queries the OSV.dev vulnerability database.
package osv

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

// DefaultBaseURL is the public OSV API.
const DefaultBaseURL = "https://api.osv.dev"

// batchLimit is the maximum number of queries per querybatch request.
const batchLimit = 1000

// maxPages bounds the result pages followed for one batch.
const maxPages = 100

// Ecosystem names used by OSV.
const (
	EcosystemNpm   = "npm"
	EcosystemPyPI  = "PyPI"
	EcosystemMaven = "Maven"
)

// Query identifies one package version.
type Query struct {
	Ecosystem string
	Name      string
	Version   string
}

// Vulnerability is the advisory detail barista keeps.
type Vulnerability struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary"`
	Severity string   `json:"severity"` // LOW, MODERATE, MEDIUM, HIGH, CRITICAL or empty
	Aliases  []string `json:"aliases,omitempty"`
}

// Client queries OSV. Safe for concurrent use.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty).
// Advisory details are cached in backend for cacheTTL.
func NewClient(backend cache.Cache, baseURL string, cacheTTL time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(backend, "osv", cacheTTL, nil),
		baseURL: integrations.BaseURL(baseURL),
	}
}

// QueryBatch returns the advisory IDs affecting each query, index-aligned
// with queries. Queries whose results span several pages are re-sent with
// their page token until OSV reports no further page.
func (c *Client) QueryBatch(ctx context.Context, queries []Query) ([][]string, error) {
	out := make([][]string, len(queries))
	for start := 0; start < len(queries); start += batchLimit {
		end := min(start+batchLimit, len(queries))

		pending := make([]pageRequest, 0, end-start)
		for i := start; i < end; i++ {
			pending = append(pending, pageRequest{index: i})
		}
		for page := 0; len(pending) > 0; page++ {
			if page == maxPages {
				return nil, fmt.Errorf("osv querybatch: more than %d result pages", maxPages)
			}
			next, err := c.queryPage(ctx, queries, pending, out)
			if err != nil {
				return nil, err
			}
			pending = next
		}
	}
	return out, nil
}

// pageRequest is one query awaiting a page of results.
type pageRequest struct {
	index int
	token string
}

// queryPage sends one querybatch request for pending, appends the returned
// IDs to out and returns the queries that have more pages.
func (c *Client) queryPage(ctx context.Context, queries []Query, pending []pageRequest, out [][]string) ([]pageRequest, error) {
	req := batchRequest{Queries: make([]batchQuery, 0, len(pending))}
	for _, p := range pending {
		q := queries[p.index]
		req.Queries = append(req.Queries, batchQuery{
			Package:   batchPackage{Name: q.Name, Ecosystem: q.Ecosystem},
			Version:   q.Version,
			PageToken: p.token,
		})
	}

	var resp batchResponse
	err := integrations.RetryWithBackoff(ctx, func() error {
		resp = batchResponse{}
		return c.PostJSON(ctx, c.baseURL+"/v1/querybatch", req, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("osv querybatch: %w", err)
	}
	if len(resp.Results) != len(pending) {
		return nil, fmt.Errorf("osv querybatch: got %d results for %d queries", len(resp.Results), len(pending))
	}

	var next []pageRequest
	for i, r := range resp.Results {
		idx := pending[i].index
		for _, v := range r.Vulns {
			out[idx] = append(out[idx], v.ID)
		}
		if r.NextPageToken != "" {
			next = append(next, pageRequest{index: idx, token: r.NextPageToken})
		}
	}
	return next, nil
}

// Vulnerability fetches one advisory.
func (c *Client) Vulnerability(ctx context.Context, id string) (*Vulnerability, error) {
	var v Vulnerability
	err := c.Cached(ctx, id, false, &v, func() error {
		var raw vulnResponse
		if err := c.Get(ctx, c.baseURL+"/v1/vulns/"+url.PathEscape(id), &raw); err != nil {
			if errors.Is(err, integrations.ErrNotFound) {
				return fmt.Errorf("%w: osv advisory %s", err, id)
			}
			return err
		}
		v = Vulnerability{
			ID:       raw.ID,
			Summary:  raw.Summary,
			Severity: severityOf(raw),
			Aliases:  raw.Aliases,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// severityOf reads the GitHub advisory severity label when present, then
// falls back to the ecosystem-specific label of the first affected entry.
func severityOf(raw vulnResponse) string {
	if s, ok := raw.DatabaseSpecific["severity"].(string); ok && s != "" {
		return strings.ToUpper(s)
	}
	for _, a := range raw.Affected {
		if s, ok := a.EcosystemSpecific["severity"].(string); ok && s != "" {
			return strings.ToUpper(s)
		}
	}
	return ""
}

type batchRequest struct {
	Queries []batchQuery `json:"queries"`
}

type batchQuery struct {
	Package   batchPackage `json:"package"`
	Version   string       `json:"version"`
	PageToken string       `json:"page_token,omitempty"`
}

type batchPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type batchResponse struct {
	Results []struct {
		Vulns []struct {
			ID string `json:"id"`
		} `json:"vulns"`
		NextPageToken string `json:"next_page_token"`
	} `json:"results"`
}

type vulnResponse struct {
	ID               string         `json:"id"`
	Summary          string         `json:"summary"`
	Aliases          []string       `json:"aliases"`
	DatabaseSpecific map[string]any `json:"database_specific"`
	Affected         []struct {
		EcosystemSpecific map[string]any `json:"ecosystem_specific"`
	} `json:"affected"`
}
