// Package vuln looks up known vulnerabilities of resolved dependencies.
package vuln

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Tim-sandbox/barista/pkg/deps"
	"github.com/Tim-sandbox/barista/pkg/integrations/osv"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// Source returns one security finding per (dependency, advisory) pair.
type Source interface {
	Lookup(ctx context.Context, pm model.PackageManager, list []deps.Dependency) ([]model.SecurityItem, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, pm model.PackageManager, list []deps.Dependency) ([]model.SecurityItem, error)

func (f SourceFunc) Lookup(ctx context.Context, pm model.PackageManager, list []deps.Dependency) ([]model.SecurityItem, error) {
	return f(ctx, pm, list)
}

// None is a Source that reports no findings.
type None struct{}

func (None) Lookup(context.Context, model.PackageManager, []deps.Dependency) ([]model.SecurityItem, error) {
	return nil, nil
}

// detailConcurrency bounds parallel advisory detail requests.
const detailConcurrency = 8

// OSV queries the OSV.dev database.
type OSV struct {
	client *osv.Client
}

// NewOSV returns a Source backed by client.
func NewOSV(client *osv.Client) *OSV { return &OSV{client: client} }

var ecosystems = map[model.PackageManager]string{
	model.PackageManagerNpm:   osv.EcosystemNpm,
	model.PackageManagerPip:   osv.EcosystemPyPI,
	model.PackageManagerMaven: osv.EcosystemMaven,
}

// Lookup implements Source. Dependencies without a version are skipped.
func (o *OSV) Lookup(ctx context.Context, pm model.PackageManager, list []deps.Dependency) ([]model.SecurityItem, error) {
	eco, ok := ecosystems[pm]
	if !ok {
		return nil, fmt.Errorf("no advisory ecosystem for package manager %q", pm)
	}

	var (
		queries []osv.Query
		owners  []deps.Dependency
	)
	for _, d := range list {
		if d.Version == "" {
			continue
		}
		queries = append(queries, osv.Query{Ecosystem: eco, Name: d.Name, Version: d.Version})
		owners = append(owners, d)
	}
	if len(queries) == 0 {
		return nil, nil
	}

	ids, err := o.client.QueryBatch(ctx, queries)
	if err != nil {
		return nil, err
	}

	details, err := o.details(ctx, ids)
	if err != nil {
		return nil, err
	}

	var items []model.SecurityItem
	for i, vulnIDs := range ids {
		d := owners[i]
		for _, id := range vulnIDs {
			v := details[id]
			items = append(items, model.SecurityItem{
				DisplayIdentifier: d.DisplayIdentifier(),
				Severity:          ParseSeverity(v.Severity),
				Path:              d.Path,
				VulnerabilityID:   id,
				Title:             v.Summary,
			})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Severity != items[j].Severity {
			return items[i].Severity > items[j].Severity
		}
		if items[i].DisplayIdentifier != items[j].DisplayIdentifier {
			return items[i].DisplayIdentifier < items[j].DisplayIdentifier
		}
		return items[i].VulnerabilityID < items[j].VulnerabilityID
	})
	return items, nil
}

func (o *OSV) details(ctx context.Context, ids [][]string) (map[string]osv.Vulnerability, error) {
	unique := make(map[string]bool)
	for _, list := range ids {
		for _, id := range list {
			unique[id] = true
		}
	}

	var mu sync.Mutex
	out := make(map[string]osv.Vulnerability, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for id := range unique {
		g.Go(func() error {
			v, err := o.client.Vulnerability(gctx, id)
			if err != nil {
				return fmt.Errorf("advisory %s: %w", id, err)
			}
			mu.Lock()
			out[id] = *v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseSeverity maps advisory severity labels to Severity. GitHub's
// "MODERATE" and CVSS's "MEDIUM" are kept distinct.
func ParseSeverity(label string) model.Severity {
	return model.ParseSeverity(strings.ToLower(label))
}
