// Package stats computes fleet-level metrics and per-project badge values.
//
// Fleet metrics consider only the latest completed scan of each project, so
// a project scanned ten times weighs the same as one scanned once. Fleet
// queries are restricted to organization projects, optionally narrowed to a
// set of owners.
package stats

import (
	"context"
	"time"

	"github.com/Tim-sandbox/barista/pkg/aggregate"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// IndexUndefined is returned by the indices when no license items exist.
const IndexUndefined = -1.0

// TopN is the length of the top lists.
const TopN = 10

// Engine computes metrics. Safe for concurrent use.
type Engine struct {
	store *store.Store
	agg   *aggregate.Aggregator
	now   func() time.Time
}

// New creates an engine reading from db. Badges are computed through agg.
func New(db *store.Store, agg *aggregate.Aggregator) *Engine {
	return &Engine{store: db, agg: agg, now: time.Now}
}

// SetClock replaces the time source used for the trend windows.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Fleet returns the filter of organization projects owned by any of
// ownerIDs (all owners when empty).
func Fleet(ownerIDs ...string) store.Filter {
	return store.Filter{OwnerIDs: ownerIDs, DevelopmentType: model.DevelopmentOrganization}
}

// LicenseNonComplianceIndex is the percentage of license items that are not
// green, or IndexUndefined when there are none.
func (e *Engine) LicenseNonComplianceIndex(ctx context.Context, f store.Filter) (float64, error) {
	total, nonGreen, err := e.store.LicenseItemCounts(ctx, f)
	if err != nil {
		return 0, err
	}
	return ratio(nonGreen, total), nil
}

// HighVulnerabilityIndex is the number of critical and high security items
// as a percentage of all license items, or IndexUndefined when there are no
// license items.
func (e *Engine) HighVulnerabilityIndex(ctx context.Context, f store.Filter) (float64, error) {
	total, _, err := e.store.LicenseItemCounts(ctx, f)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return IndexUndefined, nil
	}
	high, err := e.store.CountSecurityItems(ctx, f, model.SeverityHigh)
	if err != nil {
		return 0, err
	}
	return ratio(high, total), nil
}

func ratio(n, total int) float64 {
	if total <= 0 {
		return IndexUndefined
	}
	return float64(n) / float64(total) * 100
}

// TopLicenses returns the licenses with the most components.
func (e *Engine) TopLicenses(ctx context.Context, f store.Filter) ([]model.Count, error) {
	return e.store.TopLicenses(ctx, f, TopN)
}

// TopComponents returns the components used by the most projects.
func (e *Engine) TopComponents(ctx context.Context, f store.Filter) ([]model.Count, error) {
	return e.store.TopComponents(ctx, f, TopN)
}

// TopVulnerabilities returns the dependency paths with the most critical or
// high findings.
func (e *Engine) TopVulnerabilities(ctx context.Context, f store.Filter) ([]model.Count, error) {
	return e.store.TopVulnerablePaths(ctx, f, model.SeverityHigh, TopN)
}

// MonthlyProjects counts projects created per month over the trend window.
func (e *Engine) MonthlyProjects(ctx context.Context, f store.Filter) ([]model.Count, error) {
	return e.store.MonthlyProjects(ctx, f, e.windowStart())
}

// MonthlyScans counts latest completed scans per month of completion over
// the trend window.
func (e *Engine) MonthlyScans(ctx context.Context, f store.Filter) ([]model.Count, error) {
	return e.store.MonthlyScans(ctx, f, e.windowStart())
}

// windowStart is the first day of the current month, one year back.
func (e *Engine) windowStart() time.Time {
	now := e.now().UTC()
	return time.Date(now.Year()-1, now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Summary bundles every fleet metric for one filter.
type Summary struct {
	LicenseNonComplianceIndex float64       `json:"licenseNonComplianceIndex"`
	HighVulnerabilityIndex    float64       `json:"highVulnerabilityIndex"`
	TopLicenses               []model.Count `json:"topLicenses"`
	TopComponents             []model.Count `json:"topComponents"`
	TopVulnerabilities        []model.Count `json:"topVulnerabilities"`
	MonthlyProjects           []model.Count `json:"monthlyProjects"`
	MonthlyScans              []model.Count `json:"monthlyScans"`
}

// Summarize computes every fleet metric.
func (e *Engine) Summarize(ctx context.Context, f store.Filter) (*Summary, error) {
	var (
		s   Summary
		err error
	)
	if s.LicenseNonComplianceIndex, err = e.LicenseNonComplianceIndex(ctx, f); err != nil {
		return nil, err
	}
	if s.HighVulnerabilityIndex, err = e.HighVulnerabilityIndex(ctx, f); err != nil {
		return nil, err
	}
	if s.TopLicenses, err = e.TopLicenses(ctx, f); err != nil {
		return nil, err
	}
	if s.TopComponents, err = e.TopComponents(ctx, f); err != nil {
		return nil, err
	}
	if s.TopVulnerabilities, err = e.TopVulnerabilities(ctx, f); err != nil {
		return nil, err
	}
	if s.MonthlyProjects, err = e.MonthlyProjects(ctx, f); err != nil {
		return nil, err
	}
	if s.MonthlyScans, err = e.MonthlyScans(ctx, f); err != nil {
		return nil, err
	}
	return &s, nil
}
