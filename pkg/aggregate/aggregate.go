// Package aggregate computes per-project rollups, distinct counts and
// bill-of-materials listings from a project's latest completed scan.
//
// Every result derives from the latest completed scan only. A project with
// no completed scan yields the unknown rollup and empty listings, never an
// error. Result sets of a completed scan never change, so their items are
// cached by scan ID without expiry.
package aggregate

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Tim-sandbox/barista/pkg/cache"
	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// Distinct keys accepted by DistinctBy.
const (
	KeyName     = "name"     // license identifier
	KeyStatus   = "status"   // license status
	KeySeverity = "severity" // vulnerability severity
	KeyPath     = "path"     // dependency chain
	KeyPackage  = "package"  // display identifier
)

var distinctKeys = map[model.Dimension][]string{
	model.DimensionLicense:  {KeyName, KeyStatus, KeyPackage},
	model.DimensionSecurity: {KeySeverity, KeyPath, KeyPackage},
}

// Aggregator answers per-project read queries. Safe for concurrent use.
type Aggregator struct {
	store  *store.Store
	cache  cache.Cache
	keyer  cache.Keyer
	logger *log.Logger
}

// New creates an aggregator. A nil cache disables caching and a nil keyer
// selects the default keyer.
func New(db *store.Store, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Aggregator {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Aggregator{store: db, cache: c, keyer: keyer, logger: logger}
}

// LatestCompletedScan returns the project's latest completed scan, or nil.
func (a *Aggregator) LatestCompletedScan(ctx context.Context, projectID int64) (*model.Scan, error) {
	return a.store.LatestCompletedScan(ctx, projectID)
}

// HighestStatus returns the highest status of dim across the latest
// completed scan. The result is unknown when there is no completed scan or
// it has no findings of dim.
func (a *Aggregator) HighestStatus(ctx context.Context, projectID int64, dim model.Dimension) (model.Rollup, error) {
	switch dim {
	case model.DimensionLicense:
		s, err := a.HighestLicenseStatus(ctx, projectID)
		return model.LicenseRollup(s), err
	case model.DimensionSecurity:
		s, err := a.HighestSeverity(ctx, projectID)
		return model.SecurityRollup(s), err
	}
	return model.Rollup{}, bErrors.New(bErrors.ErrCodeInvalidInput, "unknown dimension %q", dim)
}

// HighestLicenseStatus is HighestStatus for the license dimension.
func (a *Aggregator) HighestLicenseStatus(ctx context.Context, projectID int64) (model.LicenseStatus, error) {
	items, err := a.latestLicenseItems(ctx, projectID)
	if err != nil {
		return model.LicenseUnknown, err
	}
	statuses := make([]model.LicenseStatus, len(items))
	for i, it := range items {
		statuses[i] = it.Status
	}
	return model.Highest(statuses), nil
}

// HighestSeverity is HighestStatus for the security dimension.
func (a *Aggregator) HighestSeverity(ctx context.Context, projectID int64) (model.Severity, error) {
	items, err := a.latestSecurityItems(ctx, projectID)
	if err != nil {
		return model.SeverityUnknown, err
	}
	severities := make([]model.Severity, len(items))
	for i, it := range items {
		severities[i] = it.Severity
	}
	return model.Highest(severities), nil
}

// DistinctBy groups the findings of dim in the latest completed scan by key
// and counts each group. Groups are ordered by count descending, then key.
// The counts sum to the number of findings.
func (a *Aggregator) DistinctBy(ctx context.Context, projectID int64, dim model.Dimension, key string) ([]model.Count, error) {
	keys, ok := distinctKeys[dim]
	if !ok {
		return nil, bErrors.New(bErrors.ErrCodeInvalidInput, "unknown dimension %q", dim)
	}
	if !slices.Contains(keys, key) {
		return nil, bErrors.New(bErrors.ErrCodeInvalidInput,
			"cannot group %s findings by %q (valid: %s)", dim, key, strings.Join(keys, ", "))
	}

	var values []string
	switch dim {
	case model.DimensionLicense:
		items, err := a.latestLicenseItems(ctx, projectID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			values = append(values, licenseKey(it, key))
		}
	case model.DimensionSecurity:
		items, err := a.latestSecurityItems(ctx, projectID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			values = append(values, securityKey(it, key))
		}
	}
	return countValues(values), nil
}

func licenseKey(it model.LicenseItem, key string) string {
	switch key {
	case KeyStatus:
		return it.Status.String()
	case KeyPackage:
		return it.DisplayIdentifier
	}
	return licenseName(it.License)
}

func securityKey(it model.SecurityItem, key string) string {
	switch key {
	case KeyPath:
		return it.Path
	case KeyPackage:
		return it.DisplayIdentifier
	}
	return it.Severity.String()
}

// licenseName maps the empty license to "unknown".
func licenseName(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}

// countValues counts occurrences and orders by count desc, then key asc.
func countValues(values []string) []model.Count {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	out := make([]model.Count, 0, len(counts))
	for k, n := range counts {
		out = append(out, model.Count{Key: k, Count: n})
	}
	slices.SortFunc(out, func(a, b model.Count) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// =============================================================================
// Cached item loading
// =============================================================================

func (a *Aggregator) latestLicenseItems(ctx context.Context, projectID int64) ([]model.LicenseItem, error) {
	scan, err := a.store.LatestCompletedScan(ctx, projectID)
	if err != nil || scan == nil {
		return nil, err
	}
	return cached(ctx, a, a.keyer.SummaryKey(scan.ID, "license-items"), func() ([]model.LicenseItem, error) {
		return a.store.LicenseItems(ctx, scan.ID)
	})
}

func (a *Aggregator) latestSecurityItems(ctx context.Context, projectID int64) ([]model.SecurityItem, error) {
	scan, err := a.store.LatestCompletedScan(ctx, projectID)
	if err != nil || scan == nil {
		return nil, err
	}
	return cached(ctx, a, a.keyer.SummaryKey(scan.ID, "security-items"), func() ([]model.SecurityItem, error) {
		return a.store.SecurityItems(ctx, scan.ID)
	})
}

// cached returns the value under key, loading and storing it on a miss.
// Cache failures fall back to load.
func cached[T any](ctx context.Context, a *Aggregator, key string, load func() (T, error)) (T, error) {
	if data, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
	} else if err != nil {
		a.logger.Debug("summary cache read failed", "key", key, "error", err)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		if err := a.cache.Set(ctx, key, data, 0); err != nil {
			a.logger.Debug("summary cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}
