package aggregate

import (
	"context"
	"slices"
	"strings"

	"github.com/Tim-sandbox/barista/pkg/model"
)

// LicenseBOM lists the license findings of the latest completed scan,
// deduplicated by package and license and ordered by package, then license.
// q.License restricts the listing to the packages under one license.
func (a *Aggregator) LicenseBOM(ctx context.Context, projectID int64, q model.BOMQuery) (model.Page[model.LicenseItem], error) {
	q = q.Normalize()
	items, err := a.latestLicenseItems(ctx, projectID)
	if err != nil {
		return model.Page[model.LicenseItem]{}, err
	}

	type dedupKey struct{ id, license string }
	seen := make(map[dedupKey]bool)
	var rows []model.LicenseItem
	for _, it := range items {
		k := dedupKey{it.DisplayIdentifier, it.License}
		if seen[k] {
			continue
		}
		seen[k] = true
		if q.License != "" && !strings.EqualFold(licenseName(it.License), q.License) {
			continue
		}
		if !matches(q.FilterText, it.DisplayIdentifier, it.License, it.Status.String()) {
			continue
		}
		rows = append(rows, it)
	}
	slices.SortStableFunc(rows, func(a, b model.LicenseItem) int {
		if c := strings.Compare(a.DisplayIdentifier, b.DisplayIdentifier); c != 0 {
			return c
		}
		return strings.Compare(a.License, b.License)
	})
	return paginate(rows, q), nil
}

// SecurityBOM lists the security findings of the latest completed scan,
// deduplicated by package, advisory and path, ordered by severity
// descending, then package, then advisory.
func (a *Aggregator) SecurityBOM(ctx context.Context, projectID int64, q model.BOMQuery) (model.Page[model.SecurityItem], error) {
	q = q.Normalize()
	items, err := a.latestSecurityItems(ctx, projectID)
	if err != nil {
		return model.Page[model.SecurityItem]{}, err
	}

	type dedupKey struct{ id, vuln, path string }
	seen := make(map[dedupKey]bool)
	var rows []model.SecurityItem
	for _, it := range items {
		k := dedupKey{it.DisplayIdentifier, it.VulnerabilityID, it.Path}
		if seen[k] {
			continue
		}
		seen[k] = true
		if !matches(q.FilterText, it.DisplayIdentifier, it.Path, it.VulnerabilityID, it.Title, it.Severity.String()) {
			continue
		}
		rows = append(rows, it)
	}
	slices.SortStableFunc(rows, func(a, b model.SecurityItem) int {
		if a.Severity != b.Severity {
			return int(b.Severity) - int(a.Severity)
		}
		if c := strings.Compare(a.DisplayIdentifier, b.DisplayIdentifier); c != 0 {
			return c
		}
		if c := strings.Compare(a.VulnerabilityID, b.VulnerabilityID); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return paginate(rows, q), nil
}

// LicenseSummary is one license of a project with the number of distinct
// packages under it.
type LicenseSummary struct {
	License  string              `json:"license"`
	Status   model.LicenseStatus `json:"status"`
	Packages int                 `json:"packages"`
}

// LicensesOnly lists the distinct licenses of the latest completed scan,
// ordered by license. q.FilterText matches the license identifier.
func (a *Aggregator) LicensesOnly(ctx context.Context, projectID int64, q model.BOMQuery) (model.Page[LicenseSummary], error) {
	q = q.Normalize()
	items, err := a.latestLicenseItems(ctx, projectID)
	if err != nil {
		return model.Page[LicenseSummary]{}, err
	}

	byLicense := make(map[string]*LicenseSummary)
	packages := make(map[string]map[string]bool)
	for _, it := range items {
		name := licenseName(it.License)
		s, ok := byLicense[name]
		if !ok {
			s = &LicenseSummary{License: name}
			byLicense[name] = s
			packages[name] = make(map[string]bool)
		}
		if it.Status > s.Status {
			s.Status = it.Status
		}
		packages[name][it.DisplayIdentifier] = true
	}

	rows := make([]LicenseSummary, 0, len(byLicense))
	for name, s := range byLicense {
		if !matches(q.FilterText, name) {
			continue
		}
		s.Packages = len(packages[name])
		rows = append(rows, *s)
	}
	slices.SortFunc(rows, func(a, b LicenseSummary) int { return strings.Compare(a.License, b.License) })
	return paginate(rows, q), nil
}

// matches reports whether any field contains text, case-insensitively.
// Empty text matches everything.
func matches(text string, fields ...string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), text) {
			return true
		}
	}
	return false
}

// paginate slices rows into the page q selects. q must be normalized.
func paginate[T any](rows []T, q model.BOMQuery) model.Page[T] {
	total := len(rows)
	pageCount := (total + q.PageSize - 1) / q.PageSize
	start := total
	if q.Page < pageCount {
		start = q.Page * q.PageSize
	}
	end := min(start+q.PageSize, total)

	data := make([]T, end-start)
	copy(data, rows[start:end])
	return model.Page[T]{
		Data:      data,
		Count:     len(data),
		Total:     total,
		Page:      q.Page,
		PageCount: pageCount,
	}
}
