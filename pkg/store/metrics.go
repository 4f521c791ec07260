package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Tim-sandbox/barista/pkg/model"
)

// latestCTE selects one row per project: the latest completed scan of every
// project matching f. Every fleet query is built on it, so a project is never
// counted twice.
func latestCTE(f Filter) (string, []any) {
	where, args := f.where()
	return `WITH latest AS (
		SELECT id, project_id, completed_at FROM (
			SELECT s.id, s.project_id, s.completed_at,
				ROW_NUMBER() OVER (
					PARTITION BY s.project_id
					ORDER BY s.completed_at DESC, s.created_at DESC, s.id DESC
				) AS rn
			FROM scans s
			JOIN projects p ON p.id = s.project_id
			WHERE s.state = 'completed' AND ` + where + `
		) WHERE rn = 1
	)
	`, args
}

// LatestCompleted returns the latest completed scan of every project
// matching f, ordered by project ID.
func (s *Store) LatestCompleted(ctx context.Context, f Filter) ([]model.Scan, error) {
	cte, args := latestCTE(f)
	return s.queryScans(ctx, cte+`SELECT `+scanColumns+` FROM scans
		WHERE id IN (SELECT id FROM latest)
		ORDER BY project_id`, args...)
}

// LicenseItemCounts returns the number of license items across the latest
// completed scans matching f, and how many of them are not green.
func (s *Store) LicenseItemCounts(ctx context.Context, f Filter) (total, nonGreen int, err error) {
	cte, args := latestCTE(f)
	err = s.db.QueryRowContext(ctx, cte+`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN li.status <> ? THEN 1 ELSE 0 END), 0)
		FROM latest l
		JOIN license_scan_results r ON r.scan_id = l.id
		JOIN license_items li ON li.result_id = r.id`,
		append(args, int(model.LicenseGreen))...,
	).Scan(&total, &nonGreen)
	if err != nil {
		return 0, 0, fmt.Errorf("count license items: %w", err)
	}
	return total, nonGreen, nil
}

// CountSecurityItems counts security items at or above atLeast across the
// latest completed scans matching f.
func (s *Store) CountSecurityItems(ctx context.Context, f Filter, atLeast model.Severity) (int, error) {
	cte, args := latestCTE(f)
	var n int
	err := s.db.QueryRowContext(ctx, cte+`
		SELECT COUNT(*)
		FROM latest l
		JOIN security_scan_results r ON r.scan_id = l.id
		JOIN security_items si ON si.result_id = r.id
		WHERE si.severity >= ?`,
		append(args, int(atLeast))...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count security items: %w", err)
	}
	return n, nil
}

// TopLicenses returns the most used licenses across the latest completed
// scans matching f. Items without a license are grouped as "unknown".
func (s *Store) TopLicenses(ctx context.Context, f Filter, limit int) ([]model.Count, error) {
	cte, args := latestCTE(f)
	return s.queryCounts(ctx, cte+`
		SELECT CASE WHEN li.license = '' THEN 'unknown' ELSE li.license END AS k, COUNT(*) AS n
		FROM latest l
		JOIN license_scan_results r ON r.scan_id = l.id
		JOIN license_items li ON li.result_id = r.id
		GROUP BY k
		ORDER BY n DESC, k
		LIMIT ?`,
		append(args, limit)...)
}

// TopComponents returns the components used by the most projects. A
// component listed several times in one scan counts once.
func (s *Store) TopComponents(ctx context.Context, f Filter, limit int) ([]model.Count, error) {
	cte, args := latestCTE(f)
	return s.queryCounts(ctx, cte+`
		SELECT li.display_identifier AS k, COUNT(DISTINCT l.project_id) AS n
		FROM latest l
		JOIN license_scan_results r ON r.scan_id = l.id
		JOIN license_items li ON li.result_id = r.id
		GROUP BY k
		ORDER BY n DESC, k
		LIMIT ?`,
		append(args, limit)...)
}

// TopVulnerablePaths returns the dependency paths carrying the most
// findings at or above atLeast.
func (s *Store) TopVulnerablePaths(ctx context.Context, f Filter, atLeast model.Severity, limit int) ([]model.Count, error) {
	cte, args := latestCTE(f)
	return s.queryCounts(ctx, cte+`
		SELECT si.path AS k, COUNT(*) AS n
		FROM latest l
		JOIN security_scan_results r ON r.scan_id = l.id
		JOIN security_items si ON si.result_id = r.id
		WHERE si.severity >= ?
		GROUP BY k
		ORDER BY n DESC, k
		LIMIT ?`,
		append(args, int(atLeast), limit)...)
}

// MonthlyProjects counts projects matching f created at or after since,
// keyed by "YYYY-MM" in ascending order.
func (s *Store) MonthlyProjects(ctx context.Context, f Filter, since time.Time) ([]model.Count, error) {
	where, args := f.where()
	return s.queryCounts(ctx, `
		SELECT strftime('%Y-%m', p.created_at / 1000, 'unixepoch') AS k, COUNT(*) AS n
		FROM projects p
		WHERE p.created_at >= ? AND `+where+`
		GROUP BY k
		ORDER BY k`,
		append([]any{millis(since)}, args...)...)
}

// MonthlyScans counts the latest completed scans matching f by month of
// completion, from since onwards.
func (s *Store) MonthlyScans(ctx context.Context, f Filter, since time.Time) ([]model.Count, error) {
	cte, args := latestCTE(f)
	return s.queryCounts(ctx, cte+`
		SELECT strftime('%Y-%m', l.completed_at / 1000, 'unixepoch') AS k, COUNT(*) AS n
		FROM latest l
		WHERE l.completed_at >= ?
		GROUP BY k
		ORDER BY k`,
		append(args, millis(since))...)
}

func (s *Store) queryCounts(ctx context.Context, query string, args ...any) ([]model.Count, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	out := []model.Count{}
	for rows.Next() {
		var c model.Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("query counts: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
