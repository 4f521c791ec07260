package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// CreateScan inserts a pending scan for projectID. It fails with
// SCAN_IN_PROGRESS when the project already has a pending or running scan;
// the check is a unique index, so concurrent callers cannot both succeed.
func (s *Store) CreateScan(ctx context.Context, projectID int64, branch string) (*model.Scan, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	scan := &model.Scan{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Branch:    branch,
		State:     model.ScanPending,
		CreatedAt: fromMillis(millis(s.now())),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (id, project_id, branch, state, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		scan.ID, scan.ProjectID, scan.Branch, string(scan.State), millis(scan.CreatedAt),
	)
	if isUniqueViolation(err) {
		return nil, bErrors.New(bErrors.ErrCodeScanInProgress,
			"project %d already has a scan in progress", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert scan: %w", err)
	}
	return scan, nil
}

// MarkRunning moves a pending scan to running and returns the start time.
func (s *Store) MarkRunning(ctx context.Context, scanID string) (time.Time, error) {
	started := fromMillis(millis(s.now()))
	res, err := s.db.ExecContext(ctx, `
		UPDATE scans SET state = ?, started_at = ?
		WHERE id = ? AND state = ?`,
		string(model.ScanRunning), millis(started), scanID, string(model.ScanPending),
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("mark scan %s running: %w", scanID, err)
	}
	if err := s.expectTransition(ctx, res, scanID, model.ScanPending); err != nil {
		return time.Time{}, err
	}
	return started, nil
}

// CompleteScan publishes findings and marks the running scan completed in a
// single transaction. Result and item IDs are assigned on f.
func (s *Store) CompleteScan(ctx context.Context, scanID string, f *model.Findings) error {
	completed := fromMillis(millis(s.now()))

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE scans SET state = ?, completed_at = ?, error_code = '', error = ''
			WHERE id = ? AND state = ?`,
			string(model.ScanCompleted), millis(completed), scanID, string(model.ScanRunning),
		)
		if err != nil {
			return fmt.Errorf("complete scan %s: %w", scanID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return bErrors.New(bErrors.ErrCodeInvalidInput, "scan %s is not running", scanID)
		}

		if err := insertLicenseResult(ctx, tx, scanID, &f.License, completed); err != nil {
			return err
		}
		return insertSecurityResult(ctx, tx, scanID, &f.Security, completed)
	})
}

func insertLicenseResult(ctx context.Context, tx *sql.Tx, scanID string, r *model.LicenseScanResult, completed time.Time) error {
	r.ID = uuid.NewString()
	r.ScanID = scanID
	if r.StartedAt.IsZero() {
		r.StartedAt = completed
	}
	r.CompletedAt = completed

	_, err := tx.ExecContext(ctx, `
		INSERT INTO license_scan_results (id, scan_id, started_at, completed_at)
		VALUES (?, ?, ?, ?)`,
		r.ID, scanID, millis(r.StartedAt), millis(r.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert license result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO license_items (result_id, display_identifier, license, status)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare license items: %w", err)
	}
	defer stmt.Close()

	for i := range r.Items {
		it := &r.Items[i]
		res, err := stmt.ExecContext(ctx, r.ID, it.DisplayIdentifier, it.License, int(it.Status))
		if err != nil {
			return fmt.Errorf("insert license item %s: %w", it.DisplayIdentifier, err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert license item %s: %w", it.DisplayIdentifier, err)
		}
	}
	return nil
}

func insertSecurityResult(ctx context.Context, tx *sql.Tx, scanID string, r *model.SecurityScanResult, completed time.Time) error {
	r.ID = uuid.NewString()
	r.ScanID = scanID
	if r.StartedAt.IsZero() {
		r.StartedAt = completed
	}
	r.CompletedAt = completed

	_, err := tx.ExecContext(ctx, `
		INSERT INTO security_scan_results (id, scan_id, started_at, completed_at)
		VALUES (?, ?, ?, ?)`,
		r.ID, scanID, millis(r.StartedAt), millis(r.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert security result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO security_items (result_id, display_identifier, severity, path, vulnerability_id, title)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare security items: %w", err)
	}
	defer stmt.Close()

	for i := range r.Items {
		it := &r.Items[i]
		res, err := stmt.ExecContext(ctx, r.ID, it.DisplayIdentifier, int(it.Severity), it.Path, it.VulnerabilityID, it.Title)
		if err != nil {
			return fmt.Errorf("insert security item %s: %w", it.DisplayIdentifier, err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert security item %s: %w", it.DisplayIdentifier, err)
		}
	}
	return nil
}

// FailScan marks a pending or running scan failed with an error code and
// reason. Nothing else from the attempt is stored.
func (s *Store) FailScan(ctx context.Context, scanID string, code bErrors.Code, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scans SET state = ?, error_code = ?, error = ?, completed_at = ?
		WHERE id = ? AND state IN (?, ?)`,
		string(model.ScanFailed), string(code), reason, millis(s.now()),
		scanID, string(model.ScanPending), string(model.ScanRunning),
	)
	if err != nil {
		return fmt.Errorf("fail scan %s: %w", scanID, err)
	}
	return s.expectTransition(ctx, res, scanID, model.ScanRunning)
}

// RecoverStale fails with INTERRUPTED every pending or running scan that
// started, or was queued, at least olderThan ago, and returns the number of
// scans recovered. Younger scans may belong to another live process sharing
// the database and are left alone.
func (s *Store) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE scans SET state = ?, error_code = ?, error = ?, completed_at = ?
		WHERE state IN (?, ?) AND COALESCE(started_at, created_at) <= ?`,
		string(model.ScanFailed), string(bErrors.ErrCodeInterrupted),
		"scan interrupted by process restart", millis(now),
		string(model.ScanPending), string(model.ScanRunning),
		millis(now.Add(-olderThan)),
	)
	if err != nil {
		return 0, fmt.Errorf("recover stale scans: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// expectTransition turns a zero-row state update into NOT_FOUND or an
// invalid transition error.
func (s *Store) expectTransition(ctx context.Context, res sql.Result, scanID string, from model.ScanState) error {
	if n, err := res.RowsAffected(); err != nil || n == 1 {
		return err
	}
	scan, err := s.GetScan(ctx, scanID)
	if err != nil {
		return err
	}
	return bErrors.New(bErrors.ErrCodeInvalidInput,
		"scan %s is %s, expected %s", scanID, scan.State, from)
}

const scanColumns = `id, project_id, branch, state, error_code, error, created_at, started_at, completed_at`

func scanScan(row scanner) (*model.Scan, error) {
	var (
		sc                 model.Scan
		state              string
		created            int64
		started, completed sql.NullInt64
	)
	err := row.Scan(&sc.ID, &sc.ProjectID, &sc.Branch, &state, &sc.ErrorCode, &sc.Error,
		&created, &started, &completed)
	if err != nil {
		return nil, err
	}
	sc.State = model.ScanState(state)
	sc.CreatedAt = fromMillis(created)
	sc.StartedAt = timePtr(started)
	sc.CompletedAt = timePtr(completed)
	return &sc, nil
}

// GetScan returns the scan with id or a NOT_FOUND error.
func (s *Store) GetScan(ctx context.Context, id string) (*model.Scan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	sc, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("scan", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}
	return sc, nil
}

// ListScans returns the scans of a project, newest first. A limit of 0
// returns all of them.
func (s *Store) ListScans(ctx context.Context, projectID int64, limit int) ([]model.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE project_id = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryScans(ctx, query, args...)
}

// ActiveScan returns the project's pending or running scan, or nil.
func (s *Store) ActiveScan(ctx context.Context, projectID int64) (*model.Scan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans
		WHERE project_id = ? AND state IN (?, ?)`,
		projectID, string(model.ScanPending), string(model.ScanRunning))
	sc, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active scan of project %d: %w", projectID, err)
	}
	return sc, nil
}

// LatestCompletedScan returns the project's completed scan with the latest
// completion time, or nil when it has none. Ties go to the later-created
// scan, then the greater ID.
func (s *Store) LatestCompletedScan(ctx context.Context, projectID int64) (*model.Scan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans
		WHERE project_id = ? AND state = ?
		ORDER BY completed_at DESC, created_at DESC, id DESC
		LIMIT 1`,
		projectID, string(model.ScanCompleted))
	sc, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed scan of project %d: %w", projectID, err)
	}
	return sc, nil
}

func (s *Store) queryScans(ctx context.Context, query string, args ...any) ([]model.Scan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []model.Scan
	for rows.Next() {
		sc, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("list scans: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// =============================================================================
// Result sets
// =============================================================================

// LicenseResult returns the license result set of a completed scan with its
// items, or nil when the scan has none.
func (s *Store) LicenseResult(ctx context.Context, scanID string) (*model.LicenseScanResult, error) {
	var (
		r                  model.LicenseScanResult
		started, completed int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scan_id, started_at, completed_at FROM license_scan_results WHERE scan_id = ?`,
		scanID).Scan(&r.ID, &r.ScanID, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("license result of scan %s: %w", scanID, err)
	}
	r.StartedAt, r.CompletedAt = fromMillis(started), fromMillis(completed)
	if r.Items, err = s.LicenseItems(ctx, scanID); err != nil {
		return nil, err
	}
	return &r, nil
}

// SecurityResult returns the security result set of a completed scan with
// its items, or nil when the scan has none.
func (s *Store) SecurityResult(ctx context.Context, scanID string) (*model.SecurityScanResult, error) {
	var (
		r                  model.SecurityScanResult
		started, completed int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scan_id, started_at, completed_at FROM security_scan_results WHERE scan_id = ?`,
		scanID).Scan(&r.ID, &r.ScanID, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("security result of scan %s: %w", scanID, err)
	}
	r.StartedAt, r.CompletedAt = fromMillis(started), fromMillis(completed)
	if r.Items, err = s.SecurityItems(ctx, scanID); err != nil {
		return nil, err
	}
	return &r, nil
}

// LicenseItems returns the license items of a scan in insertion order.
func (s *Store) LicenseItems(ctx context.Context, scanID string) ([]model.LicenseItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT li.id, li.display_identifier, li.license, li.status
		FROM license_items li
		JOIN license_scan_results r ON r.id = li.result_id
		WHERE r.scan_id = ?
		ORDER BY li.id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("license items of scan %s: %w", scanID, err)
	}
	defer rows.Close()

	var out []model.LicenseItem
	for rows.Next() {
		var (
			it     model.LicenseItem
			status int
		)
		if err := rows.Scan(&it.ID, &it.DisplayIdentifier, &it.License, &status); err != nil {
			return nil, fmt.Errorf("license items of scan %s: %w", scanID, err)
		}
		it.Status = model.LicenseStatus(status)
		out = append(out, it)
	}
	return out, rows.Err()
}

// SecurityItems returns the security items of a scan in insertion order.
func (s *Store) SecurityItems(ctx context.Context, scanID string) ([]model.SecurityItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.display_identifier, si.severity, si.path, si.vulnerability_id, si.title
		FROM security_items si
		JOIN security_scan_results r ON r.id = si.result_id
		WHERE r.scan_id = ?
		ORDER BY si.id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("security items of scan %s: %w", scanID, err)
	}
	defer rows.Close()

	var out []model.SecurityItem
	for rows.Next() {
		var (
			it       model.SecurityItem
			severity int
		)
		if err := rows.Scan(&it.ID, &it.DisplayIdentifier, &severity, &it.Path, &it.VulnerabilityID, &it.Title); err != nil {
			return nil, fmt.Errorf("security items of scan %s: %w", scanID, err)
		}
		it.Severity = model.Severity(severity)
		out = append(out, it)
	}
	return out, rows.Err()
}
