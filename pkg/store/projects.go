package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// Filter restricts fleet queries to a set of projects. Zero fields match
// everything.
type Filter struct {
	OwnerIDs        []string // project user_id IN (...)
	DevelopmentType string   // project development_type = ...
}

// where returns a SQL predicate over the projects alias p and its args.
func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.DevelopmentType != "" {
		clauses = append(clauses, "p.development_type = ?")
		args = append(args, f.DevelopmentType)
	}
	if len(f.OwnerIDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.OwnerIDs)), ",")
		clauses = append(clauses, "p.user_id IN ("+marks+")")
		for _, id := range f.OwnerIDs {
			args = append(args, id)
		}
	}
	if len(clauses) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// ParseOwnerIDs splits a comma-separated owner list, dropping blanks.
func ParseOwnerIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

// CreateProject inserts p and sets its ID and timestamps. The name is
// sanitized and the development type defaults to organization.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	p.Name = model.SanitizeProjectName(p.Name)
	if p.Name == "" {
		return bErrors.New(bErrors.ErrCodeInvalidInput, "project name cannot be empty")
	}
	if p.PackageManager == "" {
		return bErrors.New(bErrors.ErrCodeInvalidInput, "project package manager cannot be empty")
	}
	if err := bErrors.ValidateGitURL(p.GitURL); err != nil {
		return err
	}
	if p.DevelopmentType == "" {
		p.DevelopmentType = model.DevelopmentOrganization
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (
			name, git_url, package_manager, output_format, deployment_type,
			development_type, user_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.GitURL, string(p.PackageManager), p.OutputFormat, p.DeploymentType,
		p.DevelopmentType, p.UserID, millis(now), millis(now),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	p.ID = id
	p.CreatedAt = fromMillis(millis(now))
	p.UpdatedAt = p.CreatedAt
	return nil
}

const projectColumns = `id, name, git_url, package_manager, output_format, deployment_type,
	development_type, user_id, created_at, updated_at`

func scanProject(row scanner) (*model.Project, error) {
	var (
		p                model.Project
		pm               string
		created, updated int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.GitURL, &pm, &p.OutputFormat, &p.DeploymentType,
		&p.DevelopmentType, &p.UserID, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.PackageManager = model.PackageManager(pm)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// GetProject returns the project with id or a NOT_FOUND error.
func (s *Store) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return p, nil
}

// ListProjects returns the projects matching f ordered by ID.
func (s *Store) ListProjects(ctx context.Context, f Filter) ([]model.Project, error) {
	where, args := f.where()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateOptions controls UpdateProject.
type UpdateOptions struct {
	// AdminOverride permits changing the project's owner.
	AdminOverride bool
}

// UpdateProject writes the mutable fields of p. Changing the owner without
// AdminOverride is rejected.
func (s *Store) UpdateProject(ctx context.Context, p *model.Project, opts UpdateOptions) error {
	current, err := s.GetProject(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.UserID != current.UserID && !opts.AdminOverride {
		return bErrors.New(bErrors.ErrCodeInvalidInput,
			"project %d owner cannot be changed without administrative override", p.ID)
	}
	p.Name = model.SanitizeProjectName(p.Name)
	if p.Name == "" {
		return bErrors.New(bErrors.ErrCodeInvalidInput, "project name cannot be empty")
	}
	if err := bErrors.ValidateGitURL(p.GitURL); err != nil {
		return err
	}
	if p.DevelopmentType == "" {
		p.DevelopmentType = current.DevelopmentType
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE projects SET
			name = ?, git_url = ?, package_manager = ?, output_format = ?,
			deployment_type = ?, development_type = ?, user_id = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.GitURL, string(p.PackageManager), p.OutputFormat,
		p.DeploymentType, p.DevelopmentType, p.UserID, millis(now), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project %d: %w", p.ID, err)
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = fromMillis(millis(now))
	return nil
}
