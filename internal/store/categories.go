package store

import (
	"context"
	"database/sql"
	"fmt"

	"call-reports-go/internal/types"
)

// InsertTenant registers a tenant with its display timezone.
func (s *Store) InsertTenant(ctx context.Context, id, name, timezone string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, timezone) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, timezone=excluded.timezone`,
		id, name, timezone)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// CompanyTimezone returns the tenant's IANA timezone string, empty when the
// tenant is unknown or never configured one.
func (s *Store) CompanyTimezone(ctx context.Context, tenantID string) (string, error) {
	var tz string
	err := s.db.QueryRowContext(ctx,
		`SELECT timezone FROM tenants WHERE id = ?`, tenantID).Scan(&tz)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("company timezone: %w", err)
	}
	return tz, nil
}

// TenantIDs lists every registered tenant, for the periodic aggregation scan.
func (s *Store) TenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("tenant ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// InsertCategory adds a category reference row and returns its id.
func (s *Store) InsertCategory(ctx context.Context, name, assignmentSource string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO call_categories (name, assignment_source) VALUES (?, ?)`,
		name, assignmentSource)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	return res.LastInsertId()
}

// InsertSubCategory adds a sub-category reference row and returns its id.
func (s *Store) InsertSubCategory(ctx context.Context, categoryID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO call_sub_categories (category_id, name) VALUES (?, ?)`,
		categoryID, name)
	if err != nil {
		return 0, fmt.Errorf("insert sub category: %w", err)
	}
	return res.LastInsertId()
}

// CategoryNames returns id -> name for all enabled categories.
func (s *Store) CategoryNames(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM call_categories WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("category names: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// SubCategoryNames returns id -> name for all enabled sub-categories.
func (s *Store) SubCategoryNames(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM call_sub_categories WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("sub category names: %w", err)
	}
	defer rows.Close()
	return scanNames(rows)
}

// Categories lists all category reference rows.
func (s *Store) Categories(ctx context.Context) ([]types.CallCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, enabled, assignment_source FROM call_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	defer rows.Close()

	var out []types.CallCategory
	for rows.Next() {
		var c types.CallCategory
		var enabled int
		if err := rows.Scan(&c.ID, &c.Name, &enabled, &c.AssignmentSource); err != nil {
			return nil, err
		}
		c.Enabled = enabled != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanNames(rows *sql.Rows) (map[int64]string, error) {
	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
