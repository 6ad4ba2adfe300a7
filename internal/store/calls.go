package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"call-reports-go/internal/types"
)

var callColumns = []string{
	"id", "tenant_id", "sub_account_id", "server_id", "provider_call_id",
	"started_at", "duration_sec", "did", "source_number", "status",
	"transcript", "summary", "category_id", "sub_category_id",
	"sub_category_label", "confidence", "assignment_source", "assigned_at",
	"report_id", "created_at", "updated_at",
}

// InsertCall stores a freshly ingested call and returns its id.
func (s *Store) InsertCall(ctx context.Context, c *types.CallRecord) (int64, error) {
	res, err := sq.Insert("call_records").
		Columns("tenant_id", "sub_account_id", "server_id", "provider_call_id",
			"started_at", "duration_sec", "did", "source_number", "status",
			"transcript", "summary", "category_id", "sub_category_id",
			"sub_category_label", "confidence", "assignment_source", "assigned_at").
		Values(c.TenantID, c.SubAccountID, c.ServerID, c.ProviderCallID,
			timeToDB(c.StartedAt), c.DurationSec, c.DID, c.SourceNumber, c.Status,
			c.Transcript, c.Summary, c.CategoryID, c.SubCategoryID,
			c.SubCategoryLabel, c.Confidence, c.AssignmentSource, timeToDB(c.AssignedAt)).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert call: %w", err)
	}
	return res.LastInsertId()
}

// ListCalls streams one page of a tenant's calls in ascending started_at
// order. Rows with a null started_at sort first and are skipped downstream.
func (s *Store) ListCalls(ctx context.Context, tenantID string, from, to *time.Time, limit, offset int) ([]types.CallRecord, error) {
	b := sq.Select(callColumns...).
		From("call_records").
		Where(sq.Eq{"tenant_id": tenantID})
	if from != nil {
		b = b.Where(sq.GtOrEq{"started_at": from.UTC().Format(time.RFC3339)})
	}
	if to != nil {
		b = b.Where(sq.Lt{"started_at": to.UTC().Format(time.RFC3339)})
	}
	b = b.OrderBy("started_at ASC", "id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []types.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ResetCallAssignment nulls report_id for a tenant's calls inside [from, to).
// This is the only path that un-freezes calls; it runs before a regeneration
// pass re-streams the range.
func (s *Store) ResetCallAssignment(ctx context.Context, tenantID string, from, to *time.Time) (int64, error) {
	b := sq.Update("call_records").
		Set("report_id", nil).
		Set("updated_at", nowDB()).
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(sq.NotEq{"report_id": nil})
	if from != nil {
		b = b.Where(sq.GtOrEq{"started_at": from.UTC().Format(time.RFC3339)})
	}
	if to != nil {
		b = b.Where(sq.Lt{"started_at": to.UTC().Format(time.RFC3339)})
	}
	res, err := b.RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset call assignment: %w", err)
	}
	return res.RowsAffected()
}

// AssignCallsToReport freezes every still-unassigned call in the bucket's week
// onto the given report. Scoping to report_id IS NULL keeps a call from ever
// being claimed by two reports, and the server filter matches the bucket key
// exactly so sibling server buckets never claim each other's calls.
func (s *Store) AssignCallsToReport(ctx context.Context, tenantID, subAccountID, serverID string, weekStart, weekEnd time.Time, reportID string) (int64, error) {
	res, err := sq.Update("call_records").
		Set("report_id", reportID).
		Set("updated_at", nowDB()).
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(sq.Eq{"sub_account_id": subAccountID}).
		Where(sq.Eq{"server_id": serverID}).
		Where(sq.Eq{"report_id": nil}).
		Where(sq.GtOrEq{"started_at": weekStart.UTC().Format(time.RFC3339)}).
		Where(sq.Lt{"started_at": weekEnd.UTC().Format(time.RFC3339)}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("assign calls: %w", err)
	}
	return res.RowsAffected()
}

// SampleCalls picks up to limit transcribed calls for one category in one
// bucket week, preferring calls with a DID and longer transcripts.
func (s *Store) SampleCalls(ctx context.Context, tenantID, subAccountID, serverID string, weekStart, weekEnd time.Time, categoryID int64, limit int) ([]types.CallRecord, error) {
	rows, err := sq.Select(callColumns...).
		From("call_records").
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(sq.Eq{"sub_account_id": subAccountID}).
		Where(sq.Eq{"server_id": serverID}).
		Where(sq.Eq{"category_id": categoryID}).
		Where(sq.NotEq{"transcript": ""}).
		Where(sq.GtOrEq{"started_at": weekStart.UTC().Format(time.RFC3339)}).
		Where(sq.Lt{"started_at": weekEnd.UTC().Format(time.RFC3339)}).
		OrderBy("(did <> '') DESC", "length(transcript) DESC", "id ASC").
		Limit(uint64(limit)).
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample calls: %w", err)
	}
	defer rows.Close()

	var out []types.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ClearLowConfidenceAssignments reverts every non-manual categorization below
// threshold and returns the number of calls reset.
func (s *Store) ClearLowConfidenceAssignments(ctx context.Context, threshold float64) (int64, error) {
	res, err := sq.Update("call_records").
		Set("category_id", nil).
		Set("sub_category_id", nil).
		Set("sub_category_label", "").
		Set("confidence", nil).
		Set("assignment_source", "").
		Set("assigned_at", nil).
		Set("updated_at", nowDB()).
		Where(sq.Lt{"confidence": threshold}).
		Where(sq.NotEq{"confidence": nil}).
		Where(sq.NotEq{"assignment_source": types.SourceManual}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear low confidence: %w", err)
	}
	return res.RowsAffected()
}

// OverrideCategory applies a manual categorization: source becomes manual and
// confidence 1.0, exempting the call from future threshold sweeps. Returns
// false when the call row no longer exists.
func (s *Store) OverrideCategory(ctx context.Context, callID int64, categoryID, subCategoryID *int64, subCategoryLabel string) (bool, error) {
	res, err := sq.Update("call_records").
		Set("category_id", categoryID).
		Set("sub_category_id", subCategoryID).
		Set("sub_category_label", subCategoryLabel).
		Set("confidence", 1.0).
		Set("assignment_source", types.SourceManual).
		Set("assigned_at", nowDB()).
		Set("updated_at", nowDB()).
		Where(sq.Eq{"id": callID}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("override category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetCall fetches one call row; absent rows return (nil, nil).
func (s *Store) GetCall(ctx context.Context, id int64) (*types.CallRecord, error) {
	row := sq.Select(callColumns...).
		From("call_records").
		Where(sq.Eq{"id": id}).
		RunWith(s.db).QueryRowContext(ctx)
	rec, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountCallsForReport counts how many calls are frozen onto a report.
func (s *Store) CountCallsForReport(ctx context.Context, reportID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM call_records WHERE report_id = ?`, reportID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count report calls: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCall(row rowScanner) (types.CallRecord, error) {
	var (
		rec        types.CallRecord
		startedAt  sql.NullString
		assignedAt sql.NullString
		createdAt  sql.NullString
		updatedAt  sql.NullString
		catID      sql.NullInt64
		subCatID   sql.NullInt64
		confidence sql.NullFloat64
		reportID   sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.SubAccountID, &rec.ServerID, &rec.ProviderCallID,
		&startedAt, &rec.DurationSec, &rec.DID, &rec.SourceNumber, &rec.Status,
		&rec.Transcript, &rec.Summary, &catID, &subCatID,
		&rec.SubCategoryLabel, &confidence, &rec.AssignmentSource, &assignedAt,
		&reportID, &createdAt, &updatedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.StartedAt = timeFromDB(startedAt)
	rec.AssignedAt = timeFromDB(assignedAt)
	if t := timeFromDB(createdAt); t != nil {
		rec.CreatedAt = *t
	}
	if t := timeFromDB(updatedAt); t != nil {
		rec.UpdatedAt = *t
	}
	if catID.Valid {
		rec.CategoryID = &catID.Int64
	}
	if subCatID.Valid {
		rec.SubCategoryID = &subCatID.Int64
	}
	if confidence.Valid {
		rec.Confidence = &confidence.Float64
	}
	if reportID.Valid && reportID.String != "" {
		rec.ReportID = &reportID.String
	}
	return rec, nil
}
