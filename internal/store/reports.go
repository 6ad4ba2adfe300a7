package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"call-reports-go/internal/types"
)

var reportColumns = []string{
	"id", "tenant_id", "sub_account_id", "server_id", "week_start",
	"total_calls", "answered_calls", "missed_calls", "calls_with_transcript",
	"total_duration_sec", "avg_duration_sec", "first_call_at", "last_call_at",
	"metrics_json", "status", "document_path", "spreadsheet_path",
	"error_message", "generated_at", "created_at", "updated_at",
}

// UpsertWeeklyReport persists one bucket snapshot keyed by
// (tenant, sub-account, server, week-start), the same key the aggregator
// buckets by, so two servers in one week never share a row. Re-running
// aggregation overwrites all metric and derived fields; status and the
// artifact fields belong to the artifact generator and are never touched on
// conflict.
func (s *Store) UpsertWeeklyReport(ctx context.Context, rep *types.WeeklyReport) (string, error) {
	metricsJSON, err := json.Marshal(rep.Metrics)
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}
	if rep.ID == "" {
		rep.ID = uuid.New().String()
	}

	query := `INSERT INTO weekly_reports (
id, tenant_id, sub_account_id, server_id, week_start,
total_calls, answered_calls, missed_calls, calls_with_transcript,
total_duration_sec, avg_duration_sec, first_call_at, last_call_at,
metrics_json, status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(tenant_id, sub_account_id, server_id, week_start) DO UPDATE SET
total_calls=excluded.total_calls,
answered_calls=excluded.answered_calls,
missed_calls=excluded.missed_calls,
calls_with_transcript=excluded.calls_with_transcript,
total_duration_sec=excluded.total_duration_sec,
avg_duration_sec=excluded.avg_duration_sec,
first_call_at=excluded.first_call_at,
last_call_at=excluded.last_call_at,
metrics_json=excluded.metrics_json,
updated_at=strftime('%Y-%m-%dT%H:%M:%SZ','now')`

	_, err = s.db.ExecContext(ctx, query,
		rep.ID, rep.TenantID, rep.SubAccountID, rep.ServerID, rep.WeekStart,
		rep.TotalCalls, rep.AnsweredCalls, rep.MissedCalls, rep.CallsWithTranscript,
		rep.TotalDurationSec, rep.AvgDurationSec,
		timeToDB(rep.FirstCallAt), timeToDB(rep.LastCallAt),
		string(metricsJSON), types.StatusPending,
	)
	if err != nil {
		return "", fmt.Errorf("upsert report: %w", err)
	}

	// On conflict the pre-existing id survives; read it back.
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM weekly_reports WHERE tenant_id = ? AND sub_account_id = ? AND server_id = ? AND week_start = ?`,
		rep.TenantID, rep.SubAccountID, rep.ServerID, rep.WeekStart).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("lookup report id: %w", err)
	}
	rep.ID = id
	return id, nil
}

// GetReport loads one report; absent rows return (nil, nil).
func (s *Store) GetReport(ctx context.Context, id string) (*types.WeeklyReport, error) {
	row := sq.Select(reportColumns...).
		From("weekly_reports").
		Where(sq.Eq{"id": id}).
		RunWith(s.db).QueryRowContext(ctx)
	rep, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// ListReportsByStatus returns up to limit reports in the given status,
// oldest first. The background worker uses this to find artifact work.
func (s *Store) ListReportsByStatus(ctx context.Context, status string, limit int) ([]types.WeeklyReport, error) {
	rows, err := sq.Select(reportColumns...).
		From("weekly_reports").
		Where(sq.Eq{"status": status}).
		OrderBy("updated_at ASC").
		Limit(uint64(limit)).
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []types.WeeklyReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

// TryStartGeneration transitions pending|failed -> generating inside a write
// transaction. It returns the loaded report and whether this caller now owns
// generation. Completed and in-flight reports return ownership false; a
// vanished row is tolerated as (nil, false, nil).
func (s *Store) TryStartGeneration(ctx context.Context, reportID string) (*types.WeeklyReport, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+columnList(reportColumns)+` FROM weekly_reports WHERE id = ?`, reportID)
	rep, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	switch rep.Status {
	case types.StatusCompleted, types.StatusGenerating:
		return rep, false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE weekly_reports SET status = ?, error_message = '', updated_at = ? WHERE id = ?`,
		types.StatusGenerating, nowDB(), reportID)
	if err != nil {
		return nil, false, fmt.Errorf("start generation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	rep.Status = types.StatusGenerating
	rep.ErrorMessage = ""
	return rep, true, nil
}

// CompleteGeneration writes artifact locations and flips generating ->
// completed. It refuses to overwrite a report another worker has since
// taken over, returning false in that case.
func (s *Store) CompleteGeneration(ctx context.Context, reportID, documentPath, spreadsheetPath string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE weekly_reports
		 SET status = ?, document_path = ?, spreadsheet_path = ?,
		     error_message = '', generated_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		types.StatusCompleted, documentPath, spreadsheetPath,
		nowDB(), nowDB(), reportID, types.StatusGenerating)
	if err != nil {
		return false, fmt.Errorf("complete generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// FailGeneration records a render error. With budget remaining the report
// goes back to pending for the next attempt; exhausted budget parks it in
// the terminal failed state. Only a report still in generating is touched.
func (s *Store) FailGeneration(ctx context.Context, reportID, errMsg string, final bool) error {
	next := types.StatusPending
	if final {
		next = types.StatusFailed
	}
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE weekly_reports SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		next, errMsg, nowDB(), reportID, types.StatusGenerating)
	if err != nil {
		return fmt.Errorf("fail generation: %w", err)
	}
	return nil
}

func columnList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func scanReport(row rowScanner) (*types.WeeklyReport, error) {
	var (
		rep         types.WeeklyReport
		firstCall   sql.NullString
		lastCall    sql.NullString
		generatedAt sql.NullString
		createdAt   sql.NullString
		updatedAt   sql.NullString
		metricsJSON string
	)
	err := row.Scan(
		&rep.ID, &rep.TenantID, &rep.SubAccountID, &rep.ServerID, &rep.WeekStart,
		&rep.TotalCalls, &rep.AnsweredCalls, &rep.MissedCalls, &rep.CallsWithTranscript,
		&rep.TotalDurationSec, &rep.AvgDurationSec, &firstCall, &lastCall,
		&metricsJSON, &rep.Status, &rep.DocumentPath, &rep.SpreadsheetPath,
		&rep.ErrorMessage, &generatedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rep.FirstCallAt = timeFromDB(firstCall)
	rep.LastCallAt = timeFromDB(lastCall)
	rep.GeneratedAt = timeFromDB(generatedAt)
	if t := timeFromDB(createdAt); t != nil {
		rep.CreatedAt = *t
	}
	if t := timeFromDB(updatedAt); t != nil {
		rep.UpdatedAt = *t
	}
	// Older rows may predate the current metrics shape; absent fields stay zero.
	if metricsJSON != "" {
		if err := json.Unmarshal([]byte(metricsJSON), &rep.Metrics); err != nil {
			rep.Metrics = types.ReportMetrics{SchemaVersion: types.MetricsSchemaVersion}
		}
	}
	return &rep, nil
}
