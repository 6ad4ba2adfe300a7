package reports

import (
	"context"
	"fmt"
	"time"

	"call-reports-go/internal/insights"
	"call-reports-go/internal/types"
)

// ReportView assembles the read model the admin API renders for one report.
// A failed report keeps its metrics; only the artifacts read as unavailable.
func (s *Service) ReportView(ctx context.Context, reportID string) (*types.ReportView, error) {
	rep, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if rep == nil {
		return nil, nil
	}

	view := &types.ReportView{
		ReportID:         rep.ID,
		TenantID:         rep.TenantID,
		SubAccountID:     rep.SubAccountID,
		WeekStart:        rep.WeekStart,
		Status:           rep.Status,
		ErrorMessage:     rep.ErrorMessage,
		ExecutiveSummary: rep.Metrics.ExecutiveSummary,
		TotalCalls:       rep.TotalCalls,
		AnsweredCalls:    rep.AnsweredCalls,
		MissedCalls:      rep.MissedCalls,
		AnswerRate:       insights.Percent(rep.AnsweredCalls, rep.TotalCalls),
		AvgDuration:      insights.FormatDuration(rep.AvgDurationSec),
		TotalDuration:    insights.FormatDuration(rep.TotalDurationSec),
		Metrics:          rep.Metrics,
		DocumentReady:    rep.Status == types.StatusCompleted && rep.DocumentPath != "",
		SpreadsheetReady: rep.Status == types.StatusCompleted && rep.SpreadsheetPath != "",
	}
	if ws, err := time.Parse("2006-01-02", rep.WeekStart); err == nil {
		view.WeekEnd = ws.AddDate(0, 0, 6).Format("2006-01-02")
	}
	return view, nil
}
