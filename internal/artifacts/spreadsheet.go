package artifacts

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"call-reports-go/internal/insights"
	"call-reports-go/internal/types"
)

// RenderSpreadsheet produces the xlsx artifact: Summary, Categories, Hourly,
// and Top DIDs sheets, all from the stored report row.
func RenderSpreadsheet(rep *types.WeeklyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, rep); err != nil {
		return nil, err
	}
	if err := writeCategorySheet(f, rep); err != nil {
		return nil, err
	}
	if err := writeHourlySheet(f, rep); err != nil {
		return nil, err
	}
	if err := writeDIDSheet(f, rep); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, rep *types.WeeklyReport) error {
	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Week start", rep.WeekStart},
		{"Total calls", rep.TotalCalls},
		{"Answered calls", rep.AnsweredCalls},
		{"Missed calls", rep.MissedCalls},
		{"Answer rate %", insights.Percent(rep.AnsweredCalls, rep.TotalCalls)},
		{"Calls with transcript", rep.CallsWithTranscript},
		{"Total duration", insights.FormatDuration(rep.TotalDurationSec)},
		{"Average duration", insights.FormatDuration(rep.AvgDurationSec)},
		{"Executive summary", rep.Metrics.ExecutiveSummary},
	}
	return writeRows(f, sheet, rows)
}

func writeCategorySheet(f *excelize.File, rep *types.WeeklyReport) error {
	const sheet = "Categories"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("category sheet: %w", err)
	}
	rows := [][]interface{}{{"Category", "Sub-category", "Calls", "Percent"}}
	for _, bd := range rep.Metrics.CategoryBreakdown {
		rows = append(rows, []interface{}{bd.Name, "", bd.Count, insights.Percent(bd.Count, rep.TotalCalls)})
		for _, sub := range bd.SubCategories {
			rows = append(rows, []interface{}{"", sub.Name, sub.Count, sub.Percent})
		}
	}
	return writeRows(f, sheet, rows)
}

func writeHourlySheet(f *excelize.File, rep *types.WeeklyReport) error {
	const sheet = "Hourly"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("hourly sheet: %w", err)
	}
	rows := [][]interface{}{{"Hour", "Calls"}}
	for h, n := range rep.Metrics.HourlyHistogram {
		rows = append(rows, []interface{}{fmt.Sprintf("%02d:00", h), n})
	}
	return writeRows(f, sheet, rows)
}

func writeDIDSheet(f *excelize.File, rep *types.WeeklyReport) error {
	const sheet = "Top DIDs"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("did sheet: %w", err)
	}
	rows := [][]interface{}{{"DID", "Calls"}}
	for _, dv := range rep.Metrics.TopDIDs {
		rows = append(rows, []interface{}{dv.DID, dv.Count})
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d on %s: %w", i+1, sheet, err)
		}
	}
	return nil
}
