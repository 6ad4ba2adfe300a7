package artifacts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"call-reports-go/internal/insights"
	"call-reports-go/internal/types"
)

// The document artifact is a plain-text executive report rendered purely from
// the stored report row; nothing is recomputed from call data.
var documentTemplate = template.Must(template.New("report").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`WEEKLY CALL REPORT
==================
Tenant:      {{.Report.TenantID}}
Sub-account: {{.Report.SubAccountID}}
Week:        {{.WeekRange}}

{{.Report.Metrics.ExecutiveSummary}}

TOTALS
------
Total calls:       {{.Report.TotalCalls}}
Answered:          {{.Report.AnsweredCalls}} ({{printf "%.1f" .AnswerRate}}%)
Missed:            {{.Report.MissedCalls}}
With transcript:   {{.Report.CallsWithTranscript}}
Total duration:    {{.TotalDuration}}
Average duration:  {{.AvgDuration}}
{{- if .Report.Metrics.CategoryCounts}}

CATEGORIES
----------
{{- range .Report.Metrics.CategoryCounts}}
{{printf "%-30s %6d  %5.1f%%" .Name .Count .Percent}}
{{- end}}
{{- end}}
{{- if .Report.Metrics.TopDIDs}}

TOP NUMBERS
-----------
{{- range .Report.Metrics.TopDIDs}}
{{printf "%-30s %6d" .DID .Count}}
{{- end}}
{{- end}}
{{- if .Report.Metrics.Insights.PeakHours}}

PEAK HOURS
----------
{{join .Report.Metrics.Insights.PeakHours ", "}}
{{- end}}
{{- if .Report.Metrics.Insights.Opportunities}}

AUTOMATION OPPORTUNITIES
------------------------
{{- range .Report.Metrics.Insights.Opportunities}}
- {{.Category}}: {{.Count}} calls ({{printf "%.1f" .Percent}}%){{if .TopSubCategory}}, mostly {{.TopSubCategory}} ({{printf "%.1f" .SubPercent}}%){{end}}
{{- end}}
{{- end}}
{{- if .Report.Metrics.Insights.Recommendations}}

RECOMMENDATIONS
---------------
{{- range .Report.Metrics.Insights.Recommendations}}
- {{.Message}}
{{- end}}
{{- end}}
`))

type documentData struct {
	Report        *types.WeeklyReport
	WeekRange     string
	AnswerRate    float64
	TotalDuration string
	AvgDuration   string
}

// RenderDocument produces the plain-text document artifact.
func RenderDocument(rep *types.WeeklyReport) ([]byte, error) {
	ws, err := time.Parse("2006-01-02", rep.WeekStart)
	if err != nil {
		return nil, fmt.Errorf("parse week start %q: %w", rep.WeekStart, err)
	}
	data := documentData{
		Report:        rep,
		WeekRange:     insights.FormatWeekRange(ws),
		AnswerRate:    insights.Percent(rep.AnsweredCalls, rep.TotalCalls),
		TotalDuration: insights.FormatDuration(rep.TotalDurationSec),
		AvgDuration:   insights.FormatDuration(rep.AvgDurationSec),
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	return buf.Bytes(), nil
}
