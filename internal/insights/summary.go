package insights

import (
	"fmt"
	"strings"
	"time"

	"call-reports-go/internal/aggregator"
)

// ExecutiveSummary renders the 2-4 sentence week overview from the
// accumulator. The template is fully deterministic.
func ExecutiveSummary(acc *aggregator.Accumulator, catNames map[int64]string) string {
	weekRange := FormatWeekRange(acc.WeekStart)

	if acc.TotalCalls == 0 {
		return fmt.Sprintf("No calls were recorded during the week of %s.", weekRange)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "During the week of %s, %s handled.",
		weekRange, pluralize(acc.TotalCalls, "call was", "calls were"))

	answerRate := Percent(acc.AnsweredCalls, acc.TotalCalls)
	fmt.Fprintf(&b, " %.1f%% of calls were answered, with an average duration of %s.",
		answerRate, FormatDuration(acc.AvgDurationSec()))

	if ranked := rankCategories(acc); len(ranked) > 0 {
		top := ranked[0]
		fmt.Fprintf(&b, " The most common topic was %s with %s (%.1f%%).",
			categoryName(top.id, catNames),
			pluralize(top.count, "call", "calls"),
			Percent(top.count, acc.TotalCalls))
	}

	if acc.MissedCalls > 0 && float64(acc.AnsweredCalls)/float64(acc.TotalCalls) < missedSummaryRate {
		fmt.Fprintf(&b, " %s went unanswered during the week.",
			pluralize(acc.MissedCalls, "call", "calls"))
	}

	return b.String()
}

// FormatWeekRange renders the Monday-to-Sunday span, repeating the month and
// year only when they differ across the boundary.
func FormatWeekRange(weekStart time.Time) string {
	start := weekStart
	end := weekStart.AddDate(0, 0, 6)

	switch {
	case start.Year() != end.Year():
		return fmt.Sprintf("%s %d, %d – %s %d, %d",
			start.Month(), start.Day(), start.Year(),
			end.Month(), end.Day(), end.Year())
	case start.Month() != end.Month():
		return fmt.Sprintf("%s %d – %s %d, %d",
			start.Month(), start.Day(),
			end.Month(), end.Day(), end.Year())
	default:
		return fmt.Sprintf("%s %d–%d, %d",
			start.Month(), start.Day(), end.Day(), end.Year())
	}
}

// FormatDuration renders seconds as "1 hour 2 minutes 5 seconds", dropping
// zero components. Zero renders as "0 seconds".
func FormatDuration(sec int64) string {
	if sec <= 0 {
		return "0 seconds"
	}
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60

	var parts []string
	if h > 0 {
		parts = append(parts, pluralize64(h, "hour", "hours"))
	}
	if m > 0 {
		parts = append(parts, pluralize64(m, "minute", "minutes"))
	}
	if s > 0 {
		parts = append(parts, pluralize64(s, "second", "seconds"))
	}
	return strings.Join(parts, " ")
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

func pluralize64(n int64, singular, plural string) string {
	return pluralize(int(n), singular, plural)
}
