package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-reports-go/internal/aggregator"
	"call-reports-go/internal/types"
)

func newAcc(total, answered, missed int) *aggregator.Accumulator {
	return &aggregator.Accumulator{
		TenantID:          "t1",
		SubAccountID:      "acct-1",
		WeekStart:         time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Location:          time.UTC,
		TotalCalls:        total,
		AnsweredCalls:     answered,
		MissedCalls:       missed,
		CategoryCounts:    make(map[int64]int),
		SubCategoryCounts: make(map[int64]map[aggregator.SubCategoryRef]int),
		DIDCounts:         make(map[string]int),
	}
}

func TestBuildAutomationOpportunityAtThreshold(t *testing.T) {
	// 31 of 100 calls in one category crosses the 30% automation bar.
	acc := newAcc(100, 100, 0)
	acc.CategoryCounts[1] = 31
	acc.CategoryCounts[2] = 10

	out := Build(acc, map[int64]string{1: "Billing", 2: "Support"}, nil)

	require.Len(t, out.Opportunities, 1)
	assert.Equal(t, int64(1), out.Opportunities[0].CategoryID)
	assert.Equal(t, "Billing", out.Opportunities[0].Category)
	assert.Equal(t, 31, out.Opportunities[0].Count)
	assert.Equal(t, 31.0, out.Opportunities[0].Percent)
}

func TestBuildNoOpportunityBelowThreshold(t *testing.T) {
	acc := newAcc(100, 100, 0)
	acc.CategoryCounts[1] = 29

	out := Build(acc, nil, nil)
	assert.Empty(t, out.Opportunities)
}

func TestBuildHighlightsSkipFlaggedCategories(t *testing.T) {
	acc := newAcc(100, 100, 0)
	acc.CategoryCounts[1] = 40 // flagged as opportunity
	acc.CategoryCounts[2] = 20
	acc.CategoryCounts[3] = 15
	acc.CategoryCounts[4] = 5

	out := Build(acc, nil, nil)

	require.Len(t, out.Opportunities, 1)
	require.Len(t, out.Highlights, 2)
	assert.Equal(t, int64(2), out.Highlights[0].CategoryID)
	assert.Equal(t, int64(3), out.Highlights[1].CategoryID)
}

func TestBuildLowAnswerRateRecommendation(t *testing.T) {
	acc := newAcc(100, 79, 21)

	out := Build(acc, nil, nil)

	var kinds []string
	for _, r := range out.Recommendations {
		kinds = append(kinds, r.Kind)
	}
	assert.Contains(t, kinds, types.RecommendationLowAnswerRate)
}

func TestBuildMissedVolumeNeedsBothFloors(t *testing.T) {
	// 21 missed of 100 is over both the absolute floor (>20) and the share
	// floor (>15%).
	acc := newAcc(100, 79, 21)
	out := Build(acc, nil, nil)
	var kinds []string
	for _, r := range out.Recommendations {
		kinds = append(kinds, r.Kind)
	}
	assert.Contains(t, kinds, types.RecommendationHighMissedCalls)

	// 20 missed misses the absolute floor even at a 20% share.
	acc = newAcc(100, 80, 20)
	out = Build(acc, nil, nil)
	for _, r := range out.Recommendations {
		assert.NotEqual(t, types.RecommendationHighMissedCalls, r.Kind)
	}
}

func TestBuildPeakHours(t *testing.T) {
	acc := newAcc(100, 100, 0)
	acc.HourCounts[10] = 15 // 15% >= 10% threshold
	acc.HourCounts[14] = 9  // 9% < 10%
	acc.HourCounts[9] = 76

	out := Build(acc, nil, nil)

	assert.Contains(t, out.PeakHours, "10am")
	assert.NotContains(t, out.PeakHours, "2pm")
	assert.Contains(t, out.PeakHours, "9am")
}

func TestBuildAfterHoursRecommendation(t *testing.T) {
	acc := newAcc(100, 100, 0)
	acc.HourCounts[7] = 6   // before 8am
	acc.HourCounts[19] = 5  // after 6pm
	acc.HourCounts[10] = 89 // business hours

	out := Build(acc, nil, nil)

	assert.Equal(t, 11.0, out.AfterHoursPercent)
	var kinds []string
	for _, r := range out.Recommendations {
		kinds = append(kinds, r.Kind)
	}
	assert.Contains(t, kinds, types.RecommendationAfterHours)
}

func TestBuildEmptyWeek(t *testing.T) {
	acc := newAcc(0, 0, 0)
	out := Build(acc, nil, nil)
	assert.Empty(t, out.Opportunities)
	assert.Empty(t, out.Highlights)
	assert.Empty(t, out.Recommendations)
	assert.Empty(t, out.PeakHours)
	assert.Equal(t, 0.0, out.AfterHoursPercent)
}

func TestTopDIDsTiesKeepFirstSeenOrder(t *testing.T) {
	acc := newAcc(6, 6, 0)
	acc.DIDOrder = []string{"111", "222", "333"}
	acc.DIDCounts = map[string]int{"111": 2, "222": 3, "333": 2}

	out := TopDIDs(acc)

	require.Len(t, out, 3)
	assert.Equal(t, "222", out[0].DID)
	assert.Equal(t, "111", out[1].DID)
	assert.Equal(t, "333", out[2].DID)
}

func TestTopDIDsCapsAtTen(t *testing.T) {
	acc := newAcc(12, 12, 0)
	for i := 0; i < 12; i++ {
		did := string(rune('a' + i))
		acc.DIDOrder = append(acc.DIDOrder, did)
		acc.DIDCounts[did] = 1
	}
	assert.Len(t, TopDIDs(acc), 10)
}

func TestCategoryCountsDescendingWithIDTieBreak(t *testing.T) {
	acc := newAcc(30, 30, 0)
	acc.CategoryCounts[5] = 10
	acc.CategoryCounts[2] = 10
	acc.CategoryCounts[9] = 10

	out := CategoryCounts(acc, map[int64]string{2: "B", 5: "E", 9: "I"})

	require.Len(t, out, 3)
	assert.Equal(t, int64(2), out[0].CategoryID)
	assert.Equal(t, int64(5), out[1].CategoryID)
	assert.Equal(t, int64(9), out[2].CategoryID)
	assert.Equal(t, 33.3, out[0].Percent)
}

func TestSubCategoryCountsShareOfCategory(t *testing.T) {
	acc := newAcc(20, 20, 0)
	acc.CategoryCounts[1] = 10
	acc.SubCategoryCounts[1] = map[aggregator.SubCategoryRef]int{
		{ID: 4}:                  6,
		{Label: "walk-in quote"}: 4,
	}

	out := SubCategoryCounts(acc, 1, map[int64]string{4: "Renewal"})

	require.Len(t, out, 2)
	assert.Equal(t, "Renewal", out[0].Name)
	assert.Equal(t, 60.0, out[0].Percent)
	assert.Equal(t, "walk-in quote", out[1].Name)
	assert.Equal(t, 40.0, out[1].Percent)
}

func TestPercentRounding(t *testing.T) {
	assert.Equal(t, 0.0, Percent(5, 0))
	assert.Equal(t, 33.3, Percent(1, 3))
	assert.Equal(t, 66.7, Percent(2, 3))
	assert.Equal(t, 100.0, Percent(7, 7))
}

func TestHourLabels(t *testing.T) {
	assert.Equal(t, "12am", hourLabel(0))
	assert.Equal(t, "8am", hourLabel(8))
	assert.Equal(t, "12pm", hourLabel(12))
	assert.Equal(t, "11pm", hourLabel(23))
}

func TestExecutiveSummaryEmptyWeek(t *testing.T) {
	acc := newAcc(0, 0, 0)
	got := ExecutiveSummary(acc, nil)
	assert.Equal(t, "No calls were recorded during the week of June 2–8, 2025.", got)
}

func TestExecutiveSummaryFullWeek(t *testing.T) {
	acc := newAcc(100, 95, 5)
	acc.TotalDurationSec = 100 * 90
	acc.CategoryCounts[1] = 40

	got := ExecutiveSummary(acc, map[int64]string{1: "Billing"})

	assert.Contains(t, got, "During the week of June 2–8, 2025, 100 calls were handled.")
	assert.Contains(t, got, "95.0% of calls were answered")
	assert.Contains(t, got, "average duration of 1 minute 30 seconds")
	assert.Contains(t, got, "The most common topic was Billing with 40 calls (40.0%).")
	// 95% answered is at or above the cutoff, so no missed-calls sentence.
	assert.NotContains(t, got, "went unanswered")
}

func TestExecutiveSummaryMentionsMissedCalls(t *testing.T) {
	acc := newAcc(100, 85, 15)
	got := ExecutiveSummary(acc, nil)
	assert.Contains(t, got, "15 calls went unanswered during the week.")
}

func TestFormatWeekRange(t *testing.T) {
	assert.Equal(t, "June 2–8, 2025",
		FormatWeekRange(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "June 30 – July 6, 2025",
		FormatWeekRange(time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "December 29, 2025 – January 4, 2026",
		FormatWeekRange(time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0 seconds", FormatDuration(0))
	assert.Equal(t, "45 seconds", FormatDuration(45))
	assert.Equal(t, "1 minute", FormatDuration(60))
	assert.Equal(t, "2 minutes 5 seconds", FormatDuration(125))
	assert.Equal(t, "1 hour 1 second", FormatDuration(3601))
	assert.Equal(t, "2 hours 30 minutes", FormatDuration(9000))
}
