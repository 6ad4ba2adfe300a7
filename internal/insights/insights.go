// Package insights derives rule-based findings and a deterministic executive
// summary from one finished weekly accumulator. Everything here is pure: no
// I/O, no clocks, same input same output.
package insights

import (
	"fmt"
	"math"
	"sort"

	"call-reports-go/internal/aggregator"
	"call-reports-go/internal/types"
)

const (
	automationShare   = 0.30
	lowAnswerRate     = 0.80
	missedCountFloor  = 20
	missedShare       = 0.15
	peakHourShare     = 0.10
	afterHoursShare   = 0.10
	highlightTopN     = 3
	topDIDLimit       = 10
	missedSummaryRate = 0.90
)

// Build applies every insight rule independently to the accumulator.
func Build(acc *aggregator.Accumulator, catNames, subNames map[int64]string) types.Insights {
	out := types.Insights{}
	total := acc.TotalCalls

	ranked := rankCategories(acc)
	flagged := make(map[int64]bool)

	// Rule 1: automation candidates.
	for _, rc := range ranked {
		if total == 0 || float64(rc.count)/float64(total) < automationShare {
			continue
		}
		flagged[rc.id] = true
		opp := types.Opportunity{
			CategoryID: rc.id,
			Category:   categoryName(rc.id, catNames),
			Count:      rc.count,
			Percent:    Percent(rc.count, total),
		}
		if top, ok := topSubCategory(acc, rc.id, subNames); ok {
			opp.TopSubCategory = top.Name
			opp.SubPercent = Percent(top.Count, rc.count)
		}
		out.Opportunities = append(out.Opportunities, opp)
	}

	// Rule 2: sub-category highlights for the remaining top categories.
	for i, rc := range ranked {
		if i >= highlightTopN {
			break
		}
		if flagged[rc.id] {
			continue
		}
		hl := types.Highlight{
			CategoryID: rc.id,
			Category:   categoryName(rc.id, catNames),
			Count:      rc.count,
		}
		if top, ok := topSubCategory(acc, rc.id, subNames); ok {
			hl.TopSubCategory = top.Name
			hl.SubPercent = Percent(top.Count, rc.count)
		}
		out.Highlights = append(out.Highlights, hl)
	}

	// Rule 3: low answer rate.
	if total > 0 && float64(acc.AnsweredCalls)/float64(total) < lowAnswerRate {
		out.Recommendations = append(out.Recommendations, types.Recommendation{
			Kind: types.RecommendationLowAnswerRate,
			Message: fmt.Sprintf("Only %.1f%% of calls were answered this week; review staffing and call routing.",
				Percent(acc.AnsweredCalls, total)),
		})
	}

	// Rule 4: high missed volume.
	if acc.MissedCalls > missedCountFloor && total > 0 &&
		float64(acc.MissedCalls)/float64(total) > missedShare {
		out.Recommendations = append(out.Recommendations, types.Recommendation{
			Kind: types.RecommendationHighMissedCalls,
			Message: fmt.Sprintf("%d calls (%.1f%%) were missed; consider overflow handling or a callback queue.",
				acc.MissedCalls, Percent(acc.MissedCalls, total)),
		})
	}

	// Rule 5: peak hours.
	out.PeakHours = peakHours(acc)

	// Rule 6: after-hours volume.
	after := 0
	for h, n := range acc.HourCounts {
		if h < 8 || h >= 18 {
			after += n
		}
	}
	out.AfterHoursPercent = Percent(after, total)
	if total > 0 && float64(after)/float64(total) > afterHoursShare {
		out.Recommendations = append(out.Recommendations, types.Recommendation{
			Kind: types.RecommendationAfterHours,
			Message: fmt.Sprintf("%.1f%% of calls arrived outside business hours; an after-hours answering option could capture them.",
				out.AfterHoursPercent),
		})
	}

	return out
}

// TopDIDs returns the ten busiest inbound numbers, ties kept in
// first-encountered order.
func TopDIDs(acc *aggregator.Accumulator) []types.DIDVolume {
	out := make([]types.DIDVolume, 0, len(acc.DIDOrder))
	for _, did := range acc.DIDOrder {
		out = append(out, types.DIDVolume{DID: did, Count: acc.DIDCounts[did]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > topDIDLimit {
		out = out[:topDIDLimit]
	}
	return out
}

// CategoryCounts lists category volumes in descending order.
func CategoryCounts(acc *aggregator.Accumulator, catNames map[int64]string) []types.CategoryCount {
	ranked := rankCategories(acc)
	out := make([]types.CategoryCount, 0, len(ranked))
	for _, rc := range ranked {
		out = append(out, types.CategoryCount{
			CategoryID: rc.id,
			Name:       categoryName(rc.id, catNames),
			Count:      rc.count,
			Percent:    Percent(rc.count, acc.TotalCalls),
		})
	}
	return out
}

// SubCategoryCounts lists one category's sub-category volumes in descending
// order with shares relative to the category total.
func SubCategoryCounts(acc *aggregator.Accumulator, categoryID int64, subNames map[int64]string) []types.SubCategoryCount {
	subs := acc.SubCategoryCounts[categoryID]
	if len(subs) == 0 {
		return nil
	}
	catTotal := acc.CategoryCounts[categoryID]
	out := make([]types.SubCategoryCount, 0, len(subs))
	for ref, n := range subs {
		out = append(out, types.SubCategoryCount{
			SubCategoryID: ref.ID,
			Name:          subCategoryName(ref, subNames),
			Count:         n,
			Percent:       Percent(n, catTotal),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Percent is part/total as a percentage rounded to one decimal.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

type rankedCategory struct {
	id    int64
	count int
}

func rankCategories(acc *aggregator.Accumulator) []rankedCategory {
	out := make([]rankedCategory, 0, len(acc.CategoryCounts))
	for id, n := range acc.CategoryCounts {
		out = append(out, rankedCategory{id: id, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].id < out[j].id
	})
	return out
}

func topSubCategory(acc *aggregator.Accumulator, categoryID int64, subNames map[int64]string) (types.SubCategoryCount, bool) {
	subs := SubCategoryCounts(acc, categoryID, subNames)
	if len(subs) == 0 {
		return types.SubCategoryCount{}, false
	}
	return subs[0], true
}

func peakHours(acc *aggregator.Accumulator) []string {
	if acc.TotalCalls == 0 {
		return nil
	}
	var out []string
	for h := 0; h < 24; h++ {
		if float64(acc.HourCounts[h])/float64(acc.TotalCalls) >= peakHourShare {
			out = append(out, hourLabel(h))
		}
	}
	return out
}

func hourLabel(h int) string {
	switch {
	case h == 0:
		return "12am"
	case h < 12:
		return fmt.Sprintf("%dam", h)
	case h == 12:
		return "12pm"
	default:
		return fmt.Sprintf("%dpm", h-12)
	}
}

func categoryName(id int64, names map[int64]string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Category %d", id)
}

func subCategoryName(ref aggregator.SubCategoryRef, names map[int64]string) string {
	if name, ok := names[ref.ID]; ok && name != "" {
		return name
	}
	if ref.Label != "" {
		return ref.Label
	}
	return fmt.Sprintf("Sub-category %d", ref.ID)
}
