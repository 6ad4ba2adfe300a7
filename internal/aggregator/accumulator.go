package aggregator

import (
	"time"

	"call-reports-go/internal/types"
)

// BucketKey identifies one weekly report bucket. WeekStart is the tenant-local
// Monday formatted YYYY-MM-DD so keys compare by value.
type BucketKey struct {
	SubAccountID string
	ServerID     string
	WeekStart    string
}

// SubCategoryRef identifies a sub-category by id or by free-text label when
// the categorizer produced one without a reference row.
type SubCategoryRef struct {
	ID    int64
	Label string
}

// Accumulator is the running aggregate for one bucket. All fields are
// commutative folds: sums, counts, and min/max instants.
type Accumulator struct {
	TenantID     string
	SubAccountID string
	ServerID     string
	WeekStart    time.Time // tenant-local Monday 00:00
	Location     *time.Location

	TotalCalls          int
	AnsweredCalls       int
	MissedCalls         int
	CallsWithTranscript int
	TotalDurationSec    int64
	FirstCallAt         time.Time // zero until the first row lands
	LastCallAt          time.Time

	CategoryCounts    map[int64]int
	SubCategoryCounts map[int64]map[SubCategoryRef]int
	DIDCounts         map[string]int
	DIDOrder          []string // first-encountered order, used for stable ties
	HourCounts        [24]int
}

func newAccumulator(tenantID, subAccountID, serverID string, weekStart time.Time, loc *time.Location) *Accumulator {
	return &Accumulator{
		TenantID:          tenantID,
		SubAccountID:      subAccountID,
		ServerID:          serverID,
		WeekStart:         weekStart,
		Location:          loc,
		CategoryCounts:    make(map[int64]int),
		SubCategoryCounts: make(map[int64]map[SubCategoryRef]int),
		DIDCounts:         make(map[string]int),
	}
}

func (a *Accumulator) add(rec *types.CallRecord, loc *time.Location) {
	a.TotalCalls++
	if isAnswered(rec.Status) {
		a.AnsweredCalls++
	} else {
		a.MissedCalls++
	}
	a.TotalDurationSec += rec.DurationSec
	if rec.Transcript != "" {
		a.CallsWithTranscript++
	}

	at := rec.StartedAt.UTC()
	if a.FirstCallAt.IsZero() || at.Before(a.FirstCallAt) {
		a.FirstCallAt = at
	}
	if a.LastCallAt.IsZero() || at.After(a.LastCallAt) {
		a.LastCallAt = at
	}

	if rec.CategoryID != nil {
		catID := *rec.CategoryID
		a.CategoryCounts[catID]++
		ref, ok := subCategoryRef(rec)
		if ok {
			subs, exists := a.SubCategoryCounts[catID]
			if !exists {
				subs = make(map[SubCategoryRef]int)
				a.SubCategoryCounts[catID] = subs
			}
			subs[ref]++
		}
	}

	if rec.DID != "" {
		if _, seen := a.DIDCounts[rec.DID]; !seen {
			a.DIDOrder = append(a.DIDOrder, rec.DID)
		}
		a.DIDCounts[rec.DID]++
	}

	a.HourCounts[rec.StartedAt.In(loc).Hour()]++
}

func subCategoryRef(rec *types.CallRecord) (SubCategoryRef, bool) {
	if rec.SubCategoryID != nil {
		return SubCategoryRef{ID: *rec.SubCategoryID, Label: rec.SubCategoryLabel}, true
	}
	if rec.SubCategoryLabel != "" {
		return SubCategoryRef{Label: rec.SubCategoryLabel}, true
	}
	return SubCategoryRef{}, false
}

// WeekEnd is the exclusive end of the bucket week.
func (a *Accumulator) WeekEnd() time.Time {
	return a.WeekStart.AddDate(0, 0, 7)
}

// AvgDurationSec is the integer-division mean duration, 0 for empty buckets.
func (a *Accumulator) AvgDurationSec() int64 {
	if a.TotalCalls == 0 {
		return 0
	}
	return a.TotalDurationSec / int64(a.TotalCalls)
}
