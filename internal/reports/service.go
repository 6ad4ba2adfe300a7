// Package reports runs the weekly aggregation pass end to end: reset (on
// regeneration), stream-aggregate, enrich with insights, upsert the report
// row, and freeze the contributing calls onto it.
package reports

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"call-reports-go/internal/aggregator"
	"call-reports-go/internal/insights"
	"call-reports-go/internal/logger"
	"call-reports-go/internal/types"
)

const (
	sampleCallLimit      = 5
	sampleTranscriptSize = 300
)

// CallStore is the call-side persistence the service needs.
type CallStore interface {
	ResetCallAssignment(ctx context.Context, tenantID string, from, to *time.Time) (int64, error)
	AssignCallsToReport(ctx context.Context, tenantID, subAccountID, serverID string, weekStart, weekEnd time.Time, reportID string) (int64, error)
	SampleCalls(ctx context.Context, tenantID, subAccountID, serverID string, weekStart, weekEnd time.Time, categoryID int64, limit int) ([]types.CallRecord, error)
}

// ReportStore is the report-side persistence the service needs.
type ReportStore interface {
	UpsertWeeklyReport(ctx context.Context, rep *types.WeeklyReport) (string, error)
	GetReport(ctx context.Context, id string) (*types.WeeklyReport, error)
}

// CategoryStore supplies read-only category names.
type CategoryStore interface {
	CategoryNames(ctx context.Context) (map[int64]string, error)
	SubCategoryNames(ctx context.Context) (map[int64]string, error)
}

// Service orchestrates aggregation and report persistence for one tenant at a
// time. The per-tenant mutex serializes the reset+reaggregate sequence, which
// is unsafe under concurrent execution on the same tenant.
type Service struct {
	agg     *aggregator.Aggregator
	calls   CallStore
	reports ReportStore
	cats    CategoryStore
	log     *logger.Logger

	mu          sync.Mutex
	tenantLocks map[string]*sync.Mutex
}

func NewService(agg *aggregator.Aggregator, calls CallStore, reports ReportStore, cats CategoryStore, log *logger.Logger) *Service {
	return &Service{
		agg:         agg,
		calls:       calls,
		reports:     reports,
		cats:        cats,
		log:         log,
		tenantLocks: make(map[string]*sync.Mutex),
	}
}

// Run aggregates one tenant, optionally bounded to [from, to) for
// regeneration, and returns the persisted reports. Supplying a bound first
// un-freezes every call inside it so the new pass sees consistent state.
func (s *Service) Run(ctx context.Context, tenantID string, from, to *time.Time) ([]types.WeeklyReport, error) {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	log := s.log.WithComponent("reports").WithField("tenant_id", tenantID)

	if from != nil || to != nil {
		n, err := s.calls.ResetCallAssignment(ctx, tenantID, from, to)
		if err != nil {
			return nil, fmt.Errorf("reset assignments: %w", err)
		}
		log.WithField("calls_unfrozen", n).Info("regeneration reset applied")
	}

	buckets, err := s.agg.Aggregate(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if len(buckets) == 0 {
		log.Info("no buckets produced")
		return nil, nil
	}

	catNames, err := s.cats.CategoryNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category names: %w", err)
	}
	subNames, err := s.cats.SubCategoryNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sub category names: %w", err)
	}

	keys := make([]aggregator.BucketKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.SubAccountID != b.SubAccountID {
			return a.SubAccountID < b.SubAccountID
		}
		if a.WeekStart != b.WeekStart {
			return a.WeekStart < b.WeekStart
		}
		return a.ServerID < b.ServerID
	})

	var out []types.WeeklyReport
	for _, key := range keys {
		rep, err := s.persistBucket(ctx, buckets[key], catNames, subNames)
		if err != nil {
			return out, fmt.Errorf("persist bucket %s/%s: %w", key.SubAccountID, key.WeekStart, err)
		}
		out = append(out, *rep)
	}
	log.WithField("reports", len(out)).Info("weekly reports persisted")
	return out, nil
}

// persistBucket upserts one report and freezes its calls. The freeze is
// best-effort indexing: the report metrics were computed from the stream, so
// a marking failure is logged without failing persistence.
func (s *Service) persistBucket(ctx context.Context, acc *aggregator.Accumulator, catNames, subNames map[int64]string) (*types.WeeklyReport, error) {
	rep := s.buildReport(ctx, acc, catNames, subNames)

	id, err := s.reports.UpsertWeeklyReport(ctx, rep)
	if err != nil {
		return nil, err
	}

	marked, err := s.calls.AssignCallsToReport(ctx,
		acc.TenantID, acc.SubAccountID, acc.ServerID,
		acc.WeekStart, acc.WeekEnd(), id)
	log := s.log.WithComponent("reports").
		WithField("report_id", id).
		WithField("week_start", rep.WeekStart)
	if err != nil {
		log.WithError(err).Warn("freezing calls failed, report kept")
	} else {
		log.WithField("calls_frozen", marked).Debug("calls frozen to report")
	}
	return rep, nil
}

func (s *Service) buildReport(ctx context.Context, acc *aggregator.Accumulator, catNames, subNames map[int64]string) *types.WeeklyReport {
	metrics := types.ReportMetrics{
		SchemaVersion:    types.MetricsSchemaVersion,
		CategoryCounts:   insights.CategoryCounts(acc, catNames),
		TopDIDs:          insights.TopDIDs(acc),
		HourlyHistogram:  acc.HourCounts,
		Insights:         insights.Build(acc, catNames, subNames),
		ExecutiveSummary: insights.ExecutiveSummary(acc, catNames),
	}
	for _, cc := range metrics.CategoryCounts {
		bd := types.CategoryBreakdown{
			CategoryID:    cc.CategoryID,
			Name:          cc.Name,
			Count:         cc.Count,
			SubCategories: insights.SubCategoryCounts(acc, cc.CategoryID, subNames),
			SampleCalls:   s.sampleCalls(ctx, acc, cc.CategoryID),
		}
		metrics.CategoryBreakdown = append(metrics.CategoryBreakdown, bd)
	}

	rep := &types.WeeklyReport{
		TenantID:            acc.TenantID,
		SubAccountID:        acc.SubAccountID,
		ServerID:            acc.ServerID,
		WeekStart:           acc.WeekStart.Format("2006-01-02"),
		TotalCalls:          acc.TotalCalls,
		AnsweredCalls:       acc.AnsweredCalls,
		MissedCalls:         acc.MissedCalls,
		CallsWithTranscript: acc.CallsWithTranscript,
		TotalDurationSec:    acc.TotalDurationSec,
		AvgDurationSec:      acc.AvgDurationSec(),
		Metrics:             metrics,
		Status:              types.StatusPending,
	}
	if !acc.FirstCallAt.IsZero() {
		first, last := acc.FirstCallAt, acc.LastCallAt
		rep.FirstCallAt = &first
		rep.LastCallAt = &last
	}
	return rep
}

// sampleCalls is decorative context for the breakdown; failures degrade to an
// empty sample set rather than failing the report.
func (s *Service) sampleCalls(ctx context.Context, acc *aggregator.Accumulator, categoryID int64) []types.SampleCall {
	calls, err := s.calls.SampleCalls(ctx,
		acc.TenantID, acc.SubAccountID, acc.ServerID, acc.WeekStart, acc.WeekEnd(),
		categoryID, sampleCallLimit)
	if err != nil {
		s.log.WithComponent("reports").WithError(err).Warn("sample call lookup failed")
		return nil
	}
	out := make([]types.SampleCall, 0, len(calls))
	for _, c := range calls {
		sample := types.SampleCall{
			DID:          c.DID,
			SourceNumber: c.SourceNumber,
			Transcript:   truncateTranscript(c.Transcript),
		}
		if c.StartedAt != nil {
			sample.Date = c.StartedAt.In(acc.Location).Format("2006-01-02")
		}
		out = append(out, sample)
	}
	return out
}

func truncateTranscript(text string) string {
	runes := []rune(text)
	if len(runes) <= sampleTranscriptSize {
		return text
	}
	return string(runes[:sampleTranscriptSize]) + "…"
}

func (s *Service) tenantLock(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.tenantLocks[tenantID] = lock
	}
	return lock
}
