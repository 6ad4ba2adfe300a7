package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-reports-go/internal/logger"
	"call-reports-go/internal/store"
	"call-reports-go/internal/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedReport(t *testing.T, st *store.Store) string {
	t.Helper()
	rep := &types.WeeklyReport{
		TenantID:         "t1",
		SubAccountID:     "acct-1",
		WeekStart:        "2025-06-02",
		TotalCalls:       10,
		AnsweredCalls:    8,
		MissedCalls:      2,
		TotalDurationSec: 600,
		AvgDurationSec:   60,
		Metrics: types.ReportMetrics{
			SchemaVersion:    types.MetricsSchemaVersion,
			ExecutiveSummary: "During the week of June 2–8, 2025, 10 calls were handled.",
			CategoryCounts: []types.CategoryCount{
				{CategoryID: 1, Name: "Billing", Count: 6, Percent: 60.0},
			},
			TopDIDs: []types.DIDVolume{{DID: "5550100", Count: 4}},
		},
	}
	id, err := st.UpsertWeeklyReport(context.Background(), rep)
	require.NoError(t, err)
	return id
}

// flakyBlobStore fails the first failCount persists, then delegates.
type flakyBlobStore struct {
	inner     BlobStore
	failCount int
	calls     int
}

func (f *flakyBlobStore) Persist(ctx context.Context, reportID, kind string, data []byte) (string, error) {
	f.calls++
	if f.calls <= f.failCount {
		return "", errors.New("disk full")
	}
	return f.inner.Persist(ctx, reportID, kind, data)
}

func TestGenerateHappyPath(t *testing.T) {
	st := newTestStore(t)
	id := seedReport(t, st)
	dir := t.TempDir()
	g := NewGenerator(st, NewFileBlobStore(dir), logger.New(), 3, time.Minute)

	require.NoError(t, g.Generate(context.Background(), id))

	rep, err := st.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rep.Status)
	assert.NotNil(t, rep.GeneratedAt)

	doc, err := os.ReadFile(rep.DocumentPath)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "WEEKLY CALL REPORT")
	assert.Contains(t, string(doc), "10 calls were handled")

	info, err := os.Stat(rep.SpreadsheetPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestGenerateCompletedReportIsNoOp(t *testing.T) {
	st := newTestStore(t)
	id := seedReport(t, st)
	g := NewGenerator(st, NewFileBlobStore(t.TempDir()), logger.New(), 3, time.Minute)

	require.NoError(t, g.Generate(context.Background(), id))
	before, err := st.GetReport(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, g.Generate(context.Background(), id))
	after, err := st.GetReport(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, before.GeneratedAt, after.GeneratedAt)
	assert.Equal(t, before.DocumentPath, after.DocumentPath)
}

func TestGenerateMissingReportIsNoOp(t *testing.T) {
	st := newTestStore(t)
	g := NewGenerator(st, NewFileBlobStore(t.TempDir()), logger.New(), 3, time.Minute)
	assert.NoError(t, g.Generate(context.Background(), "no-such-report"))
}

func TestGenerateRecoversFromTransientFailure(t *testing.T) {
	st := newTestStore(t)
	id := seedReport(t, st)
	blobs := &flakyBlobStore{inner: NewFileBlobStore(t.TempDir()), failCount: 1}
	g := NewGenerator(st, blobs, logger.New(), 3, time.Minute)

	require.NoError(t, g.Generate(context.Background(), id))

	rep, err := st.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rep.Status)
	assert.Empty(t, rep.ErrorMessage)
}

func TestGenerateExhaustedRetriesParkFailed(t *testing.T) {
	st := newTestStore(t)
	id := seedReport(t, st)
	blobs := &flakyBlobStore{inner: NewFileBlobStore(t.TempDir()), failCount: 100}
	g := NewGenerator(st, blobs, logger.New(), 2, time.Minute)

	err := g.Generate(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	rep, err := st.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, rep.Status)
	assert.Contains(t, rep.ErrorMessage, "disk full")

	// A later explicit retry with a healthy blob store can still succeed.
	g = NewGenerator(st, NewFileBlobStore(t.TempDir()), logger.New(), 3, time.Minute)
	require.NoError(t, g.Generate(context.Background(), id))
	rep, err = st.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, rep.Status)
}

// lockedStatusStore simulates a store where another process's worker holds the
// row: claiming ownership always errors.
type lockedStatusStore struct {
	failWrites int
}

func (l *lockedStatusStore) TryStartGeneration(context.Context, string) (*types.WeeklyReport, bool, error) {
	return nil, false, errors.New("database is locked")
}

func (l *lockedStatusStore) CompleteGeneration(context.Context, string, string, string) (bool, error) {
	l.failWrites++
	return false, nil
}

func (l *lockedStatusStore) FailGeneration(context.Context, string, string, bool) error {
	l.failWrites++
	return nil
}

func TestGenerateNeverRecordsFailuresItDoesNotOwn(t *testing.T) {
	reports := &lockedStatusStore{}
	g := NewGenerator(reports, NewFileBlobStore(t.TempDir()), logger.New(), 2, time.Minute)

	err := g.Generate(context.Background(), "rep-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	// The claim itself failed every time, so another worker may legitimately
	// hold generating; this worker must not have touched the status.
	assert.Equal(t, 0, reports.failWrites)
}

func TestRenderDocumentSections(t *testing.T) {
	rep := &types.WeeklyReport{
		TenantID:         "t1",
		SubAccountID:     "acct-1",
		WeekStart:        "2025-06-02",
		TotalCalls:       100,
		AnsweredCalls:    90,
		MissedCalls:      10,
		TotalDurationSec: 9000,
		AvgDurationSec:   90,
		Metrics: types.ReportMetrics{
			ExecutiveSummary: "Summary sentence.",
			CategoryCounts: []types.CategoryCount{
				{CategoryID: 1, Name: "Billing", Count: 40, Percent: 40.0},
			},
			TopDIDs: []types.DIDVolume{{DID: "5550100", Count: 12}},
			Insights: types.Insights{
				PeakHours: []string{"9am", "10am"},
				Opportunities: []types.Opportunity{
					{Category: "Billing", Count: 40, Percent: 40.0, TopSubCategory: "Refunds", SubPercent: 55.0},
				},
				Recommendations: []types.Recommendation{
					{Kind: types.RecommendationAfterHours, Message: "Add an after-hours option."},
				},
			},
		},
	}

	out, err := RenderDocument(rep)
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "Week:        June 2–8, 2025")
	assert.Contains(t, text, "Answered:          90 (90.0%)")
	assert.Contains(t, text, "Billing")
	assert.Contains(t, text, "9am, 10am")
	assert.Contains(t, text, "mostly Refunds (55.0%)")
	assert.Contains(t, text, "Add an after-hours option.")
}

func TestRenderDocumentBadWeekStart(t *testing.T) {
	_, err := RenderDocument(&types.WeeklyReport{WeekStart: "not-a-date"})
	assert.Error(t, err)
}

func TestRenderSpreadsheetSheets(t *testing.T) {
	rep := &types.WeeklyReport{
		TenantID:      "t1",
		SubAccountID:  "acct-1",
		WeekStart:     "2025-06-02",
		TotalCalls:    10,
		AnsweredCalls: 8,
		Metrics: types.ReportMetrics{
			CategoryBreakdown: []types.CategoryBreakdown{
				{CategoryID: 1, Name: "Billing", Count: 6,
					SubCategories: []types.SubCategoryCount{{Name: "Refunds", Count: 4, Percent: 66.7}}},
			},
			TopDIDs: []types.DIDVolume{{DID: "5550100", Count: 4}},
		},
	}

	out, err := RenderSpreadsheet(rep)
	require.NoError(t, err)
	assert.Greater(t, len(out), 0)
	// xlsx files are zip archives.
	assert.Equal(t, byte('P'), out[0])
	assert.Equal(t, byte('K'), out[1])
}

func TestFileBlobStore(t *testing.T) {
	dir := t.TempDir()
	f := NewFileBlobStore(dir)
	ctx := context.Background()

	path, err := f.Persist(ctx, "rep-1", KindDocument, []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rep-1", "report.txt"), path)

	// Second write overwrites in place.
	path2, err := f.Persist(ctx, "rep-1", KindDocument, []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	_, err = f.Persist(ctx, "rep-1", "bogus", nil)
	assert.Error(t, err)
}
