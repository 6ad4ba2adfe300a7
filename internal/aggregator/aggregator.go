package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"call-reports-go/internal/logger"
	"call-reports-go/internal/types"
)

// CallLister streams pages of a tenant's calls in ascending started_at order.
type CallLister interface {
	ListCalls(ctx context.Context, tenantID string, from, to *time.Time, limit, offset int) ([]types.CallRecord, error)
}

// TimezoneResolver resolves a tenant's display timezone.
type TimezoneResolver interface {
	CompanyTimezone(ctx context.Context, tenantID string) (string, error)
}

// Aggregator folds a tenant's call stream into one accumulator per
// (sub-account, server, local ISO week) bucket. Each invocation owns its own
// bucket map; nothing is shared across calls.
type Aggregator struct {
	calls    CallLister
	tz       TimezoneResolver
	pageSize int
	log      *logger.Logger
}

func New(calls CallLister, tz TimezoneResolver, pageSize int, log *logger.Logger) *Aggregator {
	if pageSize <= 0 {
		pageSize = 2000
	}
	return &Aggregator{calls: calls, tz: tz, pageSize: pageSize, log: log}
}

// Aggregate streams the tenant's calls, optionally bounded by started_at, and
// returns the finished accumulators. All folds are commutative, so processing
// order inside a bucket does not matter.
func (g *Aggregator) Aggregate(ctx context.Context, tenantID string, from, to *time.Time) (map[BucketKey]*Accumulator, error) {
	log := g.log.WithComponent("aggregator").WithField("tenant_id", tenantID)

	loc := g.resolveLocation(ctx, tenantID)
	buckets := make(map[BucketKey]*Accumulator)

	offset := 0
	pages := 0
	scanned := 0
	for {
		page, err := g.calls.ListCalls(ctx, tenantID, from, to, g.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list calls page at offset %d: %w", offset, err)
		}
		pages++
		for i := range page {
			rec := &page[i]
			if rec.StartedAt == nil || rec.SubAccountID == "" {
				// Unattributable rows cannot be bucketed.
				continue
			}
			scanned++
			key, weekStart := bucketFor(rec, loc)
			acc, ok := buckets[key]
			if !ok {
				acc = newAccumulator(tenantID, rec.SubAccountID, rec.ServerID, weekStart, loc)
				buckets[key] = acc
			}
			acc.add(rec, loc)
		}
		if len(page) < g.pageSize {
			break
		}
		offset += g.pageSize
	}

	log.WithField("pages", pages).
		WithField("calls", scanned).
		WithField("buckets", len(buckets)).
		Info("aggregation pass complete")
	return buckets, nil
}

func (g *Aggregator) resolveLocation(ctx context.Context, tenantID string) *time.Location {
	log := g.log.WithComponent("aggregator").WithField("tenant_id", tenantID)
	tz, err := g.tz.CompanyTimezone(ctx, tenantID)
	if err != nil {
		log.WithError(err).Warn("timezone lookup failed, using UTC")
		return time.UTC
	}
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.WithField("timezone", tz).Warn("invalid timezone, using UTC")
		return time.UTC
	}
	return loc
}

func bucketFor(rec *types.CallRecord, loc *time.Location) (BucketKey, time.Time) {
	ws := weekStartOf(*rec.StartedAt, loc)
	key := BucketKey{
		SubAccountID: rec.SubAccountID,
		ServerID:     rec.ServerID,
		WeekStart:    ws.Format("2006-01-02"),
	}
	return key, ws
}

// weekStartOf returns Monday 00:00 of t's local week.
func weekStartOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	back := (int(lt.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -back)
}

func isAnswered(status string) bool {
	return strings.EqualFold(status, "answered")
}
