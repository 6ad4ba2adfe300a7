// Package artifacts turns persisted weekly reports into exportable document
// and spreadsheet files, guarded by a per-report state machine so exactly one
// worker does the rendering.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-reports-go/internal/logger"
	"call-reports-go/internal/types"
)

// ErrRetriesExhausted marks a report parked in the terminal failed state.
var ErrRetriesExhausted = errors.New("artifact generation retries exhausted")

// preOwnershipError wraps a failure that happened before this worker acquired
// the generating state. The report's status belongs to whoever does hold it,
// so these must never be written back via FailGeneration.
type preOwnershipError struct {
	err error
}

func (e *preOwnershipError) Error() string { return e.err.Error() }
func (e *preOwnershipError) Unwrap() error { return e.err }

// ReportStatusStore owns the report row's status transitions. Every
// transition runs inside a database transaction; the lock is never held
// across rendering I/O.
type ReportStatusStore interface {
	TryStartGeneration(ctx context.Context, reportID string) (*types.WeeklyReport, bool, error)
	CompleteGeneration(ctx context.Context, reportID, documentPath, spreadsheetPath string) (bool, error)
	FailGeneration(ctx context.Context, reportID, errMsg string, final bool) error
}

// Generator drives pending -> generating -> completed for one report at a
// time, with bounded retries through failed states.
type Generator struct {
	reports        ReportStatusStore
	blobs          BlobStore
	log            *logger.Logger
	maxAttempts    int
	attemptTimeout time.Duration
}

func NewGenerator(reports ReportStatusStore, blobs BlobStore, log *logger.Logger, maxAttempts int, attemptTimeout time.Duration) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 2 * time.Minute
	}
	return &Generator{
		reports:        reports,
		blobs:          blobs,
		log:            log,
		maxAttempts:    maxAttempts,
		attemptTimeout: attemptTimeout,
	}
}

// Generate renders both artifacts for the report. Concurrent invocations for
// the same report are safe: whichever worker wins the generating transition
// does the work, the rest no-op. A completed report is always a no-op.
func (g *Generator) Generate(ctx context.Context, reportID string) error {
	log := g.log.WithComponent("artifacts").WithField("report_id", reportID)

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
		defer cancel()

		err := g.attemptOnce(attemptCtx, reportID, log.WithField("attempt", attempt))
		if err == nil {
			return nil
		}

		final := attempt >= g.maxAttempts
		// Status goes back to pending while budget remains, failed when
		// spent. Failures from before ownership was acquired are not ours to
		// record: the generating row belongs to another worker.
		var pre *preOwnershipError
		if !errors.As(err, &pre) {
			if ferr := g.reports.FailGeneration(ctx, reportID, err.Error(), final); ferr != nil {
				log.WithError(ferr).Error("recording generation failure failed")
			}
		}
		if final {
			log.WithError(err).Error("artifact generation failed permanently")
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrRetriesExhausted, err))
		}
		log.WithError(err).Warn("artifact generation attempt failed, will retry")
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0 // attempts are bounded by maxAttempts, not wall time
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func (g *Generator) attemptOnce(ctx context.Context, reportID string, log *logrus.Entry) error {
	rep, owned, err := g.reports.TryStartGeneration(ctx, reportID)
	if err != nil {
		return &preOwnershipError{err: fmt.Errorf("start generation: %w", err)}
	}
	if rep == nil {
		// Report vanished between scheduling and execution.
		log.Warn("report not found, nothing to generate")
		return nil
	}
	if !owned {
		log.WithField("status", rep.Status).Debug("generation not owned, skipping")
		return nil
	}

	// Rendering happens outside the row lock.
	doc, err := RenderDocument(rep)
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	sheet, err := RenderSpreadsheet(rep)
	if err != nil {
		return fmt.Errorf("render spreadsheet: %w", err)
	}

	docPath, err := g.blobs.Persist(ctx, rep.ID, KindDocument, doc)
	if err != nil {
		return fmt.Errorf("persist document: %w", err)
	}
	sheetPath, err := g.blobs.Persist(ctx, rep.ID, KindSpreadsheet, sheet)
	if err != nil {
		return fmt.Errorf("persist spreadsheet: %w", err)
	}

	done, err := g.reports.CompleteGeneration(ctx, rep.ID, docPath, sheetPath)
	if err != nil {
		return fmt.Errorf("complete generation: %w", err)
	}
	if !done {
		// Another actor changed the status mid-render; their outcome wins.
		log.Warn("generation completed but status had moved on")
		return nil
	}
	log.Info("artifacts generated")
	return nil
}
