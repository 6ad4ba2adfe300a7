package confidence

import (
	"context"
	"fmt"

	"call-reports-go/internal/logger"
)

// CallAssignmentStore is the slice of the call store the enforcer mutates.
type CallAssignmentStore interface {
	ClearLowConfidenceAssignments(ctx context.Context, threshold float64) (int64, error)
	OverrideCategory(ctx context.Context, callID int64, categoryID, subCategoryID *int64, subCategoryLabel string) (bool, error)
}

// Enforcer reverts automatic categorizations whose confidence fell below the
// configured threshold. Manual assignments are never touched; already
// generated reports are not retroactively altered.
type Enforcer struct {
	calls CallAssignmentStore
	log   *logger.Logger
}

func New(calls CallAssignmentStore, log *logger.Logger) *Enforcer {
	return &Enforcer{calls: calls, log: log}
}

// EnforceThreshold clears category fields on every non-manual call below
// threshold and returns how many calls were reset.
func (e *Enforcer) EnforceThreshold(ctx context.Context, threshold float64) (int64, error) {
	if threshold < 0 || threshold > 1 {
		return 0, fmt.Errorf("threshold %.2f outside [0,1]", threshold)
	}
	log := e.log.WithComponent("confidence").WithField("threshold", threshold)
	n, err := e.calls.ClearLowConfidenceAssignments(ctx, threshold)
	if err != nil {
		log.WithError(err).Error("threshold sweep failed")
		return 0, err
	}
	log.WithField("calls_reset", n).Info("threshold sweep complete")
	return n, nil
}

// ManualOverride pins a call to the given category with source=manual and
// confidence 1.0. A vanished call row is a tolerated no-op.
func (e *Enforcer) ManualOverride(ctx context.Context, callID int64, categoryID, subCategoryID *int64, subCategoryLabel string) error {
	log := e.log.WithComponent("confidence").WithField("call_id", callID)
	ok, err := e.calls.OverrideCategory(ctx, callID, categoryID, subCategoryID, subCategoryLabel)
	if err != nil {
		log.WithError(err).Error("manual override failed")
		return err
	}
	if !ok {
		log.Warn("manual override skipped, call not found")
		return nil
	}
	log.Info("manual override applied")
	return nil
}
