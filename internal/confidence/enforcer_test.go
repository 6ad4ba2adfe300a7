package confidence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-reports-go/internal/logger"
)

type fakeCallStore struct {
	clearedThreshold float64
	clearCount       int64
	clearErr         error

	overrideOK   bool
	overrideErr  error
	overrideCall int64
}

func (f *fakeCallStore) ClearLowConfidenceAssignments(_ context.Context, threshold float64) (int64, error) {
	f.clearedThreshold = threshold
	return f.clearCount, f.clearErr
}

func (f *fakeCallStore) OverrideCategory(_ context.Context, callID int64, _, _ *int64, _ string) (bool, error) {
	f.overrideCall = callID
	return f.overrideOK, f.overrideErr
}

func TestEnforceThreshold(t *testing.T) {
	calls := &fakeCallStore{clearCount: 7}
	e := New(calls, logger.New())

	n, err := e.EnforceThreshold(context.Background(), 0.6)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, 0.6, calls.clearedThreshold)
}

func TestEnforceThresholdRejectsOutOfRange(t *testing.T) {
	e := New(&fakeCallStore{}, logger.New())

	_, err := e.EnforceThreshold(context.Background(), -0.1)
	assert.Error(t, err)
	_, err = e.EnforceThreshold(context.Background(), 1.1)
	assert.Error(t, err)

	// Boundary values are valid.
	_, err = e.EnforceThreshold(context.Background(), 0)
	assert.NoError(t, err)
	_, err = e.EnforceThreshold(context.Background(), 1)
	assert.NoError(t, err)
}

func TestEnforceThresholdPropagatesStoreError(t *testing.T) {
	calls := &fakeCallStore{clearErr: errors.New("db locked")}
	e := New(calls, logger.New())

	_, err := e.EnforceThreshold(context.Background(), 0.5)
	assert.Error(t, err)
}

func TestManualOverride(t *testing.T) {
	calls := &fakeCallStore{overrideOK: true}
	e := New(calls, logger.New())

	cat := int64(3)
	require.NoError(t, e.ManualOverride(context.Background(), 42, &cat, nil, "walk-in"))
	assert.Equal(t, int64(42), calls.overrideCall)
}

func TestManualOverrideMissingCallIsNoOp(t *testing.T) {
	calls := &fakeCallStore{overrideOK: false}
	e := New(calls, logger.New())
	assert.NoError(t, e.ManualOverride(context.Background(), 42, nil, nil, ""))
}

func TestManualOverridePropagatesError(t *testing.T) {
	calls := &fakeCallStore{overrideErr: errors.New("db locked")}
	e := New(calls, logger.New())
	assert.Error(t, e.ManualOverride(context.Background(), 42, nil, nil, ""))
}
