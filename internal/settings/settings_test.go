package settings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/engine/enginetest"
	"github.com/fetchq/fetchq/internal/settings"
)

func TestSetSpeedLimit(t *testing.T) {
	fake := enginetest.New()
	ctrl := settings.NewController(fake, 0, 3, nil)
	ctx := context.Background()

	require.NoError(t, ctrl.SetSpeedLimit(ctx, 524288))
	assert.Equal(t, int64(524288), ctrl.SpeedLimit())

	limit, err := fake.SpeedLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(524288), limit)

	// Zero lifts the limit.
	require.NoError(t, ctrl.SetSpeedLimit(ctx, 0))
	assert.Zero(t, ctrl.SpeedLimit())
}

func TestSetSpeedLimitRejectsNegative(t *testing.T) {
	fake := enginetest.New()
	ctrl := settings.NewController(fake, 100, 3, nil)

	err := ctrl.SetSpeedLimit(context.Background(), -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, settings.ErrInvalidSetting)

	// The committed value is untouched.
	assert.Equal(t, int64(100), ctrl.SpeedLimit())
}

func TestSetSpeedLimitEngineFailureDoesNotCommit(t *testing.T) {
	fake := enginetest.New()
	fake.FailWith("setSpeedLimit", engine.ErrUnavailable)
	ctrl := settings.NewController(fake, 100, 3, nil)

	err := ctrl.SetSpeedLimit(context.Background(), 2048)
	assert.ErrorIs(t, err, engine.ErrUnavailable)
	assert.Equal(t, int64(100), ctrl.SpeedLimit())
}

func TestSetMaxConcurrentClampsLow(t *testing.T) {
	fake := enginetest.New()
	ctrl := settings.NewController(fake, 0, 3, nil)
	ctx := context.Background()

	require.NoError(t, ctrl.SetMaxConcurrent(ctx, 0))
	assert.Equal(t, 1, ctrl.MaxConcurrent())

	n, err := fake.MaxConcurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, ctrl.SetMaxConcurrent(ctx, 8))
	assert.Equal(t, 8, ctrl.MaxConcurrent())
}

func TestNewControllerSanitizesSeeds(t *testing.T) {
	fake := enginetest.New()
	ctrl := settings.NewController(fake, -50, 0, nil)

	assert.Zero(t, ctrl.SpeedLimit())
	assert.Equal(t, 1, ctrl.MaxConcurrent())
}

func TestApplyPushesBoth(t *testing.T) {
	fake := enginetest.New()
	ctrl := settings.NewController(fake, 4096, 5, nil)
	ctx := context.Background()

	require.NoError(t, ctrl.Apply(ctx))

	limit, err := fake.SpeedLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), limit)

	n, err := fake.MaxConcurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestSyncAdoptsEngineValues(t *testing.T) {
	fake := enginetest.New()
	ctx := context.Background()

	require.NoError(t, fake.SetSpeedLimit(ctx, 1000))
	require.NoError(t, fake.SetMaxConcurrent(ctx, 7))

	ctrl := settings.NewController(fake, 0, 3, nil)
	require.NoError(t, ctrl.Sync(ctx))

	assert.Equal(t, int64(1000), ctrl.SpeedLimit())
	assert.Equal(t, 7, ctrl.MaxConcurrent())
}

func TestPersisterCalledOnCommit(t *testing.T) {
	fake := enginetest.New()

	var savedSpeed int64
	var savedConcurrent int
	calls := 0

	ctrl := settings.NewController(fake, 0, 3, func(speedLimitBPS int64, maxConcurrent int) error {
		savedSpeed = speedLimitBPS
		savedConcurrent = maxConcurrent
		calls++
		return nil
	})

	ctx := context.Background()
	require.NoError(t, ctrl.SetSpeedLimit(ctx, 2048))
	require.NoError(t, ctrl.SetMaxConcurrent(ctx, 4))

	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2048), savedSpeed)
	assert.Equal(t, 4, savedConcurrent)
}

func TestPersisterNotCalledOnFailure(t *testing.T) {
	fake := enginetest.New()
	fake.FailWith("setSpeedLimit", errors.New("down"))

	calls := 0
	ctrl := settings.NewController(fake, 0, 3, func(int64, int) error {
		calls++
		return nil
	})

	_ = ctrl.SetSpeedLimit(context.Background(), 2048)
	assert.Zero(t, calls)
}
