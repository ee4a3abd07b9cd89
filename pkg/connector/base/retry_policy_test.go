package base

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/testutil"
)

func TestRetryPolicy_Execute(t *testing.T) {
	ctx := testutil.TestContext(t)
	policy := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	err := policy.Execute(ctx, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("attempt %d", calls)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = policy.Execute(ctx, func() error {
		calls++
		return errors.New(errors.ErrorTypeConnection, "refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestRetryPolicy_ExecuteRetryable(t *testing.T) {
	ctx := testutil.TestContext(t)
	policy := NewRetryPolicy(5, time.Millisecond)

	var retried []int
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	calls := 0
	err := policy.ExecuteRetryable(ctx, func() error {
		calls++
		if calls == 1 {
			return errors.New(errors.ErrorTypeTimeout, "slow")
		}
		return errors.New(errors.ErrorTypeQuery, "bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, retried)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestRetryPolicy_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := NewRetryPolicy(3, time.Hour).WithRandomization(0)

	calls := 0
	err := policy.Execute(ctx, func() error {
		calls++
		cancel()
		return errors.New(errors.ErrorTypeConnection, "refused")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := NewRetryPolicy(5, 100*time.Millisecond).
		WithRandomization(0).
		WithDelay(100*time.Millisecond, 300*time.Millisecond)

	assert.Equal(t, 100*time.Millisecond, policy.GetDelay(0))
	assert.Equal(t, 200*time.Millisecond, policy.GetDelay(1))
	assert.Equal(t, 300*time.Millisecond, policy.GetDelay(2))
	assert.Equal(t, 300*time.Millisecond, policy.GetDelay(5))
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := RetryPolicyFromConfig(config.ReliabilityConfig{
		RetryAttempts:   7,
		RetryDelay:      time.Second,
		RetryMultiplier: 3,
		MaxRetryDelay:   time.Minute,
	})
	assert.Equal(t, 7, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.InitialDelay)
	assert.Equal(t, 3.0, policy.Multiplier)
	assert.Equal(t, time.Minute, policy.MaxDelay)

	defaults := RetryPolicyFromConfig(config.ReliabilityConfig{})
	assert.Equal(t, config.DefaultRetryAttempts, defaults.MaxAttempts)
	assert.Equal(t, 1, NoRetryPolicy().WithMaxAttempts(1).MaxAttempts)
}
