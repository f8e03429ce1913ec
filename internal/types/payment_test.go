package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 24*time.Hour, policy.BaseDelay)
	assert.Equal(t, 2, policy.BackoffMultiplier)
	assert.Equal(t, 7*24*time.Hour, policy.MaxDelay)
	assert.Equal(t, 7*24*time.Hour, policy.GracePeriod)
}

func TestNextRetryDelay(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 24*time.Hour, policy.NextRetryDelay(1))
	assert.Equal(t, 48*time.Hour, policy.NextRetryDelay(2))
	assert.Equal(t, 96*time.Hour, policy.NextRetryDelay(3))

	// Past the cap every delay is MaxDelay.
	assert.Equal(t, policy.MaxDelay, policy.NextRetryDelay(5))
	assert.Equal(t, policy.MaxDelay, policy.NextRetryDelay(50))

	// Attempt numbers below 1 clamp to the base delay.
	assert.Equal(t, 24*time.Hour, policy.NextRetryDelay(0))
	assert.Equal(t, 24*time.Hour, policy.NextRetryDelay(-3))
}
