package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_ClosedByDefault(t *testing.T) {
	b := New(3, time.Second)

	assert.True(t, b.Allow("tonapi"))
	assert.Equal(t, StateClosed, b.State("tonapi"))
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(3, time.Second)

	b.RecordFailure("tonapi")
	b.RecordFailure("tonapi")
	assert.True(t, b.Allow("tonapi"), "below threshold should still allow")

	b.RecordFailure("tonapi")
	assert.Equal(t, StateOpen, b.State("tonapi"))
	assert.False(t, b.Allow("tonapi"))
}

func TestBreaker_UpstreamsAreIndependent(t *testing.T) {
	b := New(2, time.Second)

	b.RecordFailure("tonapi")
	b.RecordFailure("tonapi")

	assert.False(t, b.Allow("tonapi"))
	assert.True(t, b.Allow("paystack"))
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New(3, time.Second)

	b.RecordFailure("paystack")
	b.RecordFailure("paystack")
	b.RecordSuccess("paystack")
	b.RecordFailure("paystack")
	b.RecordFailure("paystack")

	// Reset means we never hit 3 consecutive failures.
	assert.Equal(t, StateClosed, b.State("paystack"))
	assert.True(t, b.Allow("paystack"))
}

func TestBreaker_HalfOpenAfterOpenDuration(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("tonrpc")
	assert.False(t, b.Allow("tonrpc"))

	time.Sleep(20 * time.Millisecond)

	// First call after the window is the probe.
	assert.True(t, b.Allow("tonrpc"))
	assert.Equal(t, StateHalfOpen, b.State("tonrpc"))

	// Only one probe at a time.
	assert.False(t, b.Allow("tonrpc"))
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("tonrpc")
	time.Sleep(20 * time.Millisecond)

	assert.True(t, b.Allow("tonrpc"))
	b.RecordSuccess("tonrpc")

	assert.Equal(t, StateClosed, b.State("tonrpc"))
	assert.True(t, b.Allow("tonrpc"))
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("tonrpc")
	time.Sleep(20 * time.Millisecond)

	assert.True(t, b.Allow("tonrpc"))
	b.RecordFailure("tonrpc")

	assert.Equal(t, StateOpen, b.State("tonrpc"))
	assert.False(t, b.Allow("tonrpc"))
}

func TestBreaker_DefaultsApplied(t *testing.T) {
	b := New(0, 0)

	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 30*time.Second, b.openDuration)
}
