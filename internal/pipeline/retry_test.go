package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/whimsydata/breadcrumb-etl/internal/pipeline"
)

func TestRetryLedger_DiscardAfterMaxDeliveries(t *testing.T) {
	l := pipeline.NewRetryLedger(2)

	assert.False(t, l.Fail("msg-1"), "first failure should request redelivery")
	assert.True(t, l.Fail("msg-1"), "second failure should discard")

	// Discarding clears history, so the id starts over if it ever reappears.
	assert.Equal(t, 0, l.Pending())
	assert.False(t, l.Fail("msg-1"))
}

func TestRetryLedger_IndependentIDs(t *testing.T) {
	l := pipeline.NewRetryLedger(2)

	assert.False(t, l.Fail("a"))
	assert.False(t, l.Fail("b"))
	assert.Equal(t, 2, l.Pending())
	assert.True(t, l.Fail("a"))
	assert.Equal(t, 1, l.Pending())
}

func TestRetryLedger_ResolveClearsHistory(t *testing.T) {
	l := pipeline.NewRetryLedger(2)

	l.Fail("msg-1")
	l.Resolve("msg-1")
	assert.Equal(t, 0, l.Pending())
	assert.False(t, l.Fail("msg-1"), "resolved id gets a fresh retry budget")
}

func TestRetryLedger_MinimumOneDelivery(t *testing.T) {
	l := pipeline.NewRetryLedger(0)
	assert.True(t, l.Fail("msg-1"), "maxDeliveries below 1 means discard on first failure")
}

func TestRetryLedger_ConfigurableAttempts(t *testing.T) {
	l := pipeline.NewRetryLedger(3)

	assert.False(t, l.Fail("msg-1"))
	assert.False(t, l.Fail("msg-1"))
	assert.True(t, l.Fail("msg-1"))
}
