package retry

import (
	"errors"
	"testing"

	"collectordl/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var target = models.Target{ID: 123456, DisplayName: "Artist - Title"}

func TestInitialState(t *testing.T) {
	s := Initial(target)

	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, 3, s.RetriesRemaining)
	assert.False(t, s.UseAlternateSource)
	assert.Equal(t, 1, s.Attempt)
	assert.Equal(t, StatusAttempting, s.Begin().Status)
	assert.Equal(t, StatusPending, s.Status, "Begin must not modify the receiver")
}

func TestFailuresExhaustBudgetWithAlternateLast(t *testing.T) {
	s := Initial(target).Begin()

	var retries int
	var sources []bool
	for {
		sources = append(sources, s.UseAlternateSource)
		d := s.Next(OutcomeFailure)
		if d.Action == ActionFail {
			assert.Equal(t, StatusFailed, d.Next.Status)
			assert.True(t, d.Next.Status.Terminal())
			break
		}
		require.Equal(t, ActionRetry, d.Action)
		require.Less(t, d.Next.RetriesRemaining, s.RetriesRemaining, "budget must strictly decrease")
		retries++
		s = d.Next
	}

	assert.Equal(t, 3, retries)
	assert.Equal(t, []bool{false, false, false, true}, sources)
	assert.Equal(t, 4, s.Attempt)
}

func TestRateLimitedKeepsBudget(t *testing.T) {
	s := Initial(target).Begin()

	d := s.Next(OutcomeRateLimited)
	assert.Equal(t, ActionRequeue, d.Action)
	assert.Equal(t, s, d.Next)

	// Any number of rate limits never spends a retry
	for i := 0; i < 10; i++ {
		d = d.Next.Next(OutcomeRateLimited)
	}
	assert.Equal(t, 3, d.Next.RetriesRemaining)
	assert.False(t, d.Next.UseAlternateSource)

	d = d.Next.Next(OutcomeSuccess)
	assert.Equal(t, ActionSucceed, d.Action)
	assert.Equal(t, StatusSucceeded, d.Next.Status)
}

func TestRateLimitedOnAlternateStaysOnAlternate(t *testing.T) {
	s := NewState(target, 1).Begin()
	s = s.Next(OutcomeFailure).Next

	require.True(t, s.UseAlternateSource)
	d := s.Next(OutcomeRateLimited)
	assert.Equal(t, ActionRequeue, d.Action)
	assert.True(t, d.Next.UseAlternateSource)
	assert.Equal(t, 0, d.Next.RetriesRemaining)
}

func TestNextDoesNotMutateReceiver(t *testing.T) {
	s := Initial(target).Begin()
	before := s

	s.Next(OutcomeFailure)
	s.Next(OutcomeSuccess)

	assert.Equal(t, before, s)
}

func TestZeroBudgetUsesAlternateImmediately(t *testing.T) {
	s := NewState(target, 0).Begin()
	assert.True(t, s.UseAlternateSource)
	assert.Equal(t, ActionFail, s.Next(OutcomeFailure).Action)

	assert.Equal(t, 0, NewState(target, -2).RetriesRemaining)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		hasBody bool
		err     error
		want    Outcome
	}{
		{"ok with body", 200, true, nil, OutcomeSuccess},
		{"ok without body", 200, false, nil, OutcomeFailure},
		{"too many requests", 429, false, nil, OutcomeRateLimited},
		{"too many requests with body", 429, true, nil, OutcomeRateLimited},
		{"server error", 500, true, nil, OutcomeFailure},
		{"not found", 404, true, nil, OutcomeFailure},
		{"redirect", 302, true, nil, OutcomeFailure},
		{"transport error", 0, false, errors.New("connection reset"), OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status, tt.hasBody, tt.err))
		})
	}
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "attempting", StatusAttempting.String())
	assert.Equal(t, "rate_limited", OutcomeRateLimited.String())
	assert.Equal(t, "requeue", ActionRequeue.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
