package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStatusTransitionSameStateIsAlwaysOK(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusPaused, StatusCancelled, StatusInsufficientBalance} {
		assert.NoError(t, ValidateStatusTransition(s, s), "same-state %s", s)
	}
}

func TestValidateStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusInsufficientBalance, true},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCancelled, true},
		{StatusPaused, StatusInsufficientBalance, false},
		{StatusInsufficientBalance, StatusActive, true},
		{StatusInsufficientBalance, StatusCancelled, true},
		{StatusInsufficientBalance, StatusPaused, false},
	}

	for _, tc := range cases {
		err := ValidateStatusTransition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidStatusTransition, "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	for _, to := range []Status{StatusActive, StatusPaused, StatusInsufficientBalance} {
		assert.ErrorIs(t, ValidateStatusTransition(StatusCancelled, to), ErrInvalidStatusTransition)
	}
	assert.Empty(t, AllowedTransitions(StatusCancelled))
}

func TestAllowedTransitions(t *testing.T) {
	require.ElementsMatch(t,
		[]Status{StatusPaused, StatusCancelled, StatusInsufficientBalance},
		AllowedTransitions(StatusActive))
	require.ElementsMatch(t,
		[]Status{StatusActive, StatusCancelled},
		AllowedTransitions(StatusPaused))
	require.ElementsMatch(t,
		[]Status{StatusActive, StatusCancelled},
		AllowedTransitions(StatusInsufficientBalance))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusPaused))
	assert.True(t, CanTransition(StatusCancelled, StatusCancelled))
	assert.False(t, CanTransition(StatusCancelled, StatusActive))
	assert.False(t, CanTransition(StatusPaused, StatusInsufficientBalance))
}
