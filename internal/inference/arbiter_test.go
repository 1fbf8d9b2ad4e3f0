package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confidentHypothesis(mode Mode, confidence float64) ContextHypothesis {
	return ContextHypothesis{
		SuggestedMode: mode,
		Confidence:    confidence,
	}
}

// TestArbiterHysteresis verifies a switch requires a consecutive streak
// of confident matching hypotheses.
func TestArbiterHysteresis(t *testing.T) {
	t.Parallel()

	t.Run("confirms after the required streak", func(t *testing.T) {
		t.Parallel()
		arb := NewArbiter(ArbiterConfig{})

		_, switched := arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
		assert.False(t, switched)

		mode, switched := arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
		require.True(t, switched)
		assert.Equal(t, ModeCooking, mode)

		// The streak is consumed: no second emission for the same run.
		_, _, pending := arb.Pending()
		assert.False(t, pending)
	})

	t.Run("interrupted streak restarts", func(t *testing.T) {
		t.Parallel()
		arb := NewArbiter(ArbiterConfig{})

		_, switched := arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
		assert.False(t, switched)

		// A different candidate resets the count to one.
		_, switched = arb.Evaluate(confidentHypothesis(ModeStudying, 0.9), ModeGeneral)
		assert.False(t, switched)

		_, switched = arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
		assert.False(t, switched)

		mode, count, pending := arb.Pending()
		require.True(t, pending)
		assert.Equal(t, ModeCooking, mode)
		assert.Equal(t, 1, count)
	})

	t.Run("low confidence never contributes", func(t *testing.T) {
		t.Parallel()
		arb := NewArbiter(ArbiterConfig{})

		for i := 0; i < 5; i++ {
			_, switched := arb.Evaluate(confidentHypothesis(ModeCooking, 0.5), ModeGeneral)
			assert.False(t, switched)
		}

		_, _, pending := arb.Pending()
		assert.False(t, pending)
	})

	t.Run("threshold boundary is strictly greater", func(t *testing.T) {
		t.Parallel()
		arb := NewArbiter(ArbiterConfig{})

		// Exactly at the threshold: ignored.
		_, switched := arb.Evaluate(confidentHypothesis(ModeCooking, DefaultConfidenceThreshold), ModeGeneral)
		assert.False(t, switched)
		_, _, pending := arb.Pending()
		assert.False(t, pending)

		// Just above: starts a streak.
		_, switched = arb.Evaluate(confidentHypothesis(ModeCooking, DefaultConfidenceThreshold+0.01), ModeGeneral)
		assert.False(t, switched)
		_, count, pending := arb.Pending()
		require.True(t, pending)
		assert.Equal(t, 1, count)
	})

	t.Run("self match clears a pending streak", func(t *testing.T) {
		t.Parallel()
		arb := NewArbiter(ArbiterConfig{})

		_, switched := arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
		assert.False(t, switched)

		// Confident confirmation of the current mode dissolves the
		// cooking candidacy entirely.
		_, switched = arb.Evaluate(confidentHypothesis(ModeGeneral, 0.9), ModeGeneral)
		assert.False(t, switched)
		_, _, pending := arb.Pending()
		assert.False(t, pending)

		// Cooking starts over from one.
		_, switched = arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
		assert.False(t, switched)
	})
}

func TestArbiterCustomStreak(t *testing.T) {
	t.Parallel()

	arb := NewArbiter(ArbiterConfig{RequiredStreak: 3})

	for i := 0; i < 2; i++ {
		_, switched := arb.Evaluate(confidentHypothesis(ModeSports, 0.9), ModeGeneral)
		assert.False(t, switched, "switched on evaluation %d", i+1)
	}

	mode, switched := arb.Evaluate(confidentHypothesis(ModeSports, 0.9), ModeGeneral)
	require.True(t, switched)
	assert.Equal(t, ModeSports, mode)
}

func TestArbiterReset(t *testing.T) {
	t.Parallel()

	arb := NewArbiter(ArbiterConfig{})

	_, switched := arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
	assert.False(t, switched)

	arb.Reset()

	_, _, pending := arb.Pending()
	assert.False(t, pending)

	// After reset the full streak is required again.
	_, switched = arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
	assert.False(t, switched)
	mode, switched := arb.Evaluate(confidentHypothesis(ModeCooking, 0.9), ModeGeneral)
	require.True(t, switched)
	assert.Equal(t, ModeCooking, mode)
}

func TestArbiterDefaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultArbiterConfig()
	assert.Equal(t, DefaultConfidenceThreshold, cfg.ConfidenceThreshold)
	assert.Equal(t, DefaultRequiredStreak, cfg.RequiredStreak)
}
