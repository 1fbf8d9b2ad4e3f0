package inference

// Arbiter defaults
const (
	// DefaultConfidenceThreshold is the strictly-greater gate a
	// hypothesis must clear to contribute to a streak.
	DefaultConfidenceThreshold = 0.75

	// DefaultRequiredStreak is the number of consecutive matching
	// hypotheses required to confirm a mode switch.
	DefaultRequiredStreak = 2
)

// ArbiterConfig holds configuration parameters for the arbiter.
type ArbiterConfig struct {
	ConfidenceThreshold float64 // Hypotheses at or below this are ignored
	RequiredStreak      int     // Consecutive matches needed to confirm
}

// DefaultArbiterConfig returns default arbiter configuration.
func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		RequiredStreak:      DefaultRequiredStreak,
	}
}

// Arbiter is the hysteresis filter between hypotheses and mode switches.
// A candidate mode must repeat for RequiredStreak consecutive confident
// hypotheses before a switch is confirmed; any interruption restarts the
// streak. State survives window closes and is cleared only by a
// confirmed switch, a self-match, or Reset.
//
// The Arbiter carries no lock of its own; the Engine serialises all
// access under its single state mutex.
type Arbiter struct {
	config        ArbiterConfig
	pendingMode   Mode
	hasPending    bool
	pendingStreak int
}

// NewArbiter creates an Arbiter, filling zero config fields with defaults.
func NewArbiter(config ArbiterConfig) *Arbiter {
	if config.ConfidenceThreshold == 0 {
		config.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if config.RequiredStreak == 0 {
		config.RequiredStreak = DefaultRequiredStreak
	}
	return &Arbiter{config: config}
}

// Evaluate consumes one hypothesis against the currently-active mode and
// returns (newMode, true) when a switch is confirmed. At most one
// decision is ever emitted per confirmed streak.
func (a *Arbiter) Evaluate(h ContextHypothesis, currentMode Mode) (Mode, bool) {
	// Strictly greater: a hypothesis exactly at the threshold never
	// contributes to a streak.
	if h.Confidence <= a.config.ConfidenceThreshold {
		return "", false
	}

	if h.SuggestedMode == currentMode {
		a.clearPending()
		return "", false
	}

	if a.hasPending && h.SuggestedMode == a.pendingMode {
		a.pendingStreak++
		if a.pendingStreak >= a.config.RequiredStreak {
			confirmed := a.pendingMode
			a.clearPending()
			return confirmed, true
		}
		return "", false
	}

	// New candidate: restart the streak.
	a.pendingMode = h.SuggestedMode
	a.hasPending = true
	a.pendingStreak = 1
	return "", false
}

// Reset clears pending state. Called when an override makes the pinned
// mode authoritative.
func (a *Arbiter) Reset() {
	a.clearPending()
}

// Pending reports the candidate under consideration, its streak, and
// whether one exists. The streak is zero exactly when no candidate is
// pending.
func (a *Arbiter) Pending() (Mode, int, bool) {
	if !a.hasPending {
		return "", 0, false
	}
	return a.pendingMode, a.pendingStreak, true
}

func (a *Arbiter) clearPending() {
	a.pendingMode = ""
	a.hasPending = false
	a.pendingStreak = 0
}
