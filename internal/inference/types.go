package inference

import (
	"context"
	"time"
)

// Mode represents an operating context the downstream assistant can adopt.
type Mode string

const (
	ModeGeneral    Mode = "general"    // Fallback when evidence is absent or ambiguous
	ModeCooking    Mode = "cooking"    // Food preparation
	ModeStudying   Mode = "studying"   // Reading, writing, desk work
	ModeMeeting    Mode = "meeting"    // Conversation, presentation
	ModeSports     Mode = "sports"     // Exercise, training
	ModeMusic      Mode = "music"      // Playing or recording music
	ModeAssembly   Mode = "assembly"   // Building, repairing, tool work
	ModeMonitoring Mode = "monitoring" // Passive observation
)

// modeOrder fixes declaration order for deterministic vote resolution.
// When two modes tie on votes, the earlier entry wins. Argmax walks this
// slice, never a map, so results are reproducible across runs.
var modeOrder = [...]Mode{
	ModeGeneral,
	ModeCooking,
	ModeStudying,
	ModeMeeting,
	ModeSports,
	ModeMusic,
	ModeAssembly,
	ModeMonitoring,
}

// ParseMode validates a mode string received from an external caller.
func ParseMode(s string) (Mode, bool) {
	for _, m := range modeOrder {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Observation is a single (label, confidence) pair produced by the
// external classifier. Labels are normalised to lower case on intake;
// confidence is clamped to [0, 1].
type Observation struct {
	Label      string
	Confidence float64
}

// Frame is an opaque camera frame. The engine never inspects the image
// bytes; they pass straight through to the classifier.
type Frame struct {
	ID         string
	Image      []byte
	CapturedAt time.Time
}

// Classifier is the external image classification model. Implementations
// return a ranked list of observations with confidence in [0, 1]. The
// engine treats any error as an empty result for that frame.
type Classifier interface {
	Classify(ctx context.Context, frame Frame) ([]Observation, error)
}

// ContextHypothesis is the engine's best guess at user context, produced
// exactly once per completed analysis window. It is an immutable value:
// no field is mutated after construction.
type ContextHypothesis struct {
	WindowID        string    // window that produced this hypothesis
	Environment     string    // scene keyword from weighted evidence, "unknown" otherwise
	Activity        string    // human-readable activity derived from SuggestedMode
	Confidence      float64   // always in [0, 1]
	SuggestedMode   Mode      // winning mode for this window
	DetectedObjects []string  // sorted labels observed in this window only
	DetectedScene   string    // last scene keyword matched, empty when none
	Timestamp       time.Time // when the window closed
}

// Phase represents the lifecycle state of the frame scheduler.
type Phase string

const (
	PhaseIdle            Phase = "idle"             // Not analysing, frames dropped
	PhaseInitialBurst    Phase = "initial_burst"    // First analysis window in progress
	PhaseContinuousBurst Phase = "continuous_burst" // Periodic monitoring windows
	PhasePaused          Phase = "paused"           // Mode pinned by override, frames dropped
)

// HistorySink receives hypotheses and confirmed switches for persistence.
// It is an adapter boundary: implementations live outside the engine
// (e.g. internal/storage/sqlite) and errors never affect engine state.
type HistorySink interface {
	RecordHypothesis(h ContextHypothesis) error
	RecordModeSwitch(mode Mode, at time.Time) error
}
