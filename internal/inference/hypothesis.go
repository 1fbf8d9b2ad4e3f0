package inference

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Vote weights and scoring constants
const (
	// ObjectMatchVotes is added when a discrete label exactly matches an
	// object rule.
	ObjectMatchVotes = 1

	// SceneMatchVotes is added when a discrete label contains a scene
	// keyword as a substring.
	SceneMatchVotes = 2

	// SceneConfidenceWeight scales a weighted observation's confidence
	// into votes on a scene keyword match.
	SceneConfidenceWeight = 5

	// ObjectConfidenceWeight scales a weighted observation's confidence
	// into votes on an object keyword match.
	ObjectConfidenceWeight = 3

	// ConfidenceFloor is added to the winning vote share so a clear
	// winner in a sparse window still clears downstream thresholds.
	ConfidenceFloor = 0.3

	// DefaultIdleConfidence is reported when a window produced no votes.
	DefaultIdleConfidence = 0.3

	// UnknownEnvironment is reported when no weighted scene evidence
	// arrived in the window.
	UnknownEnvironment = "unknown"
)

// evidenceRule maps a label keyword to the mode it votes for. Rules are
// held in ordered slices, not maps, so scene resolution and tallying are
// deterministic for identical input.
type evidenceRule struct {
	keyword string
	mode    Mode
}

// objectRules vote on exact label matches (discrete buffer) and keyword
// substring matches (weighted buffer).
var objectRules = []evidenceRule{
	{"knife", ModeCooking},
	{"frying pan", ModeCooking},
	{"saucepan", ModeCooking},
	{"cutting board", ModeCooking},
	{"mixing bowl", ModeCooking},
	{"book", ModeStudying},
	{"notebook", ModeStudying},
	{"laptop", ModeStudying},
	{"textbook", ModeStudying},
	{"whiteboard", ModeMeeting},
	{"projector", ModeMeeting},
	{"conference table", ModeMeeting},
	{"dumbbell", ModeSports},
	{"yoga mat", ModeSports},
	{"treadmill", ModeSports},
	{"barbell", ModeSports},
	{"guitar", ModeMusic},
	{"piano", ModeMusic},
	{"microphone", ModeMusic},
	{"drum", ModeMusic},
	{"screwdriver", ModeAssembly},
	{"wrench", ModeAssembly},
	{"power drill", ModeAssembly},
	{"soldering iron", ModeAssembly},
	{"security camera", ModeMonitoring},
	{"control panel", ModeMonitoring},
}

// sceneRules vote on substring matches in both buffers. A later match
// overwrites the detected scene, so rule order is part of the contract.
var sceneRules = []evidenceRule{
	{"kitchen", ModeCooking},
	{"library", ModeStudying},
	{"classroom", ModeStudying},
	{"office", ModeMeeting},
	{"conference", ModeMeeting},
	{"gym", ModeSports},
	{"stadium", ModeSports},
	{"studio", ModeMusic},
	{"concert", ModeMusic},
	{"workshop", ModeAssembly},
	{"garage", ModeAssembly},
}

// modeActivities derives the human-readable activity label per mode.
var modeActivities = map[Mode]string{
	ModeGeneral:    "idle",
	ModeCooking:    "cooking",
	ModeStudying:   "studying",
	ModeMeeting:    "in a meeting",
	ModeSports:     "exercising",
	ModeMusic:      "playing music",
	ModeAssembly:   "assembling",
	ModeMonitoring: "observing",
}

// BuildHypothesis turns one window's aggregated evidence into a single
// ContextHypothesis. It is a pure function: no internal state, no
// failure modes, identical input always yields an identical result.
//
// Discrete labels vote +1 on exact object matches and +2 on scene
// substring matches. Weighted observations vote round(confidence×5) on
// scene matches and round(confidence×3) on object keyword matches. An
// empty tally falls back to the general mode at the idle confidence.
func BuildHypothesis(labels []string, weighted []Observation, windowID string, timestamp time.Time) ContextHypothesis {
	tally := make(map[Mode]int)
	objects := make(map[string]struct{}, len(labels))
	scene := ""
	environment := UnknownEnvironment

	for _, label := range labels {
		objects[label] = struct{}{}
		for _, rule := range objectRules {
			if label == rule.keyword {
				tally[rule.mode] += ObjectMatchVotes
			}
		}
		for _, rule := range sceneRules {
			if strings.Contains(label, rule.keyword) {
				tally[rule.mode] += SceneMatchVotes
				scene = rule.keyword
			}
		}
	}

	for _, obs := range weighted {
		for _, rule := range sceneRules {
			if strings.Contains(obs.Label, rule.keyword) {
				tally[rule.mode] += int(math.Round(obs.Confidence * SceneConfidenceWeight))
				scene = rule.keyword
				environment = rule.keyword
			}
		}
		for _, rule := range objectRules {
			if strings.Contains(obs.Label, rule.keyword) {
				tally[rule.mode] += int(math.Round(obs.Confidence * ObjectConfidenceWeight))
			}
		}
	}

	totalVotes := 0
	for _, votes := range tally {
		totalVotes += votes
	}

	suggested := ModeGeneral
	confidence := DefaultIdleConfidence
	if totalVotes > 0 {
		// Strict greater-than over declaration order: ties resolve to the
		// earliest declared mode.
		bestVotes := 0
		for _, mode := range modeOrder {
			if votes := tally[mode]; votes > bestVotes {
				bestVotes = votes
				suggested = mode
			}
		}
		confidence = clampConfidence(float64(bestVotes)/float64(totalVotes)+ConfidenceFloor, 0, 1)
	}

	detected := make([]string, 0, len(objects))
	for label := range objects {
		detected = append(detected, label)
	}
	sort.Strings(detected)

	return ContextHypothesis{
		WindowID:        windowID,
		Environment:     environment,
		Activity:        modeActivities[suggested],
		Confidence:      confidence,
		SuggestedMode:   suggested,
		DetectedObjects: detected,
		DetectedScene:   scene,
		Timestamp:       timestamp,
	}
}
