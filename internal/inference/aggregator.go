package inference

import (
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Aggregator intake constants
const (
	// DefaultMinObservationConfidence gates observations on intake; results
	// at or below this confidence carry no usable signal.
	DefaultMinObservationConfidence = 0.1

	// MaxWeightedPerRecord caps the raw observations kept from a single
	// classification result for weighted-confidence scoring.
	MaxWeightedPerRecord = 5

	// MaxLabelsPerRecord caps the bare labels kept from a single
	// classification result for discrete occurrence counting.
	MaxLabelsPerRecord = 10
)

// clampConfidence clamps a confidence value to the range [min, max].
func clampConfidence(value, min, max float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}

// WindowStats summarises the evidence buffered for the current window.
type WindowStats struct {
	Labels           int
	Weighted         int
	MeanConfidence   float64
	StdDevConfidence float64
}

// Aggregator accumulates classification results during one analysis
// window. It keeps two buffers: bare labels for discrete occurrence
// counting and raw observations for weighted-confidence scoring.
//
// The Aggregator carries no lock of its own; the Engine serialises all
// access under its single state mutex.
type Aggregator struct {
	minConfidence float64
	labels        []string
	weighted      []Observation
}

// NewAggregator creates an Aggregator with the given minimum-confidence
// gate. Zero or negative values fall back to the default gate.
func NewAggregator(minConfidence float64) *Aggregator {
	if minConfidence <= 0 {
		minConfidence = DefaultMinObservationConfidence
	}
	return &Aggregator{minConfidence: minConfidence}
}

// Reset clears all buffered state for a new window.
func (a *Aggregator) Reset() {
	a.labels = a.labels[:0]
	a.weighted = a.weighted[:0]
}

// Record appends observations from one classification result. Labels are
// lower-cased and confidence values outside [0, 1] are clamped rather
// than rejected. Observations at or below the minimum-confidence gate
// are discarded. Never blocks, no side effects beyond internal state.
func (a *Aggregator) Record(observations []Observation) {
	weightedAdded := 0
	labelsAdded := 0

	for _, obs := range observations {
		label := strings.ToLower(strings.TrimSpace(obs.Label))
		if label == "" {
			continue
		}
		confidence := clampConfidence(obs.Confidence, 0, 1)
		if confidence <= a.minConfidence {
			continue
		}

		if weightedAdded < MaxWeightedPerRecord {
			a.weighted = append(a.weighted, Observation{Label: label, Confidence: confidence})
			weightedAdded++
		}
		if labelsAdded < MaxLabelsPerRecord {
			a.labels = append(a.labels, label)
			labelsAdded++
		}
	}
}

// Labels returns the discrete occurrence-count buffer. The slice is
// shared with the Aggregator and only valid until the next Reset.
func (a *Aggregator) Labels() []string {
	return a.labels
}

// Weighted returns the raw weighted-observation buffer. The slice is
// shared with the Aggregator and only valid until the next Reset.
func (a *Aggregator) Weighted() []Observation {
	return a.weighted
}

// Stats reports buffer sizes and the confidence distribution of the
// weighted buffer for the current window.
func (a *Aggregator) Stats() WindowStats {
	s := WindowStats{
		Labels:   len(a.labels),
		Weighted: len(a.weighted),
	}
	if len(a.weighted) == 0 {
		return s
	}

	confidences := make([]float64, len(a.weighted))
	for i, obs := range a.weighted {
		confidences[i] = obs.Confidence
	}
	s.MeanConfidence = stat.Mean(confidences, nil)
	if len(confidences) > 1 {
		s.StdDevConfidence = stat.StdDev(confidences, nil)
	}
	return s
}
