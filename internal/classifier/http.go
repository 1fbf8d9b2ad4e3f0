// Package classifier adapts external image classification services to
// the engine's Classifier boundary.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ambient-data/context.engine/internal/inference"
)

// DefaultTimeout bounds a single classification round trip.
const DefaultTimeout = 5 * time.Second

// observationPayload is the wire shape returned by the model endpoint.
type observationPayload struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// HTTPClassifier posts frame images to a remote model endpoint and
// decodes the ranked (label, confidence) response.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClassifier creates a classifier for the given model endpoint.
// A zero timeout falls back to DefaultTimeout.
func NewHTTPClassifier(endpoint string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClassifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Classify sends the frame image to the model endpoint. The engine
// treats any returned error as an empty result for that frame.
func (c *HTTPClassifier) Classify(ctx context.Context, frame inference.Frame) ([]inference.Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(frame.Image))
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if frame.ID != "" {
		req.Header.Set("X-Frame-ID", frame.ID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify frame %s: %w", frame.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, body)
	}

	var payload []observationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}

	observations := make([]inference.Observation, 0, len(payload))
	for _, p := range payload {
		observations = append(observations, inference.Observation{
			Label:      p.Label,
			Confidence: p.Confidence,
		})
	}
	return observations, nil
}

var _ inference.Classifier = (*HTTPClassifier)(nil)
