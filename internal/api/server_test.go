package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambient-data/context.engine/internal/inference"
	"github.com/ambient-data/context.engine/internal/storage/sqlite"
)

type staticClassifier struct {
	observations []inference.Observation
}

func (s *staticClassifier) Classify(ctx context.Context, frame inference.Frame) ([]inference.Observation, error) {
	return s.observations, nil
}

func newTestServer(t *testing.T, history *sqlite.HistoryStore) (*Server, *inference.Engine, *httptest.Server) {
	t.Helper()

	engine, err := inference.NewEngine(inference.EngineConfig{
		Classifier:         &staticClassifier{},
		WindowTargetFrames: 2,
		ContinuousInterval: time.Hour,
		History:            history,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	s := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Engine:  engine,
		History: history,
	})
	ts := httptest.NewServer(s.setupRoutes())
	t.Cleanup(ts.Close)

	return s, engine, ts
}

func getState(t *testing.T, ts *httptest.Server) stateResponse {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/context/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func TestServerHealth(t *testing.T) {
	t.Parallel()

	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "context-engine", body["service"])
}

func TestServerStateLifecycle(t *testing.T) {
	t.Parallel()

	_, _, ts := newTestServer(t, nil)

	state := getState(t, ts)
	assert.Equal(t, "idle", state.Phase)
	assert.Equal(t, "general", state.CurrentMode)
	assert.False(t, state.Analyzing)
	assert.Equal(t, 2, state.WindowTarget)

	resp, err := http.Post(ts.URL+"/api/context/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state = getState(t, ts)
	assert.Equal(t, "initial_burst", state.Phase)
	assert.True(t, state.Analyzing)

	resp, err = http.Post(ts.URL+"/api/context/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state = getState(t, ts)
	assert.Equal(t, "idle", state.Phase)
	assert.False(t, state.Analyzing)
}

func TestServerPinAndResume(t *testing.T) {
	t.Parallel()

	_, engine, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/context/pin", "application/json",
		strings.NewReader(`{"mode": "cooking"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, inference.ModeCooking, engine.CurrentMode())
	state := getState(t, ts)
	assert.Equal(t, "paused", state.Phase)
	assert.Equal(t, 1.0, state.Confidence)

	resp, err = http.Post(ts.URL+"/api/context/resume", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state = getState(t, ts)
	assert.Equal(t, "initial_burst", state.Phase)
	assert.Equal(t, "cooking", state.CurrentMode)
}

func TestServerPinRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, _, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/context/pin", "application/json",
		strings.NewReader(`{"mode": "sleeping"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/context/pin", "application/json",
		strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerFrameIntake(t *testing.T) {
	t.Parallel()

	_, engine, ts := newTestServer(t, nil)
	engine.StartInitialAnalysis()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/frames",
		strings.NewReader("jpegbytes"))
	require.NoError(t, err)
	req.Header.Set("X-Frame-ID", "cam-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Frames outside a burst are accepted and silently dropped.
	engine.Stop()
	resp, err = http.Post(ts.URL+"/api/frames", "application/octet-stream",
		strings.NewReader("jpegbytes"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestServerHistory(t *testing.T) {
	t.Parallel()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.RecordHypothesis(inference.ContextHypothesis{
		WindowID:      "w-1",
		Environment:   "kitchen",
		Activity:      "cooking",
		Confidence:    0.9,
		SuggestedMode: inference.ModeCooking,
		Timestamp:     time.Now(),
	}))
	require.NoError(t, store.RecordModeSwitch(inference.ModeCooking, time.Now()))

	_, _, ts := newTestServer(t, store)

	resp, err := http.Get(ts.URL + "/api/context/history?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Hypotheses []sqlite.HypothesisRecord `json:"hypotheses"`
		Switches   []sqlite.SwitchRecord     `json:"switches"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Hypotheses, 1)
	assert.Equal(t, "w-1", body.Hypotheses[0].WindowID)
	require.Len(t, body.Switches, 1)
	assert.Equal(t, "cooking", body.Switches[0].Mode)
}

func TestServerHistoryDisabled(t *testing.T) {
	t.Parallel()

	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/context/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerMethodGuards(t *testing.T) {
	t.Parallel()

	_, _, ts := newTestServer(t, nil)

	for _, path := range []string{
		"/api/context/start", "/api/context/stop",
		"/api/context/pin", "/api/context/resume", "/api/frames",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "GET %s", path)
	}

	resp, err := http.Post(ts.URL+"/api/context/state", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}