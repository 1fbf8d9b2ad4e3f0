// Package api exposes the engine's commands and read-only state over a
// thin HTTP surface. The wire surface is an external collaborator of
// the inference core; nothing here carries engine semantics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ambient-data/context.engine/internal/httputil"
	"github.com/ambient-data/context.engine/internal/inference"
	"github.com/ambient-data/context.engine/internal/monitoring"
	"github.com/ambient-data/context.engine/internal/storage/sqlite"
	"github.com/ambient-data/context.engine/internal/version"
)

// maxFrameBytes bounds a single frame upload.
const maxFrameBytes = 8 * 1024 * 1024

// Server handles the HTTP interface for the context engine: frame
// intake, override commands and status reporting.
type Server struct {
	address string
	engine  *inference.Engine
	history *sqlite.HistoryStore // optional, nil disables history endpoints
	server  *http.Server
}

// ServerConfig contains configuration options for the API server.
type ServerConfig struct {
	Address string
	Engine  *inference.Engine
	History *sqlite.HistoryStore
}

// NewServer creates an API server with the provided configuration.
func NewServer(config ServerConfig) *Server {
	s := &Server{
		address: config.Address,
		engine:  config.Engine,
		history: config.History,
	}

	s.server = &http.Server{
		Addr:    s.address,
		Handler: s.setupRoutes(),
	}

	return s
}

// Start begins the HTTP server in a goroutine and shuts it down when
// the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("Starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	return nil
}

// Close shuts down the server immediately.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/context/state", s.handleState)
	mux.HandleFunc("/api/context/start", s.handleStart)
	mux.HandleFunc("/api/context/stop", s.handleStop)
	mux.HandleFunc("/api/context/pin", s.handlePin)
	mux.HandleFunc("/api/context/resume", s.handleResume)
	mux.HandleFunc("/api/context/history", s.handleHistory)
	mux.HandleFunc("/api/frames", s.handleFrames)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "context-engine",
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// stateResponse is the read-only engine state exposed to consumers.
type stateResponse struct {
	Phase          string                `json:"phase"`
	CurrentMode    string                `json:"current_mode"`
	SuggestedMode  string                `json:"suggested_mode"`
	Confidence     float64               `json:"confidence"`
	Analyzing      bool                  `json:"analyzing"`
	WindowFrames   int                   `json:"window_frames"`
	WindowTarget   int                   `json:"window_target"`
	WindowEvidence inference.WindowStats `json:"window_evidence"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	seen, target := s.engine.WindowProgress()
	resp := stateResponse{
		Phase:          string(s.engine.CurrentPhase()),
		CurrentMode:    string(s.engine.CurrentMode()),
		SuggestedMode:  string(s.engine.CurrentSuggestedMode()),
		Confidence:     s.engine.CurrentConfidence(),
		Analyzing:      s.engine.IsAnalyzing(),
		WindowFrames:   seen,
		WindowTarget:   target,
		WindowEvidence: s.engine.WindowStats(),
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.engine.StartInitialAnalysis()
	httputil.WriteJSONOK(w, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.engine.Stop()
	httputil.WriteJSONOK(w, map[string]string{"status": "stopped"})
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	mode, ok := inference.ParseMode(req.Mode)
	if !ok {
		httputil.BadRequest(w, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}

	s.engine.PinMode(mode)
	httputil.WriteJSONOK(w, map[string]string{"status": "pinned", "mode": string(mode)})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.engine.ResumeAutonomousDetection()
	httputil.WriteJSONOK(w, map[string]string{"status": "resumed"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "history persistence disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit <= 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
	}

	hypotheses, err := s.history.RecentHypotheses(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("query history: %v", err))
		return
	}
	switches, err := s.history.RecentSwitches(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("query history: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"hypotheses": hypotheses,
		"switches":   switches,
	})
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	image, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("read frame body: %v", err))
		return
	}

	s.engine.SubmitFrame(inference.Frame{
		ID:         r.Header.Get("X-Frame-ID"),
		Image:      image,
		CapturedAt: time.Now(),
	})

	// Frames are accepted unconditionally; the scheduler drops them
	// silently outside a burst phase.
	w.WriteHeader(http.StatusAccepted)
}
