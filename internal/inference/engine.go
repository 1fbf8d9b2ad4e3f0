package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ambient-data/context.engine/internal/timeutil"
)

// Scheduler defaults
const (
	// DefaultWindowTargetFrames is the number of processed frames that
	// closes an analysis window.
	DefaultWindowTargetFrames = 10

	// DefaultContinuousInterval is the period between fresh monitoring
	// windows once the initial burst has completed.
	DefaultContinuousInterval = 12 * time.Second
)

// EngineConfig holds construction parameters for the engine.
type EngineConfig struct {
	Classifier Classifier // Required: external classification model

	WindowTargetFrames       int           // Frames per window (default 10)
	ContinuousInterval       time.Duration // Period between monitoring windows (default 12s)
	MinObservationConfidence float64       // Intake gate (default 0.1)
	Arbiter                  ArbiterConfig // Hysteresis parameters
	InitialMode              Mode          // Active mode at startup (default general)

	// Clock is the time source for window timestamps and the monitoring
	// ticker. Defaults to the real clock; tests inject a mock.
	Clock timeutil.Clock

	// Event callbacks. All are optional and invoked on the goroutine that
	// closed the window, after engine state has settled.
	OnInitialHypothesis   func(ContextHypothesis) // First window close only
	OnHypothesisUpdated   func(ContextHypothesis) // Every subsequent window close
	OnModeSwitchConfirmed func(Mode)              // Confirmed arbiter decisions

	// History is an optional persistence sink. Sink errors are logged and
	// never affect engine state.
	History HistorySink
}

// Engine owns the two-phase analysis lifecycle: a burst of frames builds
// an initial hypothesis, then periodic monitoring windows keep it fresh.
// A single mutex serialises scheduler, aggregator and arbiter state, so
// exactly one window-close decision happens at a time.
type Engine struct {
	mu         sync.Mutex
	config     EngineConfig
	aggregator *Aggregator
	arbiter    *Arbiter

	// Scheduler state
	phase        Phase
	windowOpen   bool
	windowID     string
	windowEpoch  uint64 // increments on every window open and every stop; stale deliveries are discarded
	framesSeen   int
	windowTarget int

	// Consumer-visible state
	currentMode       Mode
	suggestedMode     Mode
	currentConfidence float64
	initialEmitted    bool

	// Periodic monitoring timer
	clock      timeutil.Clock
	ticker     timeutil.Ticker
	tickerStop chan struct{}

	// Lifetime context for in-flight classifications
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an idle engine. Call StartInitialAnalysis to begin.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Classifier == nil {
		return nil, fmt.Errorf("engine requires a classifier")
	}
	if config.WindowTargetFrames <= 0 {
		config.WindowTargetFrames = DefaultWindowTargetFrames
	}
	if config.ContinuousInterval <= 0 {
		config.ContinuousInterval = DefaultContinuousInterval
	}
	if config.InitialMode == "" {
		config.InitialMode = ModeGeneral
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		config:            config,
		aggregator:        NewAggregator(config.MinObservationConfidence),
		arbiter:           NewArbiter(config.Arbiter),
		phase:             PhaseIdle,
		clock:             config.Clock,
		windowTarget:      config.WindowTargetFrames,
		currentMode:       config.InitialMode,
		suggestedMode:     config.InitialMode,
		currentConfidence: DefaultIdleConfidence,
		ctx:               ctx,
		cancel:            cancel,
	}, nil
}

// StartInitialAnalysis transitions to the initial burst: a fresh window
// is opened, the aggregator cleared and the frame counter reset. The
// initial-hypothesis event will fire again on the next window close.
func (e *Engine) StartInitialAnalysis() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTickerLocked()
	e.phase = PhaseInitialBurst
	e.initialEmitted = false
	e.openWindowLocked()
	diagf("[Scheduler] Initial analysis started: window=%s target=%d", e.windowID, e.windowTarget)
}

// SubmitFrame dispatches a frame to the classifier and returns
// immediately. Frames are dropped, not queued, while the scheduler is
// not in an active burst or between a window close and the next
// periodic re-open.
func (e *Engine) SubmitFrame(frame Frame) {
	e.mu.Lock()
	if !e.acceptingLocked() {
		tracef("[Scheduler] Dropping frame %s: phase=%s window_open=%v", frame.ID, e.phase, e.windowOpen)
		e.mu.Unlock()
		return
	}
	epoch := e.windowEpoch
	e.mu.Unlock()

	go func() {
		observations, err := e.config.Classifier.Classify(e.ctx, frame)
		if err != nil {
			// A failed classification contributes zero observations but
			// still counts toward the window, so a broken classifier
			// degrades confidence instead of hanging the engine.
			opsf("[Classifier] Frame %s failed: %v", frame.ID, err)
			observations = nil
		}
		e.deliver(epoch, observations)
	}()
}

// deliver applies one classification result to the current window. A
// result from a window that has since closed, or from before a stop or
// override, is discarded without advancing the frame counter.
func (e *Engine) deliver(epoch uint64, observations []Observation) {
	e.mu.Lock()

	if !e.acceptingLocked() || epoch != e.windowEpoch {
		tracef("[Scheduler] Discarding stale result: epoch=%d current=%d phase=%s", epoch, e.windowEpoch, e.phase)
		e.mu.Unlock()
		return
	}

	e.aggregator.Record(observations)
	e.framesSeen++
	tracef("[Scheduler] Frame processed: window=%s frames=%d/%d observations=%d",
		e.windowID, e.framesSeen, e.windowTarget, len(observations))

	if e.framesSeen < e.windowTarget {
		e.mu.Unlock()
		return
	}

	// Window complete: build the hypothesis and arbitrate while still
	// holding the lock, then fire callbacks outside it.
	hypothesis, switched, newMode, wasInitial := e.closeWindowLocked()
	e.mu.Unlock()

	e.emit(hypothesis, switched, newMode, wasInitial)
}

// closeWindowLocked runs the hypothesis builder over the aggregator,
// feeds the arbiter, and advances the scheduler phase. Every closed
// window — initial or periodic — produces a hypothesis; there is no
// one-shot completion guard. Caller must hold e.mu.
func (e *Engine) closeWindowLocked() (h ContextHypothesis, switched bool, newMode Mode, wasInitial bool) {
	e.windowOpen = false

	h = BuildHypothesis(e.aggregator.Labels(), e.aggregator.Weighted(), e.windowID, e.clock.Now())
	e.suggestedMode = h.SuggestedMode
	e.currentConfidence = h.Confidence

	newMode, switched = e.arbiter.Evaluate(h, e.currentMode)
	if switched {
		e.currentMode = newMode
	}

	wasInitial = !e.initialEmitted
	e.initialEmitted = true

	diagf("[Scheduler] Window %s closed: mode=%s confidence=%.2f scene=%q switched=%v",
		h.WindowID, h.SuggestedMode, h.Confidence, h.DetectedScene, switched)

	if e.phase == PhaseInitialBurst {
		e.phase = PhaseContinuousBurst
		e.startTickerLocked()
	}
	return h, switched, newMode, wasInitial
}

// emit fires callbacks and the history sink on the closing goroutine.
// Decisions were computed under the lock, so each confirmed streak
// emits exactly once even under concurrent window closes.
func (e *Engine) emit(h ContextHypothesis, switched bool, newMode Mode, wasInitial bool) {
	if wasInitial {
		if e.config.OnInitialHypothesis != nil {
			e.config.OnInitialHypothesis(h)
		}
	} else if e.config.OnHypothesisUpdated != nil {
		e.config.OnHypothesisUpdated(h)
	}
	if switched && e.config.OnModeSwitchConfirmed != nil {
		e.config.OnModeSwitchConfirmed(newMode)
	}

	if e.config.History != nil {
		if err := e.config.History.RecordHypothesis(h); err != nil {
			opsf("[History] Failed to record hypothesis %s: %v", h.WindowID, err)
		}
		if switched {
			if err := e.config.History.RecordModeSwitch(newMode, h.Timestamp); err != nil {
				opsf("[History] Failed to record mode switch to %s: %v", newMode, err)
			}
		}
	}
}

// Stop cancels periodic monitoring and moves to Idle. An in-flight
// classification may still complete, but its result is discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	diagf("[Scheduler] Stopped")
}

func (e *Engine) stopLocked() {
	e.stopTickerLocked()
	e.phase = PhaseIdle
	e.windowOpen = false
	e.windowEpoch++
}

// PinMode pins the active mode and pauses autonomous detection. The
// pinned mode is authoritative: confidence is forced to 1.0 and arbiter
// pending state is cleared. Idempotent.
func (e *Engine) PinMode(mode Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTickerLocked()
	e.phase = PhasePaused
	e.windowOpen = false
	e.windowEpoch++

	e.currentMode = mode
	e.suggestedMode = mode
	e.currentConfidence = 1.0
	e.arbiter.Reset()
	diagf("[Override] Mode pinned: %s", mode)
}

// ResumeAutonomousDetection re-enters the two-phase lifecycle from
// scratch. The pinned mode stays current until evidence confirms a
// different one.
func (e *Engine) ResumeAutonomousDetection() {
	e.mu.Lock()
	e.arbiter.Reset()
	e.mu.Unlock()

	e.StartInitialAnalysis()
	diagf("[Override] Autonomous detection resumed")
}

// Close releases the engine: monitoring stops and in-flight
// classifications are cancelled. The engine must not be reused.
func (e *Engine) Close() {
	e.Stop()
	e.cancel()
}

// CurrentMode returns the active mode as confirmed by the arbiter or
// pinned by an override.
func (e *Engine) CurrentMode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentMode
}

// CurrentSuggestedMode returns the most recent hypothesis suggestion.
func (e *Engine) CurrentSuggestedMode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suggestedMode
}

// CurrentConfidence returns the most recent hypothesis confidence, or
// 1.0 while a pinned mode is in force.
func (e *Engine) CurrentConfidence() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentConfidence
}

// IsAnalyzing reports whether the scheduler is in an active burst phase.
func (e *Engine) IsAnalyzing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == PhaseInitialBurst || e.phase == PhaseContinuousBurst
}

// CurrentPhase returns the scheduler phase.
func (e *Engine) CurrentPhase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// WindowProgress reports frames processed so far in the open window and
// the window target. Frames processed is zero between a window close
// and the next periodic re-open.
func (e *Engine) WindowProgress() (seen, target int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.windowOpen {
		return 0, e.windowTarget
	}
	return e.framesSeen, e.windowTarget
}

// WindowStats reports the evidence buffered for the open window.
func (e *Engine) WindowStats() WindowStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aggregator.Stats()
}

func (e *Engine) acceptingLocked() bool {
	return (e.phase == PhaseInitialBurst || e.phase == PhaseContinuousBurst) && e.windowOpen
}

// openWindowLocked begins a fresh analysis window. Caller must hold e.mu.
func (e *Engine) openWindowLocked() {
	e.windowEpoch++
	e.framesSeen = 0
	e.aggregator.Reset()
	e.windowID = uuid.NewString()
	e.windowOpen = true
}

// startTickerLocked arms the periodic monitoring timer. Caller must hold e.mu.
func (e *Engine) startTickerLocked() {
	if e.ticker != nil {
		return
	}
	e.ticker = e.clock.NewTicker(e.config.ContinuousInterval)
	e.tickerStop = make(chan struct{})

	go func(ticker timeutil.Ticker, stop chan struct{}) {
		for {
			select {
			case <-ticker.C():
				e.onTick()
			case <-stop:
				return
			}
		}
	}(e.ticker, e.tickerStop)
}

// stopTickerLocked cancels the periodic timer. Caller must hold e.mu.
func (e *Engine) stopTickerLocked() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	close(e.tickerStop)
	e.ticker = nil
	e.tickerStop = nil
}

// onTick re-opens a fresh monitoring window. The phase is re-checked at
// fire time: a tick racing a stop or override is a no-op.
func (e *Engine) onTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseContinuousBurst {
		return
	}
	e.openWindowLocked()
	diagf("[Scheduler] Monitoring window opened: window=%s", e.windowID)
}
