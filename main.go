package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ambient-data/context.engine/internal/api"
	"github.com/ambient-data/context.engine/internal/classifier"
	"github.com/ambient-data/context.engine/internal/config"
	"github.com/ambient-data/context.engine/internal/inference"
	"github.com/ambient-data/context.engine/internal/storage/sqlite"
	"github.com/ambient-data/context.engine/internal/version"
)

var (
	listen         = flag.String("listen", ":8080", "Listen address")
	dbFile         = flag.String("db", "context_history.db", "SQLite history database path (empty disables persistence)")
	tuningFile     = flag.String("config", "", "Optional tuning config JSON file")
	classifierAddr = flag.String("classifier", "http://localhost:9090/classify", "Frame classifier endpoint")
	debugMode      = flag.Bool("debug", false, "Enable diagnostic logging (phase transitions, window closes)")
	traceMode      = flag.Bool("trace", false, "Enable per-frame trace logging (implies -debug)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	// Ops-level engine logging is always on; diag and trace opt in.
	var diagWriter, traceWriter io.Writer
	if *debugMode || *traceMode {
		diagWriter = os.Stderr
	}
	if *traceMode {
		traceWriter = os.Stderr
	}
	inference.SetLogWriters(os.Stderr, diagWriter, traceWriter)

	tuning := config.EmptyTuningConfig()
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *tuningFile)
	}

	var history *sqlite.HistoryStore
	if *dbFile != "" {
		var err error
		history, err = sqlite.Open(*dbFile)
		if err != nil {
			log.Fatalf("failed to open history database: %v", err)
		}
		defer history.Close()
	}

	initialMode, ok := inference.ParseMode(tuning.GetInitialMode())
	if !ok {
		log.Fatalf("unknown initial mode %q in tuning config", tuning.GetInitialMode())
	}

	engineConfig := inference.EngineConfig{
		Classifier:               classifier.NewHTTPClassifier(*classifierAddr, classifier.DefaultTimeout),
		WindowTargetFrames:       tuning.GetWindowTargetFrames(),
		ContinuousInterval:       tuning.GetContinuousInterval(),
		MinObservationConfidence: tuning.GetMinObservationConfidence(),
		Arbiter: inference.ArbiterConfig{
			ConfidenceThreshold: tuning.GetConfidenceThreshold(),
			RequiredStreak:      tuning.GetRequiredStreak(),
		},
		InitialMode: initialMode,
		OnInitialHypothesis: func(h inference.ContextHypothesis) {
			log.Printf("initial context: env=%s activity=%s mode=%s confidence=%.2f",
				h.Environment, h.Activity, h.SuggestedMode, h.Confidence)
		},
		OnModeSwitchConfirmed: func(mode inference.Mode) {
			log.Printf("mode switch confirmed: %s", mode)
		},
	}
	if history != nil {
		engineConfig.History = history
	}

	engine, err := inference.NewEngine(engineConfig)
	if err != nil {
		log.Fatalf("failed to create inference engine: %v", err)
	}
	defer engine.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(api.ServerConfig{
		Address: *listen,
		Engine:  engine,
		History: history,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	engine.StartInitialAnalysis()
	log.Printf("context engine %s started, classifying frames via %s", version.Version, *classifierAddr)

	<-ctx.Done()
	log.Println("shutting down...")
	engine.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Println("shutdown timed out, exiting")
	}
}
