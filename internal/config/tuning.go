package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig represents the runtime-tunable parameters of the context
// inference engine. All fields are pointers so a partial JSON file only
// overrides what it names; the Get* accessors supply defaults for the
// rest.
type TuningConfig struct {
	// Scheduler params
	WindowTargetFrames *int    `json:"window_target_frames,omitempty"`
	ContinuousInterval *string `json:"continuous_interval,omitempty"` // duration string like "12s"

	// Aggregator params
	MinObservationConfidence *float64 `json:"min_observation_confidence,omitempty"`

	// Arbiter params
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	RequiredStreak      *int     `json:"required_streak,omitempty"`

	// Startup params
	InitialMode *string `json:"initial_mode,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset so
// every accessor falls back to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields
// omitted from the JSON retain their defaults, so partial configs are
// safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.WindowTargetFrames != nil && *c.WindowTargetFrames <= 0 {
		return fmt.Errorf("window_target_frames must be positive, got %d", *c.WindowTargetFrames)
	}

	if c.ContinuousInterval != nil && *c.ContinuousInterval != "" {
		if _, err := time.ParseDuration(*c.ContinuousInterval); err != nil {
			return fmt.Errorf("invalid continuous_interval '%s': %w", *c.ContinuousInterval, err)
		}
	}

	if c.MinObservationConfidence != nil {
		if *c.MinObservationConfidence < 0 || *c.MinObservationConfidence >= 1 {
			return fmt.Errorf("min_observation_confidence must be in [0, 1), got %f", *c.MinObservationConfidence)
		}
	}

	if c.ConfidenceThreshold != nil {
		if *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold >= 1 {
			return fmt.Errorf("confidence_threshold must be in [0, 1), got %f", *c.ConfidenceThreshold)
		}
	}

	if c.RequiredStreak != nil && *c.RequiredStreak < 1 {
		return fmt.Errorf("required_streak must be at least 1, got %d", *c.RequiredStreak)
	}

	return nil
}

// GetWindowTargetFrames returns the window_target_frames value or the default.
func (c *TuningConfig) GetWindowTargetFrames() int {
	if c.WindowTargetFrames == nil {
		return 10
	}
	return *c.WindowTargetFrames
}

// GetContinuousInterval parses and returns the ContinuousInterval as a time.Duration.
func (c *TuningConfig) GetContinuousInterval() time.Duration {
	if c.ContinuousInterval == nil || *c.ContinuousInterval == "" {
		return 12 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ContinuousInterval)
	if err != nil {
		return 12 * time.Second // default on parse error
	}
	return d
}

// GetMinObservationConfidence returns the min_observation_confidence value or the default.
func (c *TuningConfig) GetMinObservationConfidence() float64 {
	if c.MinObservationConfidence == nil {
		return 0.1
	}
	return *c.MinObservationConfidence
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.75
	}
	return *c.ConfidenceThreshold
}

// GetRequiredStreak returns the required_streak value or the default.
func (c *TuningConfig) GetRequiredStreak() int {
	if c.RequiredStreak == nil {
		return 2
	}
	return *c.RequiredStreak
}

// GetInitialMode returns the initial_mode value or the default.
func (c *TuningConfig) GetInitialMode() string {
	if c.InitialMode == nil || *c.InitialMode == "" {
		return "general"
	}
	return *c.InitialMode
}
