// Package config provides configuration loading and management for
// landshark extraction runs. It handles loading configuration from YAML
// files, provides default values, and converts memory budgets into batch
// sizes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Extraction parameters
	Extract struct {
		// BatchMB is the memory budget per extraction batch in megabytes
		BatchMB float64 `yaml:"batchMB"`

		// NWorkers is the number of parallel extraction workers; 0 runs
		// everything in the calling goroutine
		NWorkers int `yaml:"nWorkers"`

		// HalfWidth is the patch halfwidth in pixels, giving square
		// patches of side 2*halfWidth+1
		HalfWidth int `yaml:"halfWidth"`
	} `yaml:"extract"`

	// Cross-validation fold parameters
	Folds struct {
		// K is the number of folds
		K int `yaml:"k"`

		// TestFold is the fold label held out as the test set
		TestFold int `yaml:"testFold"`

		// Seed drives the fold assignment generator
		Seed int64 `yaml:"seed"`

		// BlockPixels groups fold assignment by square spatial blocks of
		// this side length; 0 assigns folds per point
		BlockPixels int `yaml:"blockPixels"`
	} `yaml:"folds"`

	// Query extraction parameters
	Query struct {
		// Strips is the number of horizontal image strips to divide query
		// extraction into
		Strips int `yaml:"strips"`

		// Strip is the 1-based index of the strip to extract
		Strip int `yaml:"strip"`
	} `yaml:"query"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Extract.BatchMB = 10
	cfg.Extract.NWorkers = runtime.NumCPU()
	cfg.Extract.HalfWidth = 0

	cfg.Folds.K = 10
	cfg.Folds.TestFold = 1
	cfg.Folds.Seed = 666
	cfg.Folds.BlockPixels = 0

	cfg.Query.Strips = 1
	cfg.Query.Strip = 1

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks the configuration for values no run could use.
func (c *Config) Validate() error {
	if c.Extract.BatchMB <= 0 {
		return fmt.Errorf("batch memory budget must be positive, got %v", c.Extract.BatchMB)
	}
	if c.Extract.NWorkers < 0 {
		return fmt.Errorf("worker count must be >= 0, got %d", c.Extract.NWorkers)
	}
	if c.Extract.HalfWidth < 0 {
		return fmt.Errorf("patch halfwidth must be >= 0, got %d", c.Extract.HalfWidth)
	}
	if c.Folds.K <= 1 {
		return fmt.Errorf("fold count must be > 1, got %d", c.Folds.K)
	}
	if c.Folds.TestFold < 1 || c.Folds.TestFold > c.Folds.K {
		return fmt.Errorf("test fold %d out of range [1, %d]", c.Folds.TestFold, c.Folds.K)
	}
	if c.Folds.BlockPixels < 0 {
		return fmt.Errorf("fold block size must be >= 0, got %d", c.Folds.BlockPixels)
	}
	if c.Query.Strips < 1 {
		return fmt.Errorf("strip count must be >= 1, got %d", c.Query.Strips)
	}
	if c.Query.Strip < 1 || c.Query.Strip > c.Query.Strips {
		return fmt.Errorf("strip index %d out of range [1, %d]", c.Query.Strip, c.Query.Strips)
	}
	return nil
}

// bytes per extracted value: 4 data bytes plus 1 mask byte
const bytesPerValue = 5

// PointsPerBatch converts a memory budget in megabytes into a number of
// extraction points, accounting for patch size and channel counts. Always
// returns at least 1.
func PointsPerBatch(batchMB float64, nCon, nCat, halfWidth int) int {
	side := 2*halfWidth + 1
	bytesPerPoint := float64(side * side * (nCon + nCat) * bytesPerValue)
	points := int(batchMB * float64(1<<20) / bytesPerPoint)
	if points < 1 {
		return 1
	}
	return points
}

// RowsPerBatch converts a memory budget in megabytes into a number of
// image rows for row-major query sweeps. Always returns at least 1.
func RowsPerBatch(batchMB float64, width, nCon, nCat, halfWidth int) int {
	side := 2*halfWidth + 1
	bytesPerRow := float64(width * side * side * (nCon + nCat) * bytesPerValue)
	rows := int(batchMB * float64(1<<20) / bytesPerRow)
	if rows < 1 {
		return 1
	}
	return rows
}
