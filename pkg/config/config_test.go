package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	def := DefaultConfig()
	if cfg.Folds.K != def.Folds.K || cfg.Extract.BatchMB != def.Extract.BatchMB {
		t.Errorf("missing file did not yield defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "landshark.yaml")

	cfg := DefaultConfig()
	cfg.Extract.BatchMB = 2.5
	cfg.Extract.HalfWidth = 3
	cfg.Folds.K = 7
	cfg.Folds.TestFold = 4
	cfg.Folds.BlockPixels = 50
	cfg.Query.Strips = 6
	cfg.Query.Strip = 2

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got.Extract.BatchMB != 2.5 || got.Extract.HalfWidth != 3 {
		t.Errorf("extraction section %+v", got.Extract)
	}
	if got.Folds.K != 7 || got.Folds.TestFold != 4 || got.Folds.BlockPixels != 50 {
		t.Errorf("folds section %+v", got.Folds)
	}
	if got.Query.Strips != 6 || got.Query.Strip != 2 {
		t.Errorf("query section %+v", got.Query)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "landshark.yaml")
	if err := os.WriteFile(path, []byte("folds:\n  k: 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for single-fold config")
	}
}

func TestValidate(t *testing.T) {
	check := func(name string, mutate func(*Config)) {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	check("zero batch budget", func(c *Config) { c.Extract.BatchMB = 0 })
	check("negative workers", func(c *Config) { c.Extract.NWorkers = -1 })
	check("negative halfwidth", func(c *Config) { c.Extract.HalfWidth = -1 })
	check("test fold past K", func(c *Config) { c.Folds.TestFold = c.Folds.K + 1 })
	check("strip past count", func(c *Config) { c.Query.Strip = 2 })
}

// TestPointsPerBatch checks the budget conversion: a 1MB budget over
// single-pixel single-channel points is 1MB / 5 bytes, and larger patches
// shrink the batch proportionally.
func TestPointsPerBatch(t *testing.T) {
	if got := PointsPerBatch(1, 1, 0, 0); got != (1<<20)/5 {
		t.Errorf("PointsPerBatch = %d, want %d", got, (1<<20)/5)
	}

	small := PointsPerBatch(1, 4, 2, 10)
	big := PointsPerBatch(1, 4, 2, 0)
	if small >= big {
		t.Errorf("wider patches should shrink the batch: %d >= %d", small, big)
	}

	// a budget too small for even one point still yields one
	if got := PointsPerBatch(0.0001, 100, 100, 50); got != 1 {
		t.Errorf("PointsPerBatch floor = %d, want 1", got)
	}
}

func TestRowsPerBatch(t *testing.T) {
	rows := RowsPerBatch(10, 1000, 2, 1, 1)
	if rows < 1 {
		t.Fatalf("RowsPerBatch = %d", rows)
	}
	wider := RowsPerBatch(10, 10000, 2, 1, 1)
	if wider > rows {
		t.Errorf("wider images should not increase rows per batch: %d > %d", wider, rows)
	}
	if got := RowsPerBatch(0.0001, 100000, 10, 10, 10); got != 1 {
		t.Errorf("RowsPerBatch floor = %d, want 1", got)
	}
}
