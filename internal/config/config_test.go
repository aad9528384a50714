package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMaterializesDefaultsOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := Load(path)
	if !errors.Is(err, ErrNeedsReview) {
		t.Fatalf("err = %v, want ErrNeedsReview", err)
	}
	if cfg.Port != 13381 {
		t.Fatalf("Port = %d, want default 13381", cfg.Port)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected config.json to be written: %v", statErr)
	}
}

func TestLoadSucceedsOnceReviewed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if _, err := Load(path); !errors.Is(err, ErrNeedsReview) {
		t.Fatalf("first load: err = %v, want ErrNeedsReview", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("second load should succeed, got %v", err)
	}
	if cfg.DBDatabase != "bancho" {
		t.Fatalf("DBDatabase = %q, want bancho", cfg.DBDatabase)
	}
}
