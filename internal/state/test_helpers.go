package state

import (
	"path/filepath"
	"testing"

	"github.com/vzahanych/gesture-guard/internal/logger"
)

func setupTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()

	log, _ := logger.New(logger.LogConfig{Level: "info", Format: "text"})

	store, err := NewStore(filepath.Join(tmpDir, "db", "gesture-guard.db"), log)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}
