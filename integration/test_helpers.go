package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/state"
)

// TestEnvironment provides a test environment for integration tests
type TestEnvironment struct {
	TempDir   string
	Config    *config.Config
	ConfigSvc *config.Service
	Store     *state.Store
	Logger    *logger.Logger
}

// SetupTestEnvironment creates a configuration with two cameras and an
// alarm history store under a temporary directory.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	tmpDir := t.TempDir()
	maxFPS := 10

	cfg := &config.Config{
		Cameras: []config.CameraConfig{
			{ID: 0, Source: "0", Resolution: [2]int{640, 480}, ROI: config.ROI{X: 0, Y: 0, W: 320, H: 240}},
			{ID: 1, Source: "1", Resolution: [2]int{640, 480}, ROI: config.ROI{X: 0, Y: 0, W: 320, H: 240}},
		},
		AlarmTriggers:        []int{5, 10},
		SmoothFactor:         0.3,
		GestureThreshold:     0.1,
		DetectionInterval:    0.1,
		MaxFPS:               &maxFPS,
		StatusUpdateInterval: 0.05,
		Storage: config.StorageConfig{
			DataDir:      filepath.Join(tmpDir, "data"),
			DatabasePath: filepath.Join(tmpDir, "data", "gesture-guard.db"),
		},
		Web: config.WebConfig{Enabled: false, Host: "127.0.0.1"},
		Log: config.LogConfig{Level: "debug", Format: "text"},
	}

	log := logger.NewNopLogger()

	store, err := state.NewStore(cfg.Storage.DatabasePath, log)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &TestEnvironment{
		TempDir:   tmpDir,
		Config:    cfg,
		ConfigSvc: config.NewServiceFromConfig(cfg, log),
		Store:     store,
		Logger:    log,
	}
}

// WaitForCondition waits for a condition to become true
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		<-ticker.C
	}

	return false
}

// ContextWithTimeout creates a context with timeout for tests
func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
