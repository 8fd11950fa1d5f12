package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/vzahanych/gesture-guard/internal/fault"
	"github.com/vzahanych/gesture-guard/internal/logger"
)

// Service owns the live configuration. Readers get deep copies; the only
// mutation path is UpdateCameraROI.
type Service struct {
	config     *Config
	configPath string
	logger     *logger.Logger
	mu         sync.RWMutex
	watchers   []ConfigWatcher
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(ctx context.Context, oldConfig, newConfig *Config) error

// NewService loads, validates and wraps the configuration at configPath
func NewService(configPath string, log *logger.Logger) (*Service, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return NewServiceFromConfig(cfg, log), nil
}

// NewServiceFromConfig wraps an already validated configuration
func NewServiceFromConfig(cfg *Config, log *logger.Logger) *Service {
	return &Service{
		config: cfg.Clone(),
		logger: log,
	}
}

// Snapshot returns an immutable deep copy of the current configuration
func (s *Service) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

// Camera returns a copy of the camera slot with the given id
func (s *Service) Camera(id int) (CameraConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Find(s.config.Cameras, func(c CameraConfig) bool { return c.ID == id })
}

// UpdateCameraROI replaces the ROI of one camera slot. Non-positive
// width or height is rejected; a negative origin is clamped to zero.
func (s *Service) UpdateCameraROI(ctx context.Context, id int, roi ROI) (ROI, error) {
	if roi.W <= 0 || roi.H <= 0 {
		return ROI{}, fault.New(fault.Configuration, "update_roi", id,
			fmt.Errorf("roi width and height must be positive, got %dx%d", roi.W, roi.H))
	}
	roi.X = max(roi.X, 0)
	roi.Y = max(roi.Y, 0)

	s.mu.Lock()
	_, idx, ok := lo.FindIndexOf(s.config.Cameras, func(c CameraConfig) bool { return c.ID == id })
	if !ok {
		s.mu.Unlock()
		return ROI{}, fault.New(fault.Configuration, "update_roi", id, fmt.Errorf("camera %d is not configured", id))
	}
	oldConfig := s.config
	newConfig := s.config.Clone()
	newConfig.Cameras[idx].ROI = roi
	s.config = newConfig
	watchers := append([]ConfigWatcher(nil), s.watchers...)
	s.mu.Unlock()

	s.logger.Info("Camera ROI updated", "camera_id", id, "x", roi.X, "y", roi.Y, "w", roi.W, "h", roi.H)

	for _, watcher := range watchers {
		if err := watcher(ctx, oldConfig, newConfig); err != nil {
			s.logger.Error("Config watcher error", "error", err)
		}
	}
	return roi, nil
}

// Watch registers a configuration change watcher
func (s *Service) Watch(watcher ConfigWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, watcher)
}
