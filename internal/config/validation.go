package config

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Validate validates the configuration with detailed error messages
func (c *Config) Validate() error {
	var errors []string

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log.format: %s (must be: text or json)", c.Log.Format))
	}

	// Alarm thresholds must be positive and strictly ascending
	if len(c.AlarmTriggers) == 0 {
		errors = append(errors, "alarm_triggers must not be empty")
	}
	for i, t := range c.AlarmTriggers {
		if t <= 0 {
			errors = append(errors, fmt.Sprintf("alarm_triggers[%d] must be > 0, got: %d", i, t))
		}
		if i > 0 && t <= c.AlarmTriggers[i-1] {
			errors = append(errors, fmt.Sprintf("alarm_triggers must be strictly ascending, got %d after %d", t, c.AlarmTriggers[i-1]))
		}
	}

	if c.SmoothFactor <= 0 || c.SmoothFactor > 1 {
		errors = append(errors, fmt.Sprintf("smooth_factor must be in (0, 1], got: %.3f", c.SmoothFactor))
	}
	if c.GestureThreshold <= 0 {
		errors = append(errors, fmt.Sprintf("gesture_threshold must be > 0, got: %.3f", c.GestureThreshold))
	}
	if c.DetectionInterval < 0 {
		errors = append(errors, fmt.Sprintf("detection_interval must be >= 0, got: %.3f", c.DetectionInterval))
	}
	if c.StatusUpdateInterval <= 0 {
		errors = append(errors, fmt.Sprintf("status_update_interval must be > 0, got: %.3f", c.StatusUpdateInterval))
	}
	if c.MaxFPS != nil && *c.MaxFPS <= 0 {
		errors = append(errors, fmt.Sprintf("max_fps must be > 0 when set, got: %d", *c.MaxFPS))
	}
	if c.Storage.Retention < 0 {
		errors = append(errors, fmt.Sprintf("storage.retention must be >= 0, got: %s", c.Storage.Retention))
	}

	// Camera slots
	dupes := lo.FindDuplicates(c.CameraIDs())
	for _, id := range dupes {
		errors = append(errors, fmt.Sprintf("cameras: duplicate id %d", id))
	}
	for _, cam := range c.Cameras {
		prefix := fmt.Sprintf("cameras[id=%d]", cam.ID)
		if cam.ID < 0 {
			errors = append(errors, fmt.Sprintf("%s: id must be >= 0", prefix))
		}
		if cam.Source == "" {
			errors = append(errors, fmt.Sprintf("%s: source is required", prefix))
		}
		if cam.Resolution[0] <= 0 || cam.Resolution[1] <= 0 {
			errors = append(errors, fmt.Sprintf("%s: resolution must be positive, got: %v", prefix, cam.Resolution))
		}
		if cam.MinConfidence < 0 || cam.MinConfidence > 1 {
			errors = append(errors, fmt.Sprintf("%s: min_confidence must be between 0 and 1, got: %.2f", prefix, cam.MinConfidence))
		}
		if cam.BufferSize < 1 {
			errors = append(errors, fmt.Sprintf("%s: buffer_size must be >= 1, got: %d", prefix, cam.BufferSize))
		}
		if err := cam.ROI.Check(); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", prefix, err))
		}
	}

	if c.Landmarks.ServiceURL == "" {
		errors = append(errors, "landmarks.service_url is required")
	}
	if c.Landmarks.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("landmarks.timeout must be > 0, got: %v", c.Landmarks.Timeout))
	}
	if c.Landmarks.JPEGQuality < 1 || c.Landmarks.JPEGQuality > 100 {
		errors = append(errors, fmt.Sprintf("landmarks.jpeg_quality must be between 1 and 100, got: %d", c.Landmarks.JPEGQuality))
	}
	if c.Stream.ReconnectBackoff <= 0 {
		errors = append(errors, fmt.Sprintf("stream.reconnect_backoff must be > 0, got: %v", c.Stream.ReconnectBackoff))
	}
	if c.Display.PreviewWidth <= 0 || c.Display.PreviewHeight <= 0 {
		errors = append(errors, fmt.Sprintf("display preview size must be positive, got: %dx%d", c.Display.PreviewWidth, c.Display.PreviewHeight))
	}

	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		errors = append(errors, fmt.Sprintf("web.port must be between 1 and 65535, got: %d", c.Web.Port))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Check reports whether the ROI has a positive size and a non-negative
// origin. Bounds against the frame are clamped later, not rejected.
func (r ROI) Check() error {
	if r.W <= 0 || r.H <= 0 {
		return fmt.Errorf("roi width and height must be positive, got: %dx%d", r.W, r.H)
	}
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("roi origin must be non-negative, got: (%d,%d)", r.X, r.Y)
	}
	return nil
}
