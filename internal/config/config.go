package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultSmoothFactor      = 0.5
	defaultGestureThreshold  = 0.1
	defaultDetectionInterval = 0.1
)

// Config represents the application configuration
type Config struct {
	Cameras              []CameraConfig `yaml:"cameras"`
	AlarmTriggers        []int          `yaml:"alarm_triggers" env:"GG_ALARM_TRIGGERS" envSeparator:","`
	SmoothFactor         float64        `yaml:"smooth_factor" env:"GG_SMOOTH_FACTOR"`
	GestureThreshold     float64        `yaml:"gesture_threshold" env:"GG_GESTURE_THRESHOLD"`
	DetectionInterval    float64        `yaml:"detection_interval" env:"GG_DETECTION_INTERVAL"`
	ShowROI              bool           `yaml:"show_roi" env:"GG_SHOW_ROI"`
	ShowFPS              bool           `yaml:"show_fps" env:"GG_SHOW_FPS"`
	MaxFPS               *int           `yaml:"max_fps,omitempty" env:"GG_MAX_FPS"`
	StatusUpdateInterval float64        `yaml:"status_update_interval" env:"GG_STATUS_UPDATE_INTERVAL"`

	// AlarmSounds maps a trigger (seconds) to a WAV file.
	AlarmSounds   map[int]string `yaml:"alarm_sounds,omitempty"`
	FallbackSound string         `yaml:"fallback_sound" env:"GG_FALLBACK_SOUND"`

	Landmarks LandmarksConfig `yaml:"landmarks"`
	Stream    StreamConfig    `yaml:"stream"`
	Display   DisplayConfig   `yaml:"display"`
	Storage   StorageConfig   `yaml:"storage"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// CameraConfig describes one camera slot
type CameraConfig struct {
	ID            int     `yaml:"id"`
	Source        string  `yaml:"source"`
	Resolution    [2]int  `yaml:"resolution,flow"`
	ROI           ROI     `yaml:"roi"`
	MinConfidence float64 `yaml:"min_confidence"`
	BufferSize    int     `yaml:"buffer_size"`
}

// ROI is a region of interest in frame pixel coordinates
type ROI struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
	W int `yaml:"w" json:"w"`
	H int `yaml:"h" json:"h"`
}

// LandmarksConfig contains hand-landmark sidecar configuration
type LandmarksConfig struct {
	ServiceURL  string        `yaml:"service_url" env:"GG_LANDMARKS_URL"`
	Timeout     time.Duration `yaml:"timeout" env:"GG_LANDMARKS_TIMEOUT"`
	JPEGQuality int           `yaml:"jpeg_quality"`
}

// StreamConfig contains capture fault-recovery configuration
type StreamConfig struct {
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff" env:"GG_RECONNECT_BACKOFF"`
}

// DisplayConfig contains preview configuration
type DisplayConfig struct {
	PreviewWidth  int `yaml:"preview_width"`
	PreviewHeight int `yaml:"preview_height"`
}

// StorageConfig contains local storage configuration
type StorageConfig struct {
	DataDir      string `yaml:"data_dir" env:"GG_DATA_DIR"`
	DatabasePath string `yaml:"database_path"`

	// Retention is how long alarm history is kept. Zero keeps it forever.
	Retention time.Duration `yaml:"retention" env:"GG_RETENTION"`
}

// WebConfig contains web server configuration
type WebConfig struct {
	Enabled bool   `yaml:"enabled" env:"GG_WEB_ENABLED"`
	Host    string `yaml:"host" env:"GG_WEB_HOST"`
	Port    int    `yaml:"port" env:"GG_WEB_PORT"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level" env:"GG_LOG_LEVEL"`
	Format string `yaml:"format" env:"GG_LOG_FORMAT"`
	Output string `yaml:"output" env:"GG_LOG_OUTPUT"`
}

// Load reads and parses the configuration file, applies environment
// overrides and defaults.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	// Tuning values are seeded before parsing so an explicit zero
	// survives and reaches Validate.
	cfg := Config{
		SmoothFactor:      defaultSmoothFactor,
		GestureThreshold:  defaultGestureThreshold,
		DetectionInterval: defaultDetectionInterval,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.dev.yaml",
		"./config/config.yaml",
		"../config/config.yaml",
		"/etc/gesture-guard/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return paths[1]
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if len(c.AlarmTriggers) == 0 {
		c.AlarmTriggers = []int{5, 10, 30}
	}
	if c.StatusUpdateInterval == 0 {
		c.StatusUpdateInterval = 1.0
	}
	if c.FallbackSound == "" {
		c.FallbackSound = filepath.Join("sounds", "fallback.wav")
	}

	if c.AlarmSounds == nil {
		c.AlarmSounds = make(map[int]string, len(c.AlarmTriggers))
	}
	for i, t := range c.AlarmTriggers {
		if _, ok := c.AlarmSounds[t]; ok {
			continue
		}
		if i == len(c.AlarmTriggers)-1 {
			c.AlarmSounds[t] = filepath.Join("sounds", "alarm.wav")
		} else {
			c.AlarmSounds[t] = filepath.Join("sounds", fmt.Sprintf("%ds_alarm.wav", t))
		}
	}

	for i := range c.Cameras {
		cam := &c.Cameras[i]
		if cam.Resolution == [2]int{} {
			cam.Resolution = [2]int{1280, 720}
		}
		if cam.MinConfidence == 0 {
			cam.MinConfidence = 0.5
		}
		if cam.BufferSize == 0 {
			cam.BufferSize = 1
		}
	}

	if c.Landmarks.ServiceURL == "" {
		c.Landmarks.ServiceURL = "http://localhost:8080"
	}
	if c.Landmarks.Timeout == 0 {
		c.Landmarks.Timeout = 2 * time.Second
	}
	if c.Landmarks.JPEGQuality == 0 {
		c.Landmarks.JPEGQuality = 85
	}

	if c.Stream.ReconnectBackoff == 0 {
		c.Stream.ReconnectBackoff = time.Second
	}

	if c.Display.PreviewWidth == 0 {
		c.Display.PreviewWidth = 1280
	}
	if c.Display.PreviewHeight == 0 {
		c.Display.PreviewHeight = 720
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(c.Storage.DataDir, "gesture-guard.db")
	}

	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8090
	}
}

// TargetInterval returns the frame pacing interval derived from max_fps.
func (c *Config) TargetInterval() time.Duration {
	if c.MaxFPS != nil && *c.MaxFPS > 0 {
		return time.Second / time.Duration(*c.MaxFPS)
	}
	return time.Second / 30
}

// DetectionEvery returns detection_interval as a duration.
func (c *Config) DetectionEvery() time.Duration {
	return seconds(c.DetectionInterval)
}

// StatusEvery returns status_update_interval as a duration.
func (c *Config) StatusEvery() time.Duration {
	return seconds(c.StatusUpdateInterval)
}

// CameraIDs returns the configured camera ids in configuration order.
func (c *Config) CameraIDs() []int {
	ids := make([]int, len(c.Cameras))
	for i, cam := range c.Cameras {
		ids[i] = cam.ID
	}
	return ids
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Cameras = append([]CameraConfig(nil), c.Cameras...)
	out.AlarmTriggers = append([]int(nil), c.AlarmTriggers...)
	if c.MaxFPS != nil {
		v := *c.MaxFPS
		out.MaxFPS = &v
	}
	if c.AlarmSounds != nil {
		out.AlarmSounds = make(map[int]string, len(c.AlarmSounds))
		for k, v := range c.AlarmSounds {
			out.AlarmSounds[k] = v
		}
	}
	return &out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
