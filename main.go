package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vzahanych/gesture-guard/internal/alarm"
	"github.com/vzahanych/gesture-guard/internal/audio"
	"github.com/vzahanych/gesture-guard/internal/clock"
	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/health"
	"github.com/vzahanych/gesture-guard/internal/landmark"
	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/monitor"
	"github.com/vzahanych/gesture-guard/internal/service"
	"github.com/vzahanych/gesture-guard/internal/state"
	"github.com/vzahanych/gesture-guard/internal/video"
	"github.com/vzahanych/gesture-guard/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Gesture Guard",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
		"cameras", len(cfg.Cameras),
	)

	configSvc := config.NewServiceFromConfig(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Alarm history and persisted ROI overrides
	store, err := state.NewStore(cfg.Storage.DatabasePath, log)
	if err != nil {
		log.Error("Failed to open state store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if n, err := store.RestoreROIs(ctx, configSvc); err != nil {
		log.Warn("Failed to restore ROI overrides", "error", err)
	} else if n > 0 {
		log.Info("Restored ROI overrides", "count", n)
	}
	configSvc.Watch(store.ConfigWatcher())

	// Audio: one process-wide output, one channel per camera id
	if created, err := audio.EnsureFallbackTone(cfg.FallbackSound); err != nil {
		log.Warn("Failed to write fallback tone", "path", cfg.FallbackSound, "error", err)
	} else if created {
		log.Info("Generated fallback tone", "path", cfg.FallbackSound)
	}
	bank := audio.LoadBank(cfg.AlarmSounds, cfg.FallbackSound, log)

	out, err := audio.NewSpeakerOutput(audio.SampleRate)
	if err != nil {
		log.Warn("Audio output unavailable, alarms will be silent", "error", err)
		out = audio.NewDiscard(audio.SampleRate)
	}
	mixer := audio.NewMixer(out, bank, log)
	defer mixer.Close()

	svcMgr := service.NewManager(log)

	preview := video.NewPreviewSink(cfg.Display.PreviewWidth, cfg.Display.PreviewHeight, cfg.Landmarks.JPEGQuality, log)

	cameraMgr := monitor.NewManager(configSvc, monitor.WorkerDeps{
		Open: video.OpenCapture,
		NewDetector: func(cam config.CameraConfig) (landmark.Detector, error) {
			return landmark.NewClient(landmark.ClientConfig{
				ServiceURL: cfg.Landmarks.ServiceURL,
				Timeout:    cfg.Landmarks.Timeout,
			}, log.With("camera_id", cam.ID)), nil
		},
		Channels: func(id int) alarm.Channel { return mixer.Channel(id) },
		Sink:     preview,
		Events:   svcMgr.GetEventBus(),
		Clock:    clock.Real{},
	}, log)
	aggregator := monitor.NewAggregator(configSvc, cameraMgr)

	// Services
	recorder := state.NewRecorder(store, log)
	recorder.SetRetention(cfg.Storage.Retention)
	svcMgr.Register(recorder)

	svcMgr.Register(monitor.NewReporter(aggregator, cfg.StatusEvery(), log))

	healthMgr := health.NewManager(log, svcMgr)
	healthMgr.RegisterChecker(health.NewDatabaseChecker(store))
	healthMgr.RegisterChecker(health.NewLandmarkChecker(cfg.Landmarks.ServiceURL,
		landmark.NewClient(landmark.ClientConfig{ServiceURL: cfg.Landmarks.ServiceURL}, log)))
	healthMgr.RegisterChecker(health.NewStorageChecker(cfg.Storage.DataDir, 90.0))
	healthMgr.RegisterChecker(health.NewCameraChecker(len(cfg.Cameras), cameraMgr.Running, aggregator.Reconnecting))

	webServer := web.NewServer(&cfg.Web, configSvc, log)
	webServer.SetVersion(version)
	webServer.SetDependencies(cameraMgr, aggregator)
	webServer.SetEventHistory(store)
	webServer.SetStreamProvider(preview)
	webServer.SetHealthReporter(healthMgr)
	svcMgr.Register(webServer)

	if err := svcMgr.Start(ctx); err != nil {
		log.Error("Failed to start services", "error", err)
		os.Exit(1)
	}

	// Cameras that fail to start are logged; the rest keep running.
	for _, id := range cfg.CameraIDs() {
		if err := cameraMgr.StartCamera(id); err != nil {
			log.Error("Failed to start camera", "camera_id", id, "error", err)
		}
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received shutdown signal", "signal", sig)

	// Workers first so their final alarm events still reach the recorder
	cameraMgr.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := svcMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Shutdown complete")
}
