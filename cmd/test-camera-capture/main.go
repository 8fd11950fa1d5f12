package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/gesture"
	"github.com/vzahanych/gesture-guard/internal/landmark"
	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/video"
)

func main() {
	var (
		configPath string
		cameraID   int
		frames     int
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.IntVar(&cameraID, "camera", 0, "Camera id to test")
	flag.IntVar(&frames, "frames", 0, "Stop after this many detection frames (0 = until Ctrl+C)")
	flag.Parse()

	fmt.Println("=== Camera Capture & Gesture Test ===")
	fmt.Println()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cam, ok := config.NewServiceFromConfig(cfg, log).Camera(cameraID)
	if !ok {
		fmt.Fprintf(os.Stderr, "Camera %d is not configured\n", cameraID)
		os.Exit(1)
	}

	fmt.Printf("Camera source: %s\n", cam.Source)
	fmt.Printf("Landmark service URL: %s\n", cfg.Landmarks.ServiceURL)
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := landmark.NewClient(landmark.ClientConfig{
		ServiceURL: cfg.Landmarks.ServiceURL,
		Timeout:    cfg.Landmarks.Timeout,
	}, log)
	defer client.Close()

	fmt.Println("Testing landmark service connection...")
	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Landmark service not reachable: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Landmark service is healthy")

	fmt.Println("Opening camera...")
	capture, err := video.OpenCapture(cam)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open camera: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()

	width, height := capture.Size()
	fmt.Printf("✅ Camera opened at %dx%d (configured %dx%d)\n", width, height, cam.Resolution[0], cam.Resolution[1])

	roi, adjusted, err := video.ClampROI(cam.ROI, width, height)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid ROI: %v\n", err)
		os.Exit(1)
	}
	if adjusted {
		fmt.Printf("⚠️  ROI adjusted to %s\n", video.FormatROI(roi))
	}
	fmt.Println()
	fmt.Println("Starting capture, press Ctrl+C to stop")
	fmt.Println()

	interval := cfg.DetectionEvery()
	if interval == 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	detector := gesture.NewDetector(cfg.SmoothFactor, cfg.GestureThreshold)
	var state gesture.State

	frame := gocv.NewMat()
	defer frame.Close()

	frameCount := 0
	activeCount := 0
loop:
	for frames == 0 || frameCount < frames {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}

		frameCount++
		if !capture.Read(&frame) || frame.Empty() {
			fmt.Printf("[Frame %d] ❌ Failed to read frame\n", frameCount)
			continue
		}

		region := frame.Region(roi)
		jpeg, err := video.EncodeJPEG(region, cfg.Landmarks.JPEGQuality)
		region.Close()
		if err != nil {
			fmt.Printf("[Frame %d] ❌ %v\n", frameCount, err)
			continue
		}

		start := time.Now()
		hands, err := client.Detect(ctx, jpeg, cam.MinConfidence)
		if err != nil {
			fmt.Printf("[Frame %d] ❌ Landmark detection failed: %v\n", frameCount, err)
			continue
		}

		var result gesture.Result
		result, state = detector.Evaluate(hands, state)
		if result.Active {
			activeCount++
		}
		fmt.Printf("[Frame %d] hands=%d smoothed=%.3f active=%v (%s)\n",
			frameCount, len(hands), result.Smoothed, result.Active, time.Since(start).Round(time.Millisecond))
	}

	fmt.Println()
	fmt.Println("=== Test Summary ===")
	fmt.Printf("Frames processed: %d\n", frameCount)
	fmt.Printf("Gesture active: %d\n", activeCount)
}
