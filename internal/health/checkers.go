package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Pinger is satisfied by the state store
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker checks database connectivity
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
	}

	if c.db == nil {
		check.Status = StatusDegraded
		check.Message = "Database not configured"
		return check
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Database ping failed: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Database connection OK"
	return check
}

// HealthProber is satisfied by the landmark client
type HealthProber interface {
	Health(ctx context.Context) error
}

// LandmarkChecker checks the hand-landmark sidecar. An unreachable
// sidecar degrades detection but leaves capture running.
type LandmarkChecker struct {
	serviceURL string
	prober     HealthProber
}

func NewLandmarkChecker(serviceURL string, prober HealthProber) *LandmarkChecker {
	return &LandmarkChecker{serviceURL: serviceURL, prober: prober}
}

func (c *LandmarkChecker) Name() string {
	return "landmarks"
}

func (c *LandmarkChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"url": c.serviceURL},
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.prober.Health(ctx); err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Landmark service unreachable: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Landmark service is reachable"
	return check
}

// CameraChecker reports running and reconnecting cameras
type CameraChecker struct {
	configured   int
	running      func() []int
	reconnecting func() []int
}

// NewCameraChecker takes the number of configured cameras and lookups
// for the running and reconnecting camera ids.
func NewCameraChecker(configured int, running, reconnecting func() []int) *CameraChecker {
	return &CameraChecker{configured: configured, running: running, reconnecting: reconnecting}
}

func (c *CameraChecker) Name() string {
	return "cameras"
}

func (c *CameraChecker) Check(ctx context.Context) Check {
	running := c.running()
	reconnecting := c.reconnecting()

	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"configured":   c.configured,
			"running":      running,
			"reconnecting": reconnecting,
		},
	}

	switch {
	case c.configured > 0 && len(running) == 0:
		check.Status = StatusUnhealthy
		check.Message = "No cameras running"
	case len(reconnecting) > 0:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d camera(s) reconnecting", len(reconnecting))
	case len(running) < c.configured:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d of %d cameras running", len(running), c.configured)
	default:
		check.Status = StatusHealthy
		check.Message = "All cameras running"
	}
	return check
}

// StorageChecker checks that the data directory exists and that its
// filesystem is not close to full.
type StorageChecker struct {
	dataDir         string
	maxUsagePercent float64
}

func NewStorageChecker(dataDir string, maxUsagePercent float64) *StorageChecker {
	return &StorageChecker{dataDir: dataDir, maxUsagePercent: maxUsagePercent}
}

func (c *StorageChecker) Name() string {
	return "storage"
}

func (c *StorageChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"data_dir": c.dataDir},
	}

	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Failed to create data directory: %v", err)
		return check
	}

	usage, err := diskUsage(c.dataDir)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = err.Error()
		return check
	}
	check.Details["usage_percent"] = usage

	if usage >= c.maxUsagePercent {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Disk usage %.1f%% exceeds %.1f%%", usage, c.maxUsagePercent)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Data directory accessible"
	return check
}

// diskUsage returns the used percentage of the filesystem holding path
func diskUsage(path string) (float64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(absPath, &stat); err != nil {
		return 0, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	if total == 0 {
		return 0, nil
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)
	return float64(total-available) / float64(total) * 100.0, nil
}
