package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/service"
)

// Reporter polls the aggregator on a timer and logs one line per
// running camera.
type Reporter struct {
	*service.ServiceBase
	aggregator *Aggregator
	interval   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	last []*CameraStatus
}

// NewReporter creates the status reporter service
func NewReporter(agg *Aggregator, interval time.Duration, log *logger.Logger) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{
		ServiceBase: service.NewServiceBase("status-reporter", log),
		aggregator:  agg,
		interval:    interval,
	}
}

// Start starts polling
func (r *Reporter) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run(ctx)

	r.GetStatus().SetStatus(service.StatusRunning)
	r.LogInfo("Status reporter started", "interval", r.interval)
	return nil
}

// Stop stops polling
func (r *Reporter) Stop(ctx context.Context) error {
	r.GetStatus().SetStatus(service.StatusStopping)
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.GetStatus().SetStatus(service.StatusStopped)
	r.LogInfo("Status reporter stopped")
	return nil
}

// Last returns the most recent poll.
func (r *Reporter) Last() []*CameraStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *Reporter) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Poll()
		}
	}
}

// Poll takes one snapshot and logs it.
func (r *Reporter) Poll() {
	snapshot := r.aggregator.Snapshot()

	r.mu.Lock()
	r.last = snapshot
	r.mu.Unlock()

	for _, s := range snapshot {
		if s == nil {
			continue
		}
		r.LogInfo("Camera status",
			"camera_id", s.CameraID,
			"status", s.Status,
			"fps", fmt.Sprintf("%.1f", s.FPS),
			"detection", fmt.Sprintf("%.1fs", s.DetectionDuration),
			"alarm_level", s.AlarmLevel,
		)
	}
}
