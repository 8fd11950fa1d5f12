package monitor

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/fault"
	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/service"
)

// Manager keeps at most one running worker per configured camera id.
// Opening a source and waiting for a worker to exit happen outside mu.
type Manager struct {
	config *config.Service
	deps   WorkerDeps
	logger *logger.Logger

	mu       sync.Mutex
	workers  map[int]*workerHandle
	starting map[int]struct{}
}

type workerHandle struct {
	worker   *Worker
	cancel   context.CancelFunc
	stopping bool
}

// NewManager creates a camera manager
func NewManager(cfg *config.Service, deps WorkerDeps, log *logger.Logger) *Manager {
	return &Manager{
		config:   cfg,
		deps:     deps,
		logger:   log.Named("monitor"),
		workers:  make(map[int]*workerHandle),
		starting: make(map[int]struct{}),
	}
}

// StartCamera builds and starts the worker for id. It fails with a
// Configuration error for an unknown id and a Runtime error when a worker
// for id is already starting, running or stopping. Construction failures
// are returned as-is.
func (m *Manager) StartCamera(id int) error {
	cam, ok := m.config.Camera(id)
	if !ok {
		return fault.New(fault.Configuration, "start_camera", id, fmt.Errorf("camera %d is not configured", id))
	}

	if err := m.reserve(id); err != nil {
		return err
	}

	w, err := NewWorker(m.config.Snapshot(), cam, m.deps, m.logger)

	m.mu.Lock()
	delete(m.starting, id)
	if err != nil {
		m.mu.Unlock()
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.FatalInit, "start_camera", id, err)
		}
		m.logger.Error("Failed to start camera", "camera_id", id, "error", err)
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.workers[id] = &workerHandle{worker: w, cancel: cancel}
	go w.Run(ctx)
	m.mu.Unlock()

	m.logger.Info("Camera started", "camera_id", id, "source", cam.Source)
	m.publish(service.EventTypeCameraStarted, id, nil)
	return nil
}

// reserve claims id for a start in progress.
func (m *Manager) reserve(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.starting[id]; ok {
		return fault.New(fault.Runtime, "start_camera", id, fmt.Errorf("camera %d is already starting", id))
	}
	if h, ok := m.workers[id]; ok {
		select {
		case <-h.worker.Done():
			delete(m.workers, id)
		default:
			return fault.New(fault.Runtime, "start_camera", id, fmt.Errorf("camera %d is already running", id))
		}
	}
	m.starting[id] = struct{}{}
	return nil
}

// StopCamera stops one worker and waits until it has released its
// resources.
func (m *Manager) StopCamera(id int) error {
	if _, ok := m.config.Camera(id); !ok {
		return fault.New(fault.Configuration, "stop_camera", id, fmt.Errorf("camera %d is not configured", id))
	}

	m.mu.Lock()
	h, ok := m.workers[id]
	if !ok || h.stopping {
		m.mu.Unlock()
		return fault.New(fault.Runtime, "stop_camera", id, fmt.Errorf("camera %d is not running", id))
	}
	h.stopping = true
	h.cancel()
	m.mu.Unlock()

	<-h.worker.Done()
	m.forget(id, h)

	m.logger.Info("Camera stopped", "camera_id", id)
	m.publish(service.EventTypeCameraStopped, id, nil)
	return nil
}

// StopAll signals every worker, waits for all of them and clears the
// registry. It is a no-op with nothing running.
func (m *Manager) StopAll() {
	m.mu.Lock()
	handles := make(map[int]*workerHandle, len(m.workers))
	for id, h := range m.workers {
		if h.stopping {
			continue
		}
		h.stopping = true
		h.cancel()
		handles[id] = h
	}
	m.mu.Unlock()

	if len(handles) == 0 {
		return
	}
	for id, h := range handles {
		<-h.worker.Done()
		m.forget(id, h)
		m.publish(service.EventTypeCameraStopped, id, nil)
	}
	m.logger.Info("All cameras stopped", "count", len(handles))
}

// forget drops h from the registry unless id was already reused.
func (m *Manager) forget(id int, h *workerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.workers[id] == h {
		delete(m.workers, id)
	}
}

// Processor returns the live worker for id.
func (m *Manager) Processor(id int) (*Worker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.workers[id]
	if !ok {
		return nil, false
	}
	return h.worker, true
}

// Running returns the ids of registered workers in ascending order.
func (m *Manager) Running() []int {
	m.mu.Lock()
	ids := lo.Keys(m.workers)
	m.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// PauseAll stops playback on every running camera.
func (m *Manager) PauseAll() int {
	workers := m.snapshotWorkers()
	for _, w := range workers {
		w.Pause()
	}
	return len(workers)
}

// ResetAll forces every running camera's escalation back to idle.
func (m *Manager) ResetAll() int {
	workers := m.snapshotWorkers()
	for _, w := range workers {
		w.Reset()
	}
	return len(workers)
}

// UpdateROI stores roi for camera id and applies it to the running
// worker, if any. It returns the ROI in effect: the clamped one when the
// camera is running, otherwise the stored one.
func (m *Manager) UpdateROI(ctx context.Context, id int, roi config.ROI) (config.ROI, error) {
	stored, err := m.config.UpdateCameraROI(ctx, id, roi)
	if err != nil {
		return config.ROI{}, err
	}

	applied := stored
	if w, ok := m.Processor(id); ok {
		cam, _ := m.config.Camera(id)
		if applied, err = w.UpdateROI(cam); err != nil {
			return config.ROI{}, err
		}
	}

	m.publish(service.EventTypeROIUpdated, id, map[string]interface{}{
		"x": applied.X,
		"y": applied.Y,
		"w": applied.W,
		"h": applied.H,
	})
	return applied, nil
}

func (m *Manager) snapshotWorkers() []*Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.MapToSlice(m.workers, func(_ int, h *workerHandle) *Worker { return h.worker })
}

func (m *Manager) publish(eventType service.EventType, id int, data map[string]interface{}) {
	if m.deps.Events == nil {
		return
	}
	if data == nil {
		data = make(map[string]interface{}, 1)
	}
	data[service.DataCameraID] = id
	m.deps.Events.Publish(service.Event{
		Type:   eventType,
		Source: "monitor",
		Data:   data,
	})
}
