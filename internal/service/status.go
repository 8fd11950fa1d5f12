package service

import (
	"sync"
	"time"

	"github.com/vzahanych/gesture-guard/internal/logger"
)

// Status is a service lifecycle state
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// ServiceStatus tracks the lifecycle state of one service
type ServiceStatus struct {
	Name      string
	StartedAt time.Time

	mu     sync.RWMutex
	status Status
	err    error
}

// NewServiceStatus creates a status in the stopped state
func NewServiceStatus(name string) *ServiceStatus {
	return &ServiceStatus{Name: name, status: StatusStopped}
}

// SetStatus sets the state. Entering running records the start time
// and clears any previous error.
func (s *ServiceStatus) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	switch status {
	case StatusRunning:
		s.StartedAt = time.Now()
		s.err = nil
	case StatusStopped:
		s.StartedAt = time.Time{}
	}
}

// SetError moves the service into the error state
func (s *ServiceStatus) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
	s.err = err
}

// GetStatus returns the current state
func (s *ServiceStatus) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// GetError returns the last error
func (s *ServiceStatus) GetError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// IsRunning reports whether the service is running
func (s *ServiceStatus) IsRunning() bool {
	return s.GetStatus() == StatusRunning
}

// GetUptime returns how long the service has been running
func (s *ServiceStatus) GetUptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning || s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}

// ServiceBase carries the name, logger, status and event bus shared by
// every service implementation
type ServiceBase struct {
	name     string
	logger   *logger.Logger
	status   *ServiceStatus
	eventBus *EventBus
}

// NewServiceBase creates a service base
func NewServiceBase(name string, log *logger.Logger) *ServiceBase {
	return &ServiceBase{
		name:   name,
		logger: log.Named(name),
		status: NewServiceStatus(name),
	}
}

// Name returns the service name
func (b *ServiceBase) Name() string {
	return b.name
}

// SetEventBus sets the event bus for the service
func (b *ServiceBase) SetEventBus(bus *EventBus) {
	b.eventBus = bus
}

// EventBus returns the event bus, nil until registered with a manager
func (b *ServiceBase) EventBus() *EventBus {
	return b.eventBus
}

// GetStatus returns the service status
func (b *ServiceBase) GetStatus() *ServiceStatus {
	return b.status
}

// Logger returns the service logger
func (b *ServiceBase) Logger() *logger.Logger {
	return b.logger
}

// PublishEvent publishes an event when an event bus is set
func (b *ServiceBase) PublishEvent(eventType EventType, data map[string]interface{}) {
	if b.eventBus != nil {
		b.eventBus.Publish(Event{
			Type:   eventType,
			Source: b.name,
			Data:   data,
		})
	}
}

// LogInfo logs an info message
func (b *ServiceBase) LogInfo(msg string, fields ...interface{}) {
	b.logger.Info(msg, fields...)
}

// LogError logs an error message
func (b *ServiceBase) LogError(msg string, err error, fields ...interface{}) {
	b.logger.Error(msg, append([]interface{}{"error", err}, fields...)...)
}

// LogDebug logs a debug message
func (b *ServiceBase) LogDebug(msg string, fields ...interface{}) {
	b.logger.Debug(msg, fields...)
}
