package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/service"
)

// recordedEvents are the bus events written to alarm history
var recordedEvents = []service.EventType{
	service.EventTypeAlarmFired,
	service.EventTypeAlarmCleared,
	service.EventTypeStreamLost,
	service.EventTypeStreamRecovered,
}

// Recorder persists alarm and stream events from the event bus
type Recorder struct {
	*service.ServiceBase
	store     *Store
	retention time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

const pruneInterval = time.Hour

// NewRecorder creates the alarm recorder service
func NewRecorder(store *Store, log *logger.Logger) *Recorder {
	return &Recorder{
		ServiceBase: service.NewServiceBase("alarm-recorder", log),
		store:       store,
	}
}

// SetRetention enables periodic removal of events older than d
func (r *Recorder) SetRetention(d time.Duration) {
	r.retention = d
}

// Start subscribes to the event bus
func (r *Recorder) Start(ctx context.Context) error {
	bus := r.EventBus()
	if bus == nil {
		return fmt.Errorf("alarm recorder has no event bus")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	events := bus.Subscribe(recordedEvents...)
	r.wg.Add(1)
	go r.consume(ctx, bus, events)

	if r.retention > 0 {
		r.wg.Add(1)
		go r.prune(ctx)
	}

	r.GetStatus().SetStatus(service.StatusRunning)
	r.LogInfo("Alarm recorder started")
	return nil
}

// Stop unsubscribes from the event bus and waits until every event
// already delivered has been written.
func (r *Recorder) Stop(ctx context.Context) error {
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
	r.LogInfo("Alarm recorder stopped")
	return nil
}

func (r *Recorder) consume(ctx context.Context, bus *service.EventBus, events <-chan service.Event) {
	defer r.wg.Done()
	defer bus.Unsubscribe(events)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			r.handle(ctx, event)
		case <-ctx.Done():
			r.drain(context.WithoutCancel(ctx), events)
			return
		}
	}
}

// drain writes whatever is still buffered without waiting for more.
func (r *Recorder) drain(ctx context.Context, events <-chan service.Event) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			r.handle(ctx, event)
		default:
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, event service.Event) {
	if err := r.record(ctx, event); err != nil {
		r.LogError("Failed to record event", err, "type", event.Type, "source", event.Source)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		removed, err := r.store.CleanupOldEvents(ctx, r.retention)
		if err != nil && ctx.Err() == nil {
			r.LogError("Failed to prune alarm history", err)
		} else if removed > 0 {
			r.LogInfo("Pruned alarm history", "removed", removed, "retention", r.retention.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Recorder) record(ctx context.Context, event service.Event) error {
	ev, err := alarmEventFrom(event)
	if err != nil {
		return err
	}
	saved, err := r.store.SaveAlarmEvent(ctx, ev)
	if err != nil {
		return err
	}
	r.LogDebug("Recorded alarm event", "id", saved.ID, "kind", saved.Kind, "camera_id", saved.CameraID)
	return nil
}

func alarmEventFrom(event service.Event) (AlarmEvent, error) {
	cameraID, ok := event.Data[service.DataCameraID].(int)
	if !ok {
		return AlarmEvent{}, fmt.Errorf("event %s has no camera id", event.Type)
	}
	return AlarmEvent{
		CameraID:         cameraID,
		Kind:             string(event.Type),
		ThresholdSeconds: intField(event.Data, service.DataThreshold),
		Level:            intField(event.Data, service.DataLevel),
		Continuous:       boolField(event.Data, service.DataContinuous),
		Played:           boolField(event.Data, service.DataPlayed),
		SessionSeconds:   floatField(event.Data, service.DataSession),
		OccurredAt:       event.Timestamp,
	}, nil
}

func intField(data map[string]interface{}, key string) int {
	v, _ := data[key].(int)
	return v
}

func boolField(data map[string]interface{}, key string) bool {
	v, _ := data[key].(bool)
	return v
}

func floatField(data map[string]interface{}, key string) float64 {
	v, _ := data[key].(float64)
	return v
}
