package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vzahanych/gesture-guard/internal/logger"
)

// fakeService embeds ServiceBase like the process services do and
// records Stop calls into a shared log.
type fakeService struct {
	*ServiceBase
	startErr  error
	stopErr   error
	stopDelay time.Duration
	stops     *stopLog
}

type stopLog struct {
	mu    sync.Mutex
	names []string
}

func (l *stopLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *stopLog) order() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func newFakeService(name string, stops *stopLog) *fakeService {
	return &fakeService{ServiceBase: NewServiceBase(name, logger.NewNopLogger()), stops: stops}
}

func (f *fakeService) Start(ctx context.Context) error {
	return f.startErr
}

func (f *fakeService) Stop(ctx context.Context) error {
	time.Sleep(f.stopDelay)
	if f.stops != nil {
		f.stops.add(f.Name())
	}
	return f.stopErr
}

// plainService has no event bus hook.
type plainService struct{ name string }

func (p *plainService) Name() string                    { return p.name }
func (p *plainService) Start(ctx context.Context) error { return nil }
func (p *plainService) Stop(ctx context.Context) error  { return nil }

// registerProcessServices registers the background services in the order
// the process does: recorder, reporter, web server.
func registerProcessServices(mgr *Manager, stops *stopLog) (recorder, reporter, web *fakeService) {
	recorder = newFakeService("alarm-recorder", stops)
	reporter = newFakeService("status-reporter", stops)
	web = newFakeService("web-server", stops)
	mgr.Register(recorder)
	mgr.Register(reporter)
	mgr.Register(web)
	return recorder, reporter, web
}

func TestManager_Register(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	require.NotNil(t, mgr.GetEventBus())
	assert.Zero(t, mgr.GetServiceCount())

	recorder, _, _ := registerProcessServices(mgr, nil)
	mgr.Register(&plainService{name: "preview"})

	assert.Equal(t, 4, mgr.GetServiceCount())
	assert.Same(t, mgr.GetEventBus(), recorder.EventBus(), "services with events get the shared bus")

	statuses := mgr.GetAllStatuses()
	require.Len(t, statuses, 4)
	for name, status := range statuses {
		assert.Equal(t, StatusStopped, status.GetStatus(), name)
	}
}

func TestManager_StartIsolatesFailingService(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	recorder, _, _ := registerProcessServices(mgr, nil)
	recorder.startErr = errors.New("database is locked")

	require.NoError(t, mgr.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return mgr.GetServiceStatus("status-reporter").IsRunning() &&
			mgr.GetServiceStatus("web-server").IsRunning()
	}, time.Second, 10*time.Millisecond)

	status := mgr.GetServiceStatus("alarm-recorder")
	assert.Eventually(t, func() bool { return status.GetStatus() == StatusError }, time.Second, 10*time.Millisecond)
	assert.EqualError(t, status.GetError(), "database is locked")
}

func TestManager_ShutdownStopsInReverseOrder(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	stops := &stopLog{}
	registerProcessServices(mgr, stops)

	require.NoError(t, mgr.Start(context.Background()))
	stopped := mgr.GetEventBus().Subscribe(EventTypeServiceStopped)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	// last registered stops first
	assert.Equal(t, []string{"web-server", "status-reporter", "alarm-recorder"}, stops.order())
	for _, name := range []string{"alarm-recorder", "status-reporter", "web-server"} {
		assert.Equal(t, StatusStopped, mgr.GetServiceStatus(name).GetStatus(), name)
	}

	var events []string
	for ev := range stopped {
		events = append(events, ev.Data[DataService].(string))
	}
	assert.Equal(t, stops.order(), events)
}

func TestManager_ShutdownRecordsStopError(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	_, reporter, _ := registerProcessServices(mgr, nil)
	reporter.stopErr = errors.New("context canceled")

	require.NoError(t, mgr.Start(context.Background()))
	require.NoError(t, mgr.Shutdown(context.Background()))

	assert.Equal(t, StatusError, mgr.GetServiceStatus("status-reporter").GetStatus())
	assert.Equal(t, StatusStopped, mgr.GetServiceStatus("alarm-recorder").GetStatus())
}

func TestManager_ShutdownTimeout(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	_, _, web := registerProcessServices(mgr, nil)
	web.stopDelay = 2 * time.Second

	require.NoError(t, mgr.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := mgr.Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown timeout")
}

func TestManager_PublishesLifecycleEvents(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())
	recorder := newFakeService("alarm-recorder", nil)
	recorder.startErr = errors.New("no database")
	mgr.Register(recorder)
	mgr.Register(newFakeService("status-reporter", nil))

	ch := mgr.GetEventBus().Subscribe(EventTypeServiceStarted, EventTypeServiceError)
	require.NoError(t, mgr.Start(context.Background()))

	got := map[EventType]string{}
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case ev := <-ch:
			got[ev.Type] = ev.Data[DataService].(string)
		case <-timeout:
			t.Fatalf("Expected 2 lifecycle events, got %v", got)
		}
	}

	assert.Equal(t, "status-reporter", got[EventTypeServiceStarted])
	assert.Equal(t, "alarm-recorder", got[EventTypeServiceError])
}
