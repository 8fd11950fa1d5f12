package health

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/service"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error   { return f(ctx) }
func (f pingFunc) Health(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func ids(v ...int) func() []int { return func() []int { return v } }

func TestDatabaseChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewDatabaseChecker(pingFunc(ok)).Check(context.Background()).Status)

	check := NewDatabaseChecker(pingFunc(func(context.Context) error { return errors.New("disk I/O error") })).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Contains(t, check.Message, "disk I/O error")

	assert.Equal(t, StatusDegraded, NewDatabaseChecker(nil).Check(context.Background()).Status)
}

func TestLandmarkChecker(t *testing.T) {
	check := NewLandmarkChecker("http://localhost:8000", pingFunc(ok)).Check(context.Background())
	assert.Equal(t, StatusHealthy, check.Status)
	assert.Equal(t, "http://localhost:8000", check.Details["url"])

	down := NewLandmarkChecker("http://localhost:8000", pingFunc(func(context.Context) error { return errors.New("connection refused") }))
	assert.Equal(t, StatusDegraded, down.Check(context.Background()).Status)
}

func TestCameraChecker(t *testing.T) {
	tests := []struct {
		name         string
		configured   int
		running      []int
		reconnecting []int
		want         Status
	}{
		{"all running", 2, []int{0, 1}, nil, StatusHealthy},
		{"reconnecting", 2, []int{0, 1}, []int{1}, StatusDegraded},
		{"partially started", 3, []int{0}, nil, StatusDegraded},
		{"none running", 2, nil, nil, StatusUnhealthy},
		{"nothing configured", 0, nil, nil, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCameraChecker(tt.configured, ids(tt.running...), ids(tt.reconnecting...))
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

func TestManager_Check(t *testing.T) {
	svcManager := service.NewManager(logger.NewNopLogger())
	m := NewManager(logger.NewNopLogger(), svcManager)

	report := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Checks)

	m.RegisterChecker(NewDatabaseChecker(pingFunc(ok)))
	m.RegisterChecker(NewCameraChecker(2, ids(0, 1), ids(1)))
	report = m.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Checks, 2)
	assert.Equal(t, StatusDegraded, report.Checks["cameras"].Status)

	m.RegisterChecker(NewCameraChecker(1, ids(), ids()))
	// same name replaces the earlier entry in the report
	report = m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestStorageChecker(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	check := NewStorageChecker(dir, 100.1).Check(context.Background())
	assert.Equal(t, StatusHealthy, check.Status)
	assert.DirExists(t, dir)
	assert.Contains(t, check.Details, "usage_percent")

	// any real filesystem is above zero usage
	check = NewStorageChecker(dir, 0).Check(context.Background())
	assert.Equal(t, StatusDegraded, check.Status)
}
