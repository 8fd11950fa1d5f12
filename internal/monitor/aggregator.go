package monitor

import (
	"github.com/samber/lo"

	"github.com/vzahanych/gesture-guard/internal/config"
)

// Aggregator collects the status of every configured camera slot.
type Aggregator struct {
	config  *config.Service
	manager *Manager
}

// NewAggregator creates a status aggregator
func NewAggregator(cfg *config.Service, mgr *Manager) *Aggregator {
	return &Aggregator{config: cfg, manager: mgr}
}

// Snapshot returns one entry per configured camera, in configuration
// order. An entry is nil when no worker is registered for that slot.
func (a *Aggregator) Snapshot() []*CameraStatus {
	return lo.Map(a.config.Snapshot().CameraIDs(), func(id int, _ int) *CameraStatus {
		w, ok := a.manager.Processor(id)
		if !ok {
			return nil
		}
		return w.Status()
	})
}

// Reconnecting returns the ids of running cameras whose stream is down.
func (a *Aggregator) Reconnecting() []int {
	return lo.FilterMap(a.Snapshot(), func(s *CameraStatus, _ int) (int, bool) {
		if s == nil || !s.Reconnecting {
			return 0, false
		}
		return s.CameraID, true
	})
}
