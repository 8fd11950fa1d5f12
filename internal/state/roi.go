package state

import (
	"context"
	"fmt"
	"time"

	"github.com/vzahanych/gesture-guard/internal/config"
)

// SaveCameraROI stores the ROI override for a camera
func (s *Store) SaveCameraROI(ctx context.Context, cameraID int, roi config.ROI) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO camera_roi (camera_id, x, y, w, h, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(camera_id) DO UPDATE SET
			x = excluded.x,
			y = excluded.y,
			w = excluded.w,
			h = excluded.h,
			updated_at = excluded.updated_at
	`
	_, err := s.db.GetDB().ExecContext(ctx, query, cameraID, roi.X, roi.Y, roi.W, roi.H, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save camera roi: %w", err)
	}
	return nil
}

// ListCameraROIs returns every stored override keyed by camera id
func (s *Store) ListCameraROIs(ctx context.Context) (map[int]config.ROI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.GetDB().QueryContext(ctx, `SELECT camera_id, x, y, w, h FROM camera_roi`)
	if err != nil {
		return nil, fmt.Errorf("failed to list camera rois: %w", err)
	}
	defer rows.Close()

	rois := make(map[int]config.ROI)
	for rows.Next() {
		var id int
		var roi config.ROI
		if err := rows.Scan(&id, &roi.X, &roi.Y, &roi.W, &roi.H); err != nil {
			return nil, err
		}
		rois[id] = roi
	}
	return rois, rows.Err()
}

// RestoreROIs applies stored overrides to cfg. Overrides for cameras
// that are no longer configured are skipped.
func (s *Store) RestoreROIs(ctx context.Context, cfg *config.Service) (int, error) {
	rois, err := s.ListCameraROIs(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for id, roi := range rois {
		if _, ok := cfg.Camera(id); !ok {
			s.logger.Warn("Skipping ROI override for unknown camera", "camera_id", id)
			continue
		}
		if _, err := cfg.UpdateCameraROI(ctx, id, roi); err != nil {
			s.logger.Warn("Skipping invalid ROI override", "camera_id", id, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// ConfigWatcher persists ROIs that differ between old and new config
func (s *Store) ConfigWatcher() config.ConfigWatcher {
	return func(ctx context.Context, oldConfig, newConfig *config.Config) error {
		previous := make(map[int]config.ROI, len(oldConfig.Cameras))
		for _, cam := range oldConfig.Cameras {
			previous[cam.ID] = cam.ROI
		}
		for _, cam := range newConfig.Cameras {
			if roi, ok := previous[cam.ID]; ok && roi == cam.ROI {
				continue
			}
			if err := s.SaveCameraROI(ctx, cam.ID, cam.ROI); err != nil {
				return err
			}
		}
		return nil
	}
}
