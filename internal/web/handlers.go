package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/fault"
	"github.com/vzahanych/gesture-guard/internal/health"
	"github.com/vzahanych/gesture-guard/internal/monitor"
	"github.com/vzahanych/gesture-guard/internal/state"
)

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	if s.healthMgr == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  health.StatusHealthy,
			"service": "web-server",
		})
		return
	}

	report := s.healthMgr.Check(c.Request.Context())
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// handleStatus handles the system status endpoint
func (s *Server) handleStatus(c *gin.Context) {
	uptime := time.Since(s.startTime)

	statuses := []*monitor.CameraStatus{}
	if s.statuses != nil {
		statuses = s.statuses.Snapshot()
	}
	running := []int{}
	if s.cameras != nil {
		running = s.cameras.Running()
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime":         uptime.String(),
		"uptime_seconds": int64(uptime.Seconds()),
		"version":        s.version,
		"timestamp":      time.Now().Format(time.RFC3339),
		"running":        running,
		"cameras":        statuses,
	})
}

// handleListCameras lists every configured camera slot with its status
func (s *Server) handleListCameras(c *gin.Context) {
	cfg := s.configSvc.Snapshot()
	statuses := s.statusByID()

	response := make([]gin.H, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		response = append(response, cameraToJSON(cam, statuses[cam.ID]))
	}

	c.JSON(http.StatusOK, gin.H{
		"cameras": response,
		"count":   len(response),
	})
}

// handleGetCamera returns one camera slot
func (s *Server) handleGetCamera(c *gin.Context) {
	id, ok := s.cameraParam(c)
	if !ok {
		return
	}
	cam, _ := s.configSvc.Camera(id)
	c.JSON(http.StatusOK, cameraToJSON(cam, s.statusByID()[id]))
}

func (s *Server) handleStartCamera(c *gin.Context) {
	id, ok := s.controlParam(c)
	if !ok {
		return
	}
	if err := s.cameras.StartCamera(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": id, "running": true})
}

func (s *Server) handleStopCamera(c *gin.Context) {
	id, ok := s.controlParam(c)
	if !ok {
		return
	}
	if err := s.cameras.StopCamera(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": id, "running": false})
}

// handleRestartCamera stops the worker if it runs and starts a fresh one
func (s *Server) handleRestartCamera(c *gin.Context) {
	id, ok := s.controlParam(c)
	if !ok {
		return
	}
	if err := s.cameras.StopCamera(id); err != nil && !fault.Is(err, fault.Runtime) {
		respondError(c, err)
		return
	}
	if err := s.cameras.StartCamera(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": id, "running": true})
}

func (s *Server) handleStopAll(c *gin.Context) {
	if !s.requireCameras(c) {
		return
	}
	stopped := s.cameras.Running()
	s.cameras.StopAll()
	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}

// handleUpdateROI replaces the ROI of a camera slot and of its running worker
func (s *Server) handleUpdateROI(c *gin.Context) {
	id, ok := s.controlParam(c)
	if !ok {
		return
	}

	var req struct {
		X *int `json:"x" binding:"required"`
		Y *int `json:"y" binding:"required"`
		W *int `json:"w" binding:"required"`
		H *int `json:"h" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	roi, err := s.cameras.UpdateROI(c.Request.Context(), id, config.ROI{X: *req.X, Y: *req.Y, W: *req.W, H: *req.H})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": id, "roi": roi})
}

func (s *Server) handlePauseAlarms(c *gin.Context) {
	if !s.requireCameras(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": s.cameras.PauseAll()})
}

func (s *Server) handleResetAlarms(c *gin.Context) {
	if !s.requireCameras(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": s.cameras.ResetAll()})
}

// handleListEvents lists alarm history, newest first
func (s *Server) handleListEvents(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event history not available"})
		return
	}

	var filter state.AlarmEventFilter
	if v := c.Query("camera_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid camera_id"})
			return
		}
		filter.CameraID = &id
	}
	filter.Kind = c.Query("kind")
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since, expected RFC3339"})
			return
		}
		filter.Since = since
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
			return
		}
		filter.Offset = offset
	}

	events, total, err := s.history.ListAlarmEvents(c.Request.Context(), filter)
	if err != nil {
		s.LogError("Failed to list alarm events", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
		"total":  total,
	})
}

// handleMJPEGStream serves the annotated preview of one camera
func (s *Server) handleMJPEGStream(c *gin.Context) {
	id, ok := s.cameraParam(c)
	if !ok {
		return
	}
	if s.streams == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Preview not available"})
		return
	}
	s.streams.Handler(id).ServeHTTP(c.Writer, c.Request)
}

// cameraParam parses :id and checks that the slot is configured
func (s *Server) cameraParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid camera id"})
		return 0, false
	}
	if _, ok := s.configSvc.Camera(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
		return 0, false
	}
	return id, true
}

func (s *Server) controlParam(c *gin.Context) (int, bool) {
	if !s.requireCameras(c) {
		return 0, false
	}
	return s.cameraParam(c)
}

func (s *Server) requireCameras(c *gin.Context) bool {
	if s.cameras == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Camera manager not available"})
		return false
	}
	return true
}

func (s *Server) statusByID() map[int]*monitor.CameraStatus {
	out := make(map[int]*monitor.CameraStatus)
	if s.statuses == nil {
		return out
	}
	for _, st := range s.statuses.Snapshot() {
		if st != nil {
			out[st.CameraID] = st
		}
	}
	return out
}

func cameraToJSON(cam config.CameraConfig, status *monitor.CameraStatus) gin.H {
	return gin.H{
		"id":             cam.ID,
		"source":         cam.Source,
		"resolution":     cam.Resolution,
		"roi":            cam.ROI,
		"min_confidence": cam.MinConfidence,
		"running":        status != nil,
		"status":         status,
	}
}

// errorStatus maps a classified error to an HTTP status code
func errorStatus(err error) int {
	switch fault.KindOf(err) {
	case fault.Configuration:
		return http.StatusBadRequest
	case fault.Runtime:
		return http.StatusConflict
	case fault.Resource, fault.FatalInit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var fe *fault.Error
	if errors.As(err, &fe) {
		body["kind"] = fe.Kind.String()
		body["code"] = fe.Kind.Code()
	}
	c.JSON(errorStatus(err), body)
}
