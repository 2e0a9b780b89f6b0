package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pianosale/api/logger"
	"pianosale/api/models"
	"pianosale/api/tracking"
)

type SessionHandlers struct {
	Registry *tracking.Registry
	log      *logger.Logger
}

func NewSessionHandlers(registry *tracking.Registry, log *logger.Logger) *SessionHandlers {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionHandlers{Registry: registry, log: log.With("handler", "sessions")}
}

// startSessionRequest leaves the flags as pointers so an omitted flag means
// enabled rather than false.
type startSessionRequest struct {
	PageName             string `json:"pageName" binding:"required"`
	EnableScrollTracking *bool  `json:"enableScrollTracking"`
	EnableTimeTracking   *bool  `json:"enableTimeTracking"`
	EnableExitIntent     *bool  `json:"enableExitIntent"`
	ScrollThresholds     []int  `json:"scrollThresholds"`
	TimeUpdateInterval   int    `json:"timeUpdateInterval"`
	ClientDrivenTimer    bool   `json:"clientDrivenTimer"`
}

func (r startSessionRequest) config() tracking.Config {
	cfg := tracking.DefaultConfig(r.PageName)
	if r.EnableScrollTracking != nil {
		cfg.EnableScrollTracking = *r.EnableScrollTracking
	}
	if r.EnableTimeTracking != nil {
		cfg.EnableTimeTracking = *r.EnableTimeTracking
	}
	if r.EnableExitIntent != nil {
		cfg.EnableExitIntent = *r.EnableExitIntent
	}
	if len(r.ScrollThresholds) > 0 {
		cfg.ScrollThresholds = r.ScrollThresholds
	}
	if r.TimeUpdateInterval > 0 {
		cfg.TimeUpdateInterval = r.TimeUpdateInterval
	}
	cfg.ClientDrivenTimer = r.ClientDrivenTimer
	return cfg
}

func (h *SessionHandlers) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	tracker, err := h.Registry.Open(req.config())
	if errors.Is(err, tracking.ErrTooManySessions) {
		h.log.Warn("session limit reached", "page", req.PageName)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many open sessions, try again later"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": tracker.SessionID(), "config": tracker.Config()})
}

func (h *SessionHandlers) tracker(c *gin.Context) (*tracking.Tracker, bool) {
	tracker, err := h.Registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return tracker, true
}

func (h *SessionHandlers) Scroll(c *gin.Context) {
	var sample tracking.ScrollSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	tracker, ok := h.tracker(c)
	if !ok {
		return
	}
	fired := tracker.OnScroll(c.Request.Context(), sample)
	if fired == nil {
		fired = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"thresholds": fired})
}

func (h *SessionHandlers) Exit(c *gin.Context) {
	var sig tracking.ExitSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if sig.Kind != tracking.ExitPointerLeave && sig.Kind != tracking.ExitVisibilityHidden {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be pointer_leave or visibility_hidden"})
		return
	}
	if sig.Kind == tracking.ExitPointerLeave && sig.ClientY == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientY is required for pointer_leave"})
		return
	}
	tracker, ok := h.tracker(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"fired": tracker.OnExitSignal(c.Request.Context(), sig)})
}

func (h *SessionHandlers) Tick(c *gin.Context) {
	tracker, ok := h.tracker(c)
	if !ok {
		return
	}
	elapsed, recorded, err := tracker.ClientTick(c.Request.Context())
	if errors.Is(err, tracking.ErrServerDrivenTimer) {
		c.JSON(http.StatusConflict, gin.H{"error": "Session timer is driven by the server; open the session with clientDrivenTimer to send ticks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"elapsedMs": elapsed, "recorded": recorded})
}

func (h *SessionHandlers) Vitals(c *gin.Context) {
	var m models.WebVitalMetric
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	err := h.Registry.PublishVital(c.Param("id"), m)
	switch {
	case errors.Is(err, tracking.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	case errors.Is(err, tracking.ErrVitalDropped):
		h.log.Warn("web vital dropped", "session_id", c.Param("id"), "metric", m.Name)
		c.JSON(http.StatusAccepted, gin.H{"dropped": true})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record web vital"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"dropped": false, "rating": tracking.Classify(m.Name, m.Value)})
}

func (h *SessionHandlers) EndSession(c *gin.Context) {
	snapshot, err := h.Registry.Close(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
