package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pianosale/api/logger"
	"pianosale/api/models"
	"pianosale/api/store"
	"pianosale/api/utils"
)

// AnalyticsQuerier backs the admin dashboard.
type AnalyticsQuerier interface {
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]store.EventTypeCountByTime, error)
	GetAverageEventDuration(ctx context.Context, eventTypeFilter string, start, end time.Time) (float64, error)
	GetAverageCustomEventParameter(ctx context.Context, eventTypeFilter, paramName string, start, end time.Time) (float64, error)
	GetUniqueUsersOverTime(ctx context.Context, interval string, start, end time.Time) ([]store.EventTypeCountByTime, error)
	GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error)
	GetWebVitalRatings(ctx context.Context, metricName string, start, end time.Time) ([]models.RatingCount, error)
}

// EventQueue accepts raw client events for asynchronous insertion.
type EventQueue interface {
	Enqueue(rows []models.AnalyticsEvent) (int, error)
}

type AnalyticsHandlers struct {
	Stats AnalyticsQuerier
	Queue EventQueue
	log   *logger.Logger
	now   func() time.Time
}

func NewAnalyticsHandlers(stats AnalyticsQuerier, queue EventQueue, log *logger.Logger) *AnalyticsHandlers {
	if log == nil {
		log = logger.Nop()
	}
	return &AnalyticsHandlers{Stats: stats, Queue: queue, log: log.With("handler", "analytics"), now: time.Now}
}

// TrackEvent accepts a batch of page events such as page_view or cta_click.
func (h *AnalyticsHandlers) TrackEvent(c *gin.Context) {
	var incoming []models.AnalyticsEvent
	if err := c.ShouldBindJSON(&incoming); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if len(incoming) == 0 {
		c.Status(http.StatusOK)
		return
	}

	now := h.now().UTC()
	for i := range incoming {
		ev := &incoming[i]
		if ev.EventType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "eventType is required for every event"})
			return
		}
		if models.IsTrackerEvent(ev.EventType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "eventType " + ev.EventType + " is reserved for session tracking"})
			return
		}
		ev.EventID = uuid.New().String()
		ev.IPAddress = c.ClientIP()
		if ev.UserAgent == "" {
			ev.UserAgent = c.Request.UserAgent()
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
	}

	accepted, err := h.Queue.Enqueue(incoming)
	if err != nil {
		h.log.Warn("analytics queue rejected events", "accepted", accepted, "total", len(incoming), "error", err)
		if errors.Is(err, store.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics temporarily unavailable", "accepted": accepted})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record analytics events"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

func (h *AnalyticsHandlers) timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, end, err := utils.ParseTimeRange(c.Query("start"), c.Query("end"), h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return start, end, false
	}
	return start, end, true
}

func (h *AnalyticsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetEventCountsOverTime(ctx, interval, start, end, c.Query("eventType"))
	if err != nil {
		h.log.Error("event counts query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetAverageEventDuration(c *gin.Context) {
	eventType := c.DefaultQuery("eventType", models.EventTimeOnPage)
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	avg, err := h.Stats.GetAverageEventDuration(ctx, eventType, start, end)
	if err != nil {
		h.log.Error("average duration query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average event duration statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"eventType":         eventType,
		"startDate":         start.Format(time.RFC3339),
		"endDate":           end.Format(time.RFC3339),
		"averageDurationMs": avg,
	})
}

func (h *AnalyticsHandlers) GetAverageCustomEventParameter(c *gin.Context) {
	eventType := c.Query("eventType")
	paramName := c.Query("paramName")
	if eventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eventType query parameter is required"})
		return
	}
	if paramName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paramName query parameter is required (e.g., 'threshold', 'value')"})
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	avg, err := h.Stats.GetAverageCustomEventParameter(ctx, eventType, paramName, start, end)
	if err != nil {
		h.log.Error("average param query failed", "param", paramName, "event_type", eventType, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve average custom event parameter statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"eventType":    eventType,
		"paramName":    paramName,
		"startDate":    start.Format(time.RFC3339),
		"endDate":      end.Format(time.RFC3339),
		"averageValue": avg,
	})
}

func (h *AnalyticsHandlers) GetUniqueUsersOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetUniqueUsersOverTime(ctx, interval, start, end)
	if err != nil {
		h.log.Error("unique visitors query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique user statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetTopNPagePaths(c *gin.Context) {
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetTopNPagePaths(ctx, start, end, limit)
	if err != nil {
		h.log.Error("top paths query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top page paths statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *AnalyticsHandlers) GetWebVitalRatings(c *gin.Context) {
	metric := c.Query("metric")
	if metric == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metric query parameter is required (e.g., 'LCP', 'CLS')"})
		return
	}
	start, end, ok := h.timeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetWebVitalRatings(ctx, metric, start, end)
	if err != nil {
		h.log.Error("web vitals query failed", "metric", metric, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve web vital statistics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metric":    metric,
		"startDate": start.Format(time.RFC3339),
		"endDate":   end.Format(time.RFC3339),
		"ratings":   results,
	})
}
