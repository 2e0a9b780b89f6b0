package models

import (
	"encoding/json"
	"time"
)

// Event types emitted by the engagement tracker.
const (
	EventScrollDepth = "scroll_depth"
	EventTimeOnPage  = "time_on_page"
	EventExitIntent  = "exit_intent"
	EventWebVital    = "web_vital"
	EventPageView    = "page_view"
)

// IsTrackerEvent reports whether eventType is written only by the engagement
// tracker and must not arrive through raw ingestion.
func IsTrackerEvent(eventType string) bool {
	switch eventType {
	case EventScrollDepth, EventTimeOnPage, EventExitIntent, EventWebVital:
		return true
	default:
		return false
	}
}

// AnalyticsEvent is one row of the analytics_events table.
type AnalyticsEvent struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType" binding:"required"`
	UserID     string          `json:"userId"`
	SessionID  string          `json:"sessionId"`
	Timestamp  time.Time       `json:"timestamp"`
	PagePath   string          `json:"pagePath"`
	Referrer   string          `json:"referrer"`
	UserAgent  string          `json:"userAgent"`
	IPAddress  string          `json:"ipAddress"`
	DurationMs int64           `json:"durationMs"`
	Location   string          `json:"location,omitempty"`
	EventData  json.RawMessage `json:"eventData,omitempty"`
}

type TopPathResult struct {
	PagePath string `json:"pagePath"`
	Count    uint64 `json:"count"`
}

type RatingCount struct {
	Rating string `json:"rating"`
	Count  uint64 `json:"count"`
}
