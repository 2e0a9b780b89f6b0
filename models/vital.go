package models

// Rating is the qualitative bucket of a web vital reading.
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
)

// WebVitalMetric is one reading reported by the browser's performance API.
type WebVitalMetric struct {
	Name           string  `json:"name" binding:"required"`
	Value          float64 `json:"value"`
	ID             string  `json:"id"`
	NavigationType string  `json:"navigationType,omitempty"`
}
