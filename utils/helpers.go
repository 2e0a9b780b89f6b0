package utils

import (
	"fmt"
	"time"
)

// IsValidInterval reports whether interval names a ClickHouse toStartOf* bucket.
func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}

// ParseTimeRange parses RFC3339 start/end query values. Empty start defaults
// to seven days before now, empty end to now.
func ParseTimeRange(startParam, endParam string, now time.Time) (time.Time, time.Time, error) {
	start := now.UTC().Add(-7 * 24 * time.Hour)
	end := now.UTC()
	var err error
	if startParam != "" {
		if start, err = time.Parse(time.RFC3339, startParam); err != nil {
			return start, end, fmt.Errorf("invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
	}
	if endParam != "" {
		if end, err = time.Parse(time.RFC3339, endParam); err != nil {
			return start, end, fmt.Errorf("invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("'end' must not be before 'start'")
	}
	return start, end, nil
}
