package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pianosale/api/logger"
	"pianosale/api/models"
	"pianosale/api/utils"
)

// AnalyticsStore reads and writes the analytics_events table in ClickHouse.
type AnalyticsStore struct {
	conn driver.Conn
	log  *logger.Logger
}

type EventTypeCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}

func NewAnalyticsStore(conn driver.Conn, log *logger.Logger) *AnalyticsStore {
	if log == nil {
		log = logger.Nop()
	}
	return &AnalyticsStore{conn: conn, log: log.With("store", "AnalyticsStore")}
}

func (s *AnalyticsStore) InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, user_id, session_id, timestamp, page_path, referrer, user_agent,
			ip_address, duration_ms, location, event_data
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.EventType,
			event.UserID,
			event.SessionID,
			event.Timestamp,
			event.PagePath,
			event.Referrer,
			event.UserAgent,
			event.IPAddress,
			event.DurationMs,
			event.Location,
			string(event.EventData),
		)
		if err != nil {
			s.log.Warn("dropping event from batch", "event_id", event.EventID, "error", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.Debug("inserted analytics events", "count", len(events))
	return nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []interface{}{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []EventTypeCountByTime
	for rows.Next() {
		var (
			timeBucket time.Time
			count      uint64
			eventType  string
			current    EventTypeCountByTime
		)
		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventType); err != nil {
				s.log.Warn("scan event counts row", "error", err)
				continue
			}
			current.EventType = &eventType
		} else if err := rows.Scan(&timeBucket, &count); err != nil {
			s.log.Warn("scan event counts row", "error", err)
			continue
		}
		current.Time = timeBucket
		current.Count = count
		results = append(results, current)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}
	return results, nil
}

// GetAverageEventDuration averages duration_ms. For time_on_page this is the
// mean cumulative time at each tick.
func (s *AnalyticsStore) GetAverageEventDuration(ctx context.Context, eventTypeFilter string, start, end time.Time) (float64, error) {
	query := `SELECT avg(duration_ms) FROM analytics_events WHERE timestamp >= ? AND timestamp <= ?`
	args := []interface{}{start, end}
	if eventTypeFilter != "" {
		query += ` AND event_type = ?`
		args = append(args, eventTypeFilter)
	}

	var avgDuration float64
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&avgDuration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query average event duration: %w", err)
	}
	if math.IsNaN(avgDuration) {
		return 0, nil
	}
	return avgDuration, nil
}

func (s *AnalyticsStore) GetAverageCustomEventParameter(ctx context.Context, eventTypeFilter, paramName string, start, end time.Time) (float64, error) {
	if paramName == "" {
		return 0, fmt.Errorf("parameter name for average calculation cannot be empty")
	}

	query := `
		SELECT avg(JSONExtractFloat(event_data, ?))
		FROM analytics_events
		WHERE event_type = ? AND timestamp >= ? AND timestamp <= ?
	`
	var avgValue float64
	if err := s.conn.QueryRow(ctx, query, paramName, eventTypeFilter, start, end).Scan(&avgValue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query average of custom event parameter '%s': %w", paramName, err)
	}
	// avg over zero rows is NaN, which JSON cannot encode.
	if math.IsNaN(avgValue) {
		return 0, nil
	}
	return avgValue, nil
}

func (s *AnalyticsStore) GetUniqueUsersOverTime(ctx context.Context, interval string, start, end time.Time) ([]EventTypeCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	// Landing page visitors are anonymous, so a page view session stands in for a user.
	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(if(user_id != '', user_id, session_id)) AS unique_visitors
		FROM analytics_events
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique users over time: %w", err)
	}
	defer rows.Close()

	var results []EventTypeCountByTime
	for rows.Next() {
		var timeBucket time.Time
		var unique uint64
		if err := rows.Scan(&timeBucket, &unique); err != nil {
			s.log.Warn("scan unique users row", "error", err)
			continue
		}
		results = append(results, EventTypeCountByTime{Time: timeBucket, Count: unique})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique users: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetTopNPagePaths(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT page_path, count() as view_count
		FROM analytics_events
		WHERE event_type = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY page_path
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, models.EventPageView, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top page paths: %w", err)
	}
	defer rows.Close()

	var results []models.TopPathResult
	for rows.Next() {
		var r models.TopPathResult
		if err := rows.Scan(&r.PagePath, &r.Count); err != nil {
			s.log.Warn("scan top paths row", "error", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top page paths: %w", err)
	}
	return results, nil
}

// GetWebVitalRatings counts web_vital readings per rating for one metric.
func (s *AnalyticsStore) GetWebVitalRatings(ctx context.Context, metricName string, start, end time.Time) ([]models.RatingCount, error) {
	if metricName == "" {
		return nil, fmt.Errorf("metric name cannot be empty")
	}

	query := `
		SELECT JSONExtractString(event_data, 'rating') AS rating, count() AS readings
		FROM analytics_events
		WHERE event_type = ? AND JSONExtractString(event_data, 'name') = ?
			AND timestamp >= ? AND timestamp <= ?
		GROUP BY rating
		ORDER BY rating ASC
	`
	rows, err := s.conn.Query(ctx, query, models.EventWebVital, metricName, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query web vital ratings: %w", err)
	}
	defer rows.Close()

	var results []models.RatingCount
	for rows.Next() {
		var r models.RatingCount
		if err := rows.Scan(&r.Rating, &r.Count); err != nil {
			s.log.Warn("scan web vital row", "error", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for web vital ratings: %w", err)
	}
	return results, nil
}
