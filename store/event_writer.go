package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"pianosale/api/logger"
	"pianosale/api/models"
	"pianosale/api/tracking"
)

var ErrQueueFull = errors.New("analytics queue full")

type EventInserter interface {
	InsertAnalyticsEvents(ctx context.Context, events []models.AnalyticsEvent) error
}

type EventWriterOptions struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// EventWriter is the tracker's Recorder. It queues events in memory and
// writes them to ClickHouse in batches from Run. A full queue drops events.
type EventWriter struct {
	ins        EventInserter
	log        *logger.Logger
	queue      chan models.AnalyticsEvent
	batchSize  int
	flushEvery time.Duration
	done       chan struct{}
}

func NewEventWriter(ins EventInserter, log *logger.Logger, opts EventWriterOptions) *EventWriter {
	if log == nil {
		log = logger.Nop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	return &EventWriter{
		ins:        ins,
		log:        log.With("component", "EventWriter"),
		queue:      make(chan models.AnalyticsEvent, opts.QueueSize),
		batchSize:  opts.BatchSize,
		flushEvery: opts.FlushInterval,
		done:       make(chan struct{}),
	}
}

func (w *EventWriter) RecordEvent(ctx context.Context, ev tracking.Event) error {
	row, err := EngagementRow(ev)
	if err != nil {
		return err
	}
	return w.enqueue(row)
}

func (w *EventWriter) RecordMetric(ctx context.Context, m tracking.MetricReading) error {
	row, err := MetricRow(m)
	if err != nil {
		return err
	}
	return w.enqueue(row)
}

// Enqueue accepts rows that did not come from a tracker, such as raw
// client batches.
func (w *EventWriter) Enqueue(rows []models.AnalyticsEvent) (int, error) {
	for i, row := range rows {
		if err := w.enqueue(row); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

func (w *EventWriter) enqueue(row models.AnalyticsEvent) error {
	select {
	case w.queue <- row:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run flushes batches until ctx is done, then drains what is left.
func (w *EventWriter) Run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	buf := make([]models.AnalyticsEvent, 0, w.batchSize)
	for {
		select {
		case row := <-w.queue:
			buf = append(buf, row)
			if len(buf) >= w.batchSize {
				buf = w.flush(buf)
			}
		case <-ticker.C:
			buf = w.flush(buf)
		case <-ctx.Done():
			for {
				select {
				case row := <-w.queue:
					buf = append(buf, row)
				default:
					w.flush(buf)
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *EventWriter) Wait() {
	<-w.done
}

func (w *EventWriter) flush(buf []models.AnalyticsEvent) []models.AnalyticsEvent {
	if len(buf) == 0 {
		return buf
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.ins.InsertAnalyticsEvents(ctx, buf); err != nil {
		w.log.Warn("analytics batch dropped", "count", len(buf), "error", err)
	}
	return buf[:0]
}

// EngagementRow converts a tracker event into an analytics_events row.
func EngagementRow(ev tracking.Event) (models.AnalyticsEvent, error) {
	data, err := json.Marshal(ev.Properties)
	if err != nil {
		return models.AnalyticsEvent{}, err
	}
	row := models.AnalyticsEvent{
		EventID:   uuid.NewString(),
		EventType: ev.Name,
		SessionID: ev.SessionID,
		Timestamp: ev.OccurredAt,
		PagePath:  ev.PageName,
		EventData: data,
	}
	if ev.Name == models.EventTimeOnPage {
		if ms, ok := ev.Properties["elapsed_ms"].(int64); ok {
			row.DurationMs = ms
		}
	}
	return row, nil
}

// MetricRow converts a classified web vital into an analytics_events row.
func MetricRow(m tracking.MetricReading) (models.AnalyticsEvent, error) {
	data, err := json.Marshal(map[string]interface{}{
		"name":            m.Metric.Name,
		"value":           m.Metric.Value,
		"rating":          m.Rating,
		"id":              m.Metric.ID,
		"navigation_type": m.Metric.NavigationType,
	})
	if err != nil {
		return models.AnalyticsEvent{}, err
	}
	return models.AnalyticsEvent{
		EventID:   uuid.NewString(),
		EventType: models.EventWebVital,
		SessionID: m.SessionID,
		Timestamp: m.OccurredAt,
		PagePath:  m.PageName,
		EventData: data,
	}, nil
}
