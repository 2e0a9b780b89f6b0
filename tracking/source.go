package tracking

import (
	"context"
	"sync"

	"pianosale/api/models"
)

// MetricSource delivers web vital readings for the lifetime of a page view.
// The returned channel is closed when the source has nothing more to send.
type MetricSource interface {
	Subscribe(ctx context.Context) <-chan models.WebVitalMetric
}

// ChannelSource is a MetricSource fed by Publish, typically from the HTTP
// beacon endpoint.
type ChannelSource struct {
	mu     sync.Mutex
	ch     chan models.WebVitalMetric
	closed bool
}

func NewChannelSource(buffer int) *ChannelSource {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelSource{ch: make(chan models.WebVitalMetric, buffer)}
}

func (s *ChannelSource) Subscribe(ctx context.Context) <-chan models.WebVitalMetric {
	return s.ch
}

// Publish enqueues m without blocking. It returns false when the buffer is
// full or the source is closed; the reading is dropped in that case.
func (s *ChannelSource) Publish(m models.WebVitalMetric) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- m:
		return true
	default:
		return false
	}
}

func (s *ChannelSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
