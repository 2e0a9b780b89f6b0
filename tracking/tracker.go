package tracking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"pianosale/api/logger"
	"pianosale/api/models"
)

const DefaultTimeUpdateInterval = 30000

// MinTimeUpdateInterval is the shortest tick interval a session may ask for.
const MinTimeUpdateInterval = 1000

var DefaultScrollThresholds = []int{25, 50, 75, 90}

// Config controls which engagement signals a tracker samples.
// TimeUpdateInterval is in milliseconds. With ClientDrivenTimer set the
// server never ticks the session; the client sends every tick itself.
type Config struct {
	PageName             string `json:"pageName"`
	EnableScrollTracking bool   `json:"enableScrollTracking"`
	EnableTimeTracking   bool   `json:"enableTimeTracking"`
	EnableExitIntent     bool   `json:"enableExitIntent"`
	ScrollThresholds     []int  `json:"scrollThresholds"`
	TimeUpdateInterval   int    `json:"timeUpdateInterval"`
	ClientDrivenTimer    bool   `json:"clientDrivenTimer"`
}

// DefaultConfig enables every signal with the stock thresholds.
func DefaultConfig(pageName string) Config {
	return Config{
		PageName:             pageName,
		EnableScrollTracking: true,
		EnableTimeTracking:   true,
		EnableExitIntent:     true,
		ScrollThresholds:     append([]int(nil), DefaultScrollThresholds...),
		TimeUpdateInterval:   DefaultTimeUpdateInterval,
	}
}

// Normalize fills defaults and sorts thresholds ascending without duplicates.
func (c Config) Normalize() (Config, error) {
	c.PageName = strings.TrimSpace(c.PageName)
	if c.PageName == "" {
		return c, fmt.Errorf("pageName is required")
	}
	if c.TimeUpdateInterval <= 0 {
		c.TimeUpdateInterval = DefaultTimeUpdateInterval
	}
	if c.TimeUpdateInterval < MinTimeUpdateInterval {
		return c, fmt.Errorf("timeUpdateInterval %d below minimum %d ms", c.TimeUpdateInterval, MinTimeUpdateInterval)
	}
	src := c.ScrollThresholds
	if len(src) == 0 {
		src = DefaultScrollThresholds
	}
	seen := make(map[int]bool, len(src))
	thresholds := make([]int, 0, len(src))
	for _, t := range src {
		if t < 0 || t > 100 {
			return c, fmt.Errorf("scroll threshold %d out of range [0,100]", t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		thresholds = append(thresholds, t)
	}
	sort.Ints(thresholds)
	c.ScrollThresholds = thresholds
	return c, nil
}

// Event is a discrete engagement event handed to the Recorder.
type Event struct {
	Name       string
	SessionID  string
	PageName   string
	Properties map[string]interface{}
	OccurredAt time.Time
}

// MetricReading is a classified web vital handed to the Recorder.
type MetricReading struct {
	SessionID  string
	PageName   string
	Metric     models.WebVitalMetric
	Rating     models.Rating
	OccurredAt time.Time
}

// Recorder delivers events to the analytics backend. Delivery is not
// guaranteed and errors never roll back tracker state.
type Recorder interface {
	RecordEvent(ctx context.Context, ev Event) error
	RecordMetric(ctx context.Context, m MetricReading) error
}

// Session is the per page view state.
type Session struct {
	ID        string
	PageName  string
	StartedAt time.Time

	crossed   map[int]bool
	elapsedMs int64
	exitFired bool
}

func NewSession(id, pageName string, startedAt time.Time) *Session {
	return &Session{ID: id, PageName: pageName, StartedAt: startedAt, crossed: make(map[int]bool)}
}

type SessionSnapshot struct {
	ID                      string    `json:"sessionId"`
	PageName                string    `json:"pageName"`
	StartedAt               time.Time `json:"startedAt"`
	ScrollThresholdsCrossed []int     `json:"scrollThresholdsCrossed"`
	ElapsedMs               int64     `json:"elapsedMs"`
	ExitIntentFired         bool      `json:"exitIntentFired"`
}

type ScrollSample struct {
	ScrollY        float64 `json:"scrollY"`
	DocumentHeight float64 `json:"documentHeight"`
	ViewportHeight float64 `json:"viewportHeight"`
}

// Percent returns how far down the page the sample is, clamped to [0,100].
// ok is false when the page cannot scroll.
func (s ScrollSample) Percent() (int, bool) {
	scrollable := s.DocumentHeight - s.ViewportHeight
	if scrollable <= 0 || math.IsNaN(scrollable) || math.IsNaN(s.ScrollY) {
		return 0, false
	}
	p := math.Floor(s.ScrollY / scrollable * 100)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return int(p), true
}

const (
	ExitPointerLeave     = "pointer_leave"
	ExitVisibilityHidden = "visibility_hidden"
)

// ExitSignal is a leave heuristic from the page. ClientY is required for
// pointer_leave.
type ExitSignal struct {
	Kind    string   `json:"kind"`
	ClientY *float64 `json:"clientY,omitempty"`
}

// Qualifies reports whether the signal looks like the visitor leaving: the
// pointer left through the top edge or the tab was hidden.
func (s ExitSignal) Qualifies() bool {
	switch s.Kind {
	case ExitVisibilityHidden:
		return true
	case ExitPointerLeave:
		return s.ClientY != nil && *s.ClientY <= 0
	default:
		return false
	}
}

// Tracker runs the engagement state machine for one page view. All handlers
// take the same lock, so they never interleave and events leave in the order
// the handlers ran.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	session *Session
	rec     Recorder
	log     *logger.Logger
	now     func() time.Time
}

func NewTracker(cfg Config, session *Session, rec Recorder, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		cfg:     cfg,
		session: session,
		rec:     rec,
		log:     log.With("session_id", session.ID, "page", session.PageName),
		now:     time.Now,
	}
}

func (t *Tracker) Config() Config { return t.cfg }

func (t *Tracker) SessionID() string { return t.session.ID }

// OnScroll records every configured threshold the sample reaches for the
// first time, in ascending order, and returns them.
func (t *Tracker) OnScroll(ctx context.Context, sample ScrollSample) []int {
	if !t.cfg.EnableScrollTracking {
		return nil
	}
	percent, ok := sample.Percent()
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var fired []int
	for _, threshold := range t.cfg.ScrollThresholds {
		if percent < threshold {
			break
		}
		if t.session.crossed[threshold] {
			continue
		}
		t.session.crossed[threshold] = true
		fired = append(fired, threshold)
		t.emit(ctx, models.EventScrollDepth, map[string]interface{}{
			"page_name": t.session.PageName,
			"threshold": threshold,
		})
	}
	return fired
}

// OnTick advances elapsed time by one interval and records time_on_page.
func (t *Tracker) OnTick(ctx context.Context) (int64, bool) {
	if !t.cfg.EnableTimeTracking {
		return 0, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.session.elapsedMs += int64(t.cfg.TimeUpdateInterval)
	t.emit(ctx, models.EventTimeOnPage, map[string]interface{}{
		"page_name":  t.session.PageName,
		"elapsed_ms": t.session.elapsedMs,
	})
	return t.session.elapsedMs, true
}

// ClientTick is OnTick for sessions whose client drives time. Server driven
// sessions reject it so the two tick sources never both count.
func (t *Tracker) ClientTick(ctx context.Context) (int64, bool, error) {
	if !t.cfg.ClientDrivenTimer {
		return 0, false, ErrServerDrivenTimer
	}
	elapsed, ok := t.OnTick(ctx)
	return elapsed, ok, nil
}

// OnExitSignal records exit_intent on the first qualifying signal only.
func (t *Tracker) OnExitSignal(ctx context.Context, sig ExitSignal) bool {
	if !t.cfg.EnableExitIntent || !sig.Qualifies() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session.exitFired {
		return false
	}
	t.session.exitFired = true
	t.emit(ctx, models.EventExitIntent, map[string]interface{}{
		"page_name":  t.session.PageName,
		"signal":     sig.Kind,
		"elapsed_ms": t.session.elapsedMs,
	})
	return true
}

// RunTimer ticks every TimeUpdateInterval until ctx is done. It returns at
// once for client driven sessions.
func (t *Tracker) RunTimer(ctx context.Context) {
	if !t.cfg.EnableTimeTracking || t.cfg.ClientDrivenTimer {
		return
	}
	ticker := time.NewTicker(time.Duration(t.cfg.TimeUpdateInterval) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.OnTick(ctx)
		}
	}
}

// ObserveVitals classifies and records every metric the source delivers
// until the subscription closes or ctx is done.
func (t *Tracker) ObserveVitals(ctx context.Context, src MetricSource) error {
	metrics := src.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-metrics:
			if !ok {
				return nil
			}
			t.ReportVital(ctx, m)
		}
	}
}

// ReportVital classifies a single reading and records it.
func (t *Tracker) ReportVital(ctx context.Context, m models.WebVitalMetric) models.Rating {
	rating := Classify(m.Name, m.Value)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rec == nil {
		return rating
	}
	err := t.rec.RecordMetric(ctx, MetricReading{
		SessionID:  t.session.ID,
		PageName:   t.session.PageName,
		Metric:     m,
		Rating:     rating,
		OccurredAt: t.now().UTC(),
	})
	if err != nil {
		t.log.Warn("web vital not recorded", "metric", m.Name, "error", err)
	}
	return rating
}

func (t *Tracker) Snapshot() SessionSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	crossed := make([]int, 0, len(t.session.crossed))
	for th := range t.session.crossed {
		crossed = append(crossed, th)
	}
	sort.Ints(crossed)
	return SessionSnapshot{
		ID:                      t.session.ID,
		PageName:                t.session.PageName,
		StartedAt:               t.session.StartedAt,
		ScrollThresholdsCrossed: crossed,
		ElapsedMs:               t.session.elapsedMs,
		ExitIntentFired:         t.session.exitFired,
	}
}

// emit must be called with t.mu held. Recorder failures are logged only.
func (t *Tracker) emit(ctx context.Context, name string, props map[string]interface{}) {
	if t.rec == nil {
		return
	}
	err := t.rec.RecordEvent(ctx, Event{
		Name:       name,
		SessionID:  t.session.ID,
		PageName:   t.session.PageName,
		Properties: props,
		OccurredAt: t.now().UTC(),
	})
	if err != nil {
		t.log.Warn("engagement event not recorded", "event", name, "error", err)
	}
}
