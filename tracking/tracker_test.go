package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pianosale/api/models"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	metrics []MetricReading
	err     error
}

func (s *recordingSink) RecordEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) RecordMetric(ctx context.Context, m MetricReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return s.err
}

func (s *recordingSink) named(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) metricCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metrics)
}

func newTestTracker(t *testing.T, cfg Config, sink Recorder) *Tracker {
	t.Helper()
	cfg, err := cfg.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return NewTracker(cfg, NewSession("s-1", cfg.PageName, time.Now()), sink, nil)
}

func scrollTo(percent float64) ScrollSample {
	return ScrollSample{ScrollY: percent * 10, DocumentHeight: 1800, ViewportHeight: 800}
}

func thresholdsOf(events []Event) []int {
	out := make([]int, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Properties["threshold"].(int))
	}
	return out
}

func clientY(v float64) *float64 { return &v }

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScrollThresholdsFireOnceInOrder(t *testing.T) {
	sink := &recordingSink{}
	tr := newTestTracker(t, DefaultConfig("landing"), sink)
	ctx := context.Background()

	if got := tr.OnScroll(ctx, scrollTo(60)); !equalInts(got, []int{25, 50}) {
		t.Fatalf("60%%: got %v", got)
	}
	if got := tr.OnScroll(ctx, scrollTo(40)); len(got) != 0 {
		t.Fatalf("scrolling back up should emit nothing, got %v", got)
	}
	if got := tr.OnScroll(ctx, scrollTo(95)); !equalInts(got, []int{75, 90}) {
		t.Fatalf("95%%: got %v", got)
	}
	tr.OnScroll(ctx, scrollTo(100))

	events := sink.named(models.EventScrollDepth)
	if got := thresholdsOf(events); !equalInts(got, []int{25, 50, 75, 90}) {
		t.Fatalf("recorded thresholds: %v", got)
	}
	for _, ev := range events {
		if ev.PageName != "landing" || ev.Properties["page_name"] != "landing" || ev.SessionID != "s-1" {
			t.Fatalf("event missing page/session: %+v", ev)
		}
	}
}

func TestScrollThresholdsUnsortedConfig(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig("landing")
	cfg.ScrollThresholds = []int{90, 25, 50, 25}
	tr := newTestTracker(t, cfg, sink)

	if got := tr.OnScroll(context.Background(), scrollTo(100)); !equalInts(got, []int{25, 50, 90}) {
		t.Fatalf("got %v", got)
	}
}

func TestScrollPercentEdges(t *testing.T) {
	cases := []struct {
		name   string
		sample ScrollSample
		want   int
		ok     bool
	}{
		{"top", ScrollSample{0, 2000, 1000}, 0, true},
		{"floor", ScrollSample{249.9, 2000, 1000}, 24, true},
		{"overscroll", ScrollSample{1500, 2000, 1000}, 100, true},
		{"negative", ScrollSample{-40, 2000, 1000}, 0, true},
		{"not scrollable", ScrollSample{0, 800, 800}, 0, false},
	}
	for _, tc := range cases {
		got, ok := tc.sample.Percent()
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s: got (%d,%v) want (%d,%v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNonScrollablePageEmitsNothing(t *testing.T) {
	sink := &recordingSink{}
	tr := newTestTracker(t, DefaultConfig("landing"), sink)
	tr.OnScroll(context.Background(), ScrollSample{ScrollY: 0, DocumentHeight: 600, ViewportHeight: 900})
	if len(sink.events) != 0 {
		t.Fatalf("expected no events, got %d", len(sink.events))
	}
}

func TestTimeOnPageCumulative(t *testing.T) {
	sink := &recordingSink{}
	tr := newTestTracker(t, DefaultConfig("landing"), sink)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr.OnTick(ctx)
	}

	events := sink.named(models.EventTimeOnPage)
	if len(events) != 3 {
		t.Fatalf("expected 3 time_on_page events, got %d", len(events))
	}
	want := []int64{30000, 60000, 90000}
	for i, ev := range events {
		if got := ev.Properties["elapsed_ms"].(int64); got != want[i] {
			t.Fatalf("tick %d: got %d want %d", i, got, want[i])
		}
	}
}

func TestExitIntentFiresOnce(t *testing.T) {
	sink := &recordingSink{}
	tr := newTestTracker(t, DefaultConfig("landing"), sink)
	ctx := context.Background()

	if !tr.OnExitSignal(ctx, ExitSignal{Kind: ExitPointerLeave, ClientY: clientY(-2)}) {
		t.Fatalf("first qualifying signal should fire")
	}
	if tr.OnExitSignal(ctx, ExitSignal{Kind: ExitVisibilityHidden}) {
		t.Fatalf("second signal must be ignored")
	}
	if got := len(sink.named(models.EventExitIntent)); got != 1 {
		t.Fatalf("expected exactly one exit_intent, got %d", got)
	}
}

func TestExitSignalMustQualify(t *testing.T) {
	sink := &recordingSink{}
	tr := newTestTracker(t, DefaultConfig("landing"), sink)
	ctx := context.Background()

	if tr.OnExitSignal(ctx, ExitSignal{Kind: ExitPointerLeave, ClientY: clientY(300)}) {
		t.Fatalf("pointer leaving through the side should not qualify")
	}
	if tr.OnExitSignal(ctx, ExitSignal{Kind: ExitPointerLeave}) {
		t.Fatalf("pointer_leave without clientY should not qualify")
	}
	if tr.OnExitSignal(ctx, ExitSignal{Kind: "blur"}) {
		t.Fatalf("unknown kind should not qualify")
	}
	if !tr.OnExitSignal(ctx, ExitSignal{Kind: ExitVisibilityHidden}) {
		t.Fatalf("tab hide should qualify")
	}
}

func TestDisabledSignalsNeverEmit(t *testing.T) {
	sink := &recordingSink{}
	cfg := Config{PageName: "landing"}
	tr := newTestTracker(t, cfg, sink)
	ctx := context.Background()

	tr.OnScroll(ctx, scrollTo(100))
	tr.OnTick(ctx)
	tr.OnExitSignal(ctx, ExitSignal{Kind: ExitVisibilityHidden})

	if len(sink.events) != 0 {
		t.Fatalf("expected no events, got %d", len(sink.events))
	}
	snap := tr.Snapshot()
	if len(snap.ScrollThresholdsCrossed) != 0 || snap.ElapsedMs != 0 || snap.ExitIntentFired {
		t.Fatalf("disabled signals must not mutate state: %+v", snap)
	}
}

func TestRecorderFailureKeepsState(t *testing.T) {
	sink := &recordingSink{err: errors.New("clickhouse down")}
	tr := newTestTracker(t, DefaultConfig("landing"), sink)
	ctx := context.Background()

	tr.OnScroll(ctx, scrollTo(30))
	tr.OnExitSignal(ctx, ExitSignal{Kind: ExitVisibilityHidden})

	if got := tr.OnScroll(ctx, scrollTo(30)); len(got) != 0 {
		t.Fatalf("threshold must not re-fire after failed delivery, got %v", got)
	}
	if tr.OnExitSignal(ctx, ExitSignal{Kind: ExitVisibilityHidden}) {
		t.Fatalf("exit intent must not re-fire after failed delivery")
	}
	snap := tr.Snapshot()
	if !equalInts(snap.ScrollThresholdsCrossed, []int{25}) || !snap.ExitIntentFired {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	sink := &recordingSink{}
	cfg, _ := DefaultConfig("landing").Normalize()
	a := NewTracker(cfg, NewSession("a", "landing", time.Now()), sink, nil)
	b := NewTracker(cfg, NewSession("b", "landing", time.Now()), sink, nil)
	ctx := context.Background()

	a.OnScroll(ctx, scrollTo(60))
	if got := b.OnScroll(ctx, scrollTo(60)); !equalInts(got, []int{25, 50}) {
		t.Fatalf("second session should fire its own thresholds, got %v", got)
	}
	a.OnExitSignal(ctx, ExitSignal{Kind: ExitVisibilityHidden})
	if !b.OnExitSignal(ctx, ExitSignal{Kind: ExitVisibilityHidden}) {
		t.Fatalf("exit intent in one session must not suppress another")
	}
}

func TestConfigNormalize(t *testing.T) {
	if _, err := (Config{}).Normalize(); err == nil {
		t.Fatalf("expected error for missing page name")
	}
	if _, err := (Config{PageName: "x", ScrollThresholds: []int{120}}).Normalize(); err == nil {
		t.Fatalf("expected error for out of range threshold")
	}
	if _, err := (Config{PageName: "x", TimeUpdateInterval: 1}).Normalize(); err == nil {
		t.Fatalf("expected error for interval below the minimum")
	}
	if _, err := (Config{PageName: "x", TimeUpdateInterval: MinTimeUpdateInterval}).Normalize(); err != nil {
		t.Fatalf("minimum interval should be accepted: %v", err)
	}
	cfg, err := (Config{PageName: " landing "}).Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.PageName != "landing" || cfg.TimeUpdateInterval != DefaultTimeUpdateInterval || !equalInts(cfg.ScrollThresholds, DefaultScrollThresholds) {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestObserveVitalsClassifiesUntilClosed(t *testing.T) {
	sink := &recordingSink{}
	tr := newTestTracker(t, DefaultConfig("landing"), sink)
	src := NewChannelSource(4)

	src.Publish(models.WebVitalMetric{Name: "LCP", Value: 5000, ID: "v1"})
	src.Publish(models.WebVitalMetric{Name: "CLS", Value: 0.05, ID: "v2"})
	src.Close()
	if src.Publish(models.WebVitalMetric{Name: "FID", Value: 1}) {
		t.Fatalf("publish after close must be rejected")
	}

	if err := tr.ObserveVitals(context.Background(), src); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(sink.metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(sink.metrics))
	}
	if sink.metrics[0].Rating != models.RatingPoor || sink.metrics[1].Rating != models.RatingGood {
		t.Fatalf("unexpected ratings: %v %v", sink.metrics[0].Rating, sink.metrics[1].Rating)
	}
}

func TestObserveVitalsStopsOnCancel(t *testing.T) {
	tr := newTestTracker(t, DefaultConfig("landing"), &recordingSink{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.ObserveVitals(ctx, NewChannelSource(1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
