package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"pianosale/api/models"
)

func TestRegistryOpenGetClose(t *testing.T) {
	sink := &recordingSink{}
	reg := NewRegistry(sink, nil, RegistryOptions{TTL: time.Hour})
	defer reg.Shutdown()

	tr, err := reg.Open(DefaultConfig("landing"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := reg.Get(tr.SessionID())
	if err != nil || got != tr {
		t.Fatalf("get: %v", err)
	}

	got.OnScroll(context.Background(), scrollTo(55))

	snap, err := reg.Close(tr.SessionID())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !equalInts(snap.ScrollThresholdsCrossed, []int{25, 50}) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, err := reg.Get(tr.SessionID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found after close, got %v", err)
	}
	if _, err := reg.Close(tr.SessionID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("double close should report not found")
	}
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	reg := NewRegistry(&recordingSink{}, nil, RegistryOptions{TTL: time.Hour})
	if _, err := reg.Open(Config{}); err == nil {
		t.Fatalf("expected error for empty page name")
	}
	if reg.Len() != 0 {
		t.Fatalf("invalid config must not open a session")
	}
}

func TestRegistryPublishVitalReachesObserver(t *testing.T) {
	sink := &recordingSink{}
	reg := NewRegistry(sink, nil, RegistryOptions{TTL: time.Hour})
	defer reg.Shutdown()

	tr, err := reg.Open(DefaultConfig("landing"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := reg.PublishVital(tr.SessionID(), models.WebVitalMetric{Name: "INP", Value: 600, ID: "m1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.metricCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("metric never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.metrics[0].Rating != models.RatingPoor || sink.metrics[0].SessionID != tr.SessionID() {
		t.Fatalf("unexpected reading: %+v", sink.metrics[0])
	}

	if err := reg.PublishVital("missing", models.WebVitalMetric{Name: "LCP"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegistrySweepClosesIdleSessions(t *testing.T) {
	reg := NewRegistry(&recordingSink{}, nil, RegistryOptions{TTL: time.Minute})
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	idle, _ := reg.Open(DefaultConfig("landing"))
	now = now.Add(45 * time.Second)
	active, _ := reg.Open(DefaultConfig("gallery"))

	now = now.Add(30 * time.Second)
	if n := reg.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if _, err := reg.Get(idle.SessionID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("idle session should be gone")
	}
	if _, err := reg.Get(active.SessionID()); err != nil {
		t.Fatalf("active session should survive: %v", err)
	}
	reg.Shutdown()
	if reg.Len() != 0 {
		t.Fatalf("shutdown should close all sessions")
	}
}

func TestRegistryTimerSourcesAreExclusive(t *testing.T) {
	serverSink := &recordingSink{}
	clientSink := &recordingSink{}
	serverReg := NewRegistry(serverSink, nil, RegistryOptions{TTL: time.Hour})
	clientReg := NewRegistry(clientSink, nil, RegistryOptions{TTL: time.Hour})
	defer serverReg.Shutdown()
	defer clientReg.Shutdown()

	cfg := DefaultConfig("landing")
	cfg.TimeUpdateInterval = MinTimeUpdateInterval
	serverTr, err := serverReg.Open(cfg)
	if err != nil {
		t.Fatalf("open server driven: %v", err)
	}
	cfg.ClientDrivenTimer = true
	clientTr, err := clientReg.Open(cfg)
	if err != nil {
		t.Fatalf("open client driven: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(serverSink.named(models.EventTimeOnPage)) < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("server timer never ticked")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := serverSink.named(models.EventTimeOnPage)[0].Properties["elapsed_ms"].(int64); got != MinTimeUpdateInterval {
		t.Fatalf("unexpected first elapsed value %d", got)
	}
	if n := len(clientSink.named(models.EventTimeOnPage)); n != 0 {
		t.Fatalf("client driven session ticked on its own %d times", n)
	}

	if _, _, err := serverTr.ClientTick(context.Background()); !errors.Is(err, ErrServerDrivenTimer) {
		t.Fatalf("expected ErrServerDrivenTimer, got %v", err)
	}
	elapsed, ok, err := clientTr.ClientTick(context.Background())
	if err != nil || !ok || elapsed != MinTimeUpdateInterval {
		t.Fatalf("client tick: elapsed=%d ok=%v err=%v", elapsed, ok, err)
	}
}

func TestRegistryCapsOpenSessions(t *testing.T) {
	reg := NewRegistry(&recordingSink{}, nil, RegistryOptions{TTL: time.Hour, MaxSessions: 2})
	defer reg.Shutdown()

	first, err := reg.Open(DefaultConfig("landing"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := reg.Open(DefaultConfig("landing")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := reg.Open(DefaultConfig("landing")); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 open sessions, got %d", reg.Len())
	}

	if _, err := reg.Close(first.SessionID()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := reg.Open(DefaultConfig("landing")); err != nil {
		t.Fatalf("closing a session should free a slot: %v", err)
	}
}
