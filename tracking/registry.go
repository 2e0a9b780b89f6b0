package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"pianosale/api/logger"
	"pianosale/api/models"
	"pianosale/api/utils"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrVitalDropped      = errors.New("web vital dropped")
	ErrTooManySessions   = errors.New("too many open sessions")
	ErrServerDrivenTimer = errors.New("session timer is driven by the server")
)

const DefaultMaxSessions = 10000

type RegistryOptions struct {
	TTL         time.Duration
	MaxSessions int
}

type entry struct {
	tracker  *Tracker
	vitals   *ChannelSource
	cancel   context.CancelFunc
	lastSeen time.Time
}

// Registry owns the open page view sessions of this process.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	rec      Recorder
	log      *logger.Logger
	ttl      time.Duration
	max      int
	now      func() time.Time
	newID    func() string
}

func NewRegistry(rec Recorder, log *logger.Logger, opts RegistryOptions) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	return &Registry{
		sessions: make(map[string]*entry),
		rec:      rec,
		log:      log.With("component", "SessionRegistry"),
		ttl:      opts.TTL,
		max:      opts.MaxSessions,
		now:      time.Now,
		newID:    utils.GenerateSessionID,
	}
}

// Open starts a session for cfg along with its web vital observer and, unless
// the client drives time, its timer.
func (r *Registry) Open(cfg Config) (*Tracker, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	now := r.now()
	session := NewSession(r.newID(), cfg.PageName, now.UTC())
	tracker := NewTracker(cfg, session, r.rec, r.log)
	tracker.now = r.now

	ctx, cancel := context.WithCancel(context.Background())
	vitals := NewChannelSource(0)

	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		cancel()
		vitals.Close()
		return nil, ErrTooManySessions
	}
	r.sessions[session.ID] = &entry{tracker: tracker, vitals: vitals, cancel: cancel, lastSeen: now}
	r.mu.Unlock()

	if cfg.EnableTimeTracking && !cfg.ClientDrivenTimer {
		go tracker.RunTimer(ctx)
	}
	go func() {
		_ = tracker.ObserveVitals(ctx, vitals)
	}()

	r.log.Debug("page view session opened", "session_id", session.ID, "page", cfg.PageName)
	return tracker, nil
}

// Get returns the tracker for id and marks the session as active.
func (r *Registry) Get(id string) (*Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.tracker, nil
}

// PublishVital hands m to the session's metric subscription.
func (r *Registry) PublishVital(id string, m models.WebVitalMetric) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		e.lastSeen = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if !e.vitals.Publish(m) {
		return ErrVitalDropped
	}
	return nil
}

// Close ends the session. Any state it held is discarded.
func (r *Registry) Close(id string) (SessionSnapshot, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return SessionSnapshot{}, ErrSessionNotFound
	}
	e.cancel()
	e.vitals.Close()
	return e.tracker.Snapshot(), nil
}

// Sweep closes sessions idle for longer than the TTL and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var stale []string
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		_, _ = r.Close(id)
	}
	if len(stale) > 0 {
		r.log.Info("swept idle sessions", "count", len(stale))
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Shutdown closes every open session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_, _ = r.Close(id)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
