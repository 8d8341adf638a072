package services

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dpup/route-planner/server/internal/lib/progress"
	"github.com/dpup/route-planner/server/internal/lib/routing"
	"github.com/dpup/route-planner/server/internal/lib/waypoints"
)

// DefaultSessionID is used when a request carries no session header
const DefaultSessionID = "default"

// Session is one planner's state: the last form, the computed route and its
// legs, the traveled checklist and the focused leg. All fields are guarded
// by mu; calc admits at most one calculation at a time.
type Session struct {
	ID string

	mu         sync.Mutex
	calc       *semaphore.Weighted
	generation uint64
	lastUsed   time.Time

	form      waypoints.Form
	waypoints []waypoints.Waypoint
	route     *routing.Route
	segments  []routing.Segment
	tracker   *progress.Tracker
	focus     progress.Focus
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:       id,
		calc:     semaphore.NewWeighted(1),
		lastUsed: now,
		form:     *waypoints.NewForm(),
	}
}

// reset discards the route and invalidates any in-flight calculation.
// Callers hold mu.
func (s *Session) reset() {
	s.generation++
	s.form = *waypoints.NewForm()
	s.waypoints = nil
	s.route = nil
	s.segments = nil
	s.tracker = nil
	s.focus.Clear()
}

// replace installs a new result unless the session was cleared since gen.
// Callers hold mu.
func (s *Session) replace(gen uint64, form waypoints.Form, points []waypoints.Waypoint, route *routing.Route, segments []routing.Segment) bool {
	if s.generation != gen {
		return false
	}
	s.generation++
	s.form = form
	s.waypoints = points
	s.route = route
	s.segments = segments
	s.tracker = progress.NewTracker(segments)
	s.focus.Clear()
	return true
}

// SessionStore holds sessions by ID, creating them on first use
type SessionStore struct {
	sessions map[string]*Session
	mutex    sync.Mutex
	now      func() time.Time
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Get returns the session for id, creating it if needed
func (st *SessionStore) Get(id string) *Session {
	if id == "" {
		id = DefaultSessionID
	}

	st.mutex.Lock()
	defer st.mutex.Unlock()

	session, ok := st.sessions[id]
	if !ok {
		session = newSession(id, st.now())
		st.sessions[id] = session
	}
	session.mu.Lock()
	session.lastUsed = st.now()
	session.mu.Unlock()
	return session
}

// Len returns the number of live sessions
func (st *SessionStore) Len() int {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions unused for longer than idle. Sessions with a
// calculation in flight are kept.
func (st *SessionStore) Sweep(idle time.Duration) int {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	cutoff := st.now().Add(-idle)
	removed := 0
	for id, session := range st.sessions {
		if !session.calc.TryAcquire(1) {
			continue
		}
		session.mu.Lock()
		expired := session.lastUsed.Before(cutoff)
		session.mu.Unlock()
		session.calc.Release(1)

		if expired {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}
