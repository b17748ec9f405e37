package api

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/pysugar/nexus-console/internal/logstore"
	"github.com/pysugar/nexus-console/internal/logview"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "console_view_sessions_active",
		Help: "Number of live log view sessions",
	})

	staleDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_view_stale_drops_total",
		Help: "Backend search responses discarded because a newer query superseded them",
	})

	clientFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_view_client_fallbacks_total",
		Help: "Session reads served from the client-side view while a backend search was pending or empty",
	})
)

// Session ties one console view to its filter engine. The engine owns the
// filter state and backend search; the session owns the primary paginated
// source (the store listing) and feeds fetched pages into the engine.
type Session struct {
	ID string

	registry *Registry
	engine   *logview.Engine

	mu        sync.Mutex
	page      int
	sortBy    string
	sortOrder string
	lastSeen  time.Time
}

// SessionOptions configures a new view session.
type SessionOptions struct {
	StartTime    time.Time
	EndTime      time.Time
	IsCustomDate bool
	SortBy       string
	SortOrder    string
}

// Registry tracks live view sessions and evicts idle ones.
type Registry struct {
	store    *logstore.Store
	searcher logview.Searcher
	token    string
	debounce time.Duration
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	done     chan struct{}
	once     sync.Once
}

// NewRegistry creates a session registry. searcher and token configure
// the engines' backend search; ttl bounds session idle time.
func NewRegistry(store *logstore.Store, searcher logview.Searcher, token string, debounce, ttl time.Duration) *Registry {
	r := &Registry{
		store:    store,
		searcher: searcher,
		token:    token,
		debounce: debounce,
		ttl:      ttl,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go r.evictLoop()
	return r
}

// Create builds a session with its engine and loads the first page.
func (r *Registry) Create(opts SessionOptions) (*Session, error) {
	sess := &Session{
		ID:        uuid.New().String(),
		registry:  r,
		page:      1,
		sortBy:    opts.SortBy,
		sortOrder: opts.SortOrder,
		lastSeen:  time.Now(),
	}
	sess.engine = logview.New(logview.Options{
		Searcher:       r.searcher,
		AccessToken:    r.token,
		StartTime:      opts.StartTime,
		EndTime:        opts.EndTime,
		IsCustomDate:   opts.IsCustomDate,
		SortBy:         opts.SortBy,
		SortOrder:      opts.SortOrder,
		Page:           1,
		Debounce:       r.debounce,
		SetCurrentPage: sess.onPageReset,
		OnSearchError:  func(err error) { log.Printf("[Sessions] %s search failed: %v", sess.ID[:8], err) },
		OnStaleDrop:    staleDrops.Inc,
	})

	if err := sess.reloadLogs(); err != nil {
		sess.engine.Close()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	return sess, nil
}

// Get looks up a session and refreshes its idle timer.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		sess.touch()
	}
	return sess, ok
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	if ok {
		sess.engine.Close()
	}
}

// Close stops the eviction loop and closes all sessions.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.done) })
	r.mu.Lock()
	for id, sess := range r.sessions {
		sess.engine.Close()
		delete(r.sessions, id)
	}
	activeSessions.Set(0)
	r.mu.Unlock()
}

func (r *Registry) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.ttl)
	var expired []*Session
	r.mu.Lock()
	for id, sess := range r.sessions {
		if sess.seen().Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, sess)
		}
	}
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	for _, sess := range expired {
		sess.engine.Close()
		log.Printf("[Sessions] evicted idle session %s", sess.ID[:8])
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) seen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// onPageReset is the engine's setCurrentPage callback: a qualifying
// filter change snapped pagination back, so reload the primary page.
func (s *Session) onPageReset(page int) {
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	if err := s.reloadLogs(); err != nil {
		log.Printf("[Sessions] %s reload after filter change failed: %v", s.ID[:8], err)
	}
}

// reloadLogs fetches the current primary page from the store and hands
// it to the engine.
func (s *Session) reloadLogs() error {
	s.mu.Lock()
	page, sortBy, sortOrder := s.page, s.sortBy, s.sortOrder
	s.mu.Unlock()

	logs, err := s.registry.store.List(page, 0, sortBy, sortOrder)
	if err != nil {
		return err
	}
	s.engine.SetLogs(logs)
	return nil
}

// ApplyFilters forwards a partial filter update to the engine.
func (s *Session) ApplyFilters(update logview.FilterState) {
	s.engine.ApplyFilters(update)
}

// ResetFilters clears all filters.
func (s *Session) ResetFilters() {
	s.engine.ResetFilters()
}

// SetPage moves the view to another page: the primary source is
// refetched and, in backend mode, the engine re-issues its search.
func (s *Session) SetPage(page int) error {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	if err := s.reloadLogs(); err != nil {
		return err
	}
	s.engine.SetPage(page)
	return nil
}

// SetSort changes the sort order, refetching both sources.
func (s *Session) SetSort(sortBy, sortOrder string) error {
	s.mu.Lock()
	s.sortBy, s.sortOrder = sortBy, sortOrder
	s.mu.Unlock()
	if err := s.reloadLogs(); err != nil {
		return err
	}
	s.engine.SetSort(sortBy, sortOrder)
	return nil
}

// Results returns the current filtered view.
func (s *Session) Results() logview.Page {
	if s.engine.ClientFallback() {
		clientFallbacks.Inc()
	}
	return s.engine.Results()
}

// Filters returns a copy of the current filter state.
func (s *Session) Filters() logview.FilterState {
	return s.engine.Filters()
}

// BackendDefinitive reports whether Results is an up-to-date backend
// answer rather than a client-side view or fallback.
func (s *Session) BackendDefinitive() bool {
	return s.engine.BackendDefinitive()
}
