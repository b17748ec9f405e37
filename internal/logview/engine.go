package logview

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultDebounce is the quiet period between the last filter
	// mutation and the backend search it triggers.
	DefaultDebounce = 300 * time.Millisecond

	// searchTimeout bounds a single backend search call.
	searchTimeout = 30 * time.Second

	// TimeLayout is the timestamp format the backend search expects.
	TimeLayout = "2006-01-02 15:04:05"
)

// Options configures a filter engine.
type Options struct {
	// Searcher performs backend searches. Required for backend mode;
	// when nil the engine only ever filters client-side.
	Searcher Searcher

	// AccessToken authenticates backend searches. When empty, backend
	// searches are never issued.
	AccessToken string

	// StartTime and EndTime bound the active time window. When
	// IsCustomDate is false the window is re-anchored to "now" each time
	// a search is issued, preserving its span; when true the explicit
	// timestamps are sent as given.
	StartTime    time.Time
	EndTime      time.Time
	IsCustomDate bool

	SortBy    string
	SortOrder string

	// Page is the page number currently requested from the primary
	// paginated source.
	Page int

	// SetCurrentPage is invoked with 1 whenever a filter change should
	// reset pagination. Owned by the consuming view.
	SetCurrentPage func(page int)

	// OnSearchError is invoked when a backend search fails. The failure
	// is absorbed either way; the hook exists so callers can count or
	// surface it. Optional.
	OnSearchError func(err error)

	// OnStaleDrop is invoked when a resolved response is discarded
	// because a newer query superseded it in flight. Optional.
	OnStaleDrop func()

	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
}

// Engine reconciles a locally available page of logs with an optional
// debounced backend search. It has two operating modes: client mode, where
// the team/status predicates run over the loaded page, and backend mode,
// entered as soon as any backend-only filter field is non-empty.
//
// All methods are safe for concurrent use. Close releases the debounce
// timer; a response resolving after Close, or after a newer query was
// issued, is discarded.
type Engine struct {
	opts Options

	mu        sync.Mutex
	filters   FilterState
	logs      Page
	page      int
	sortBy    string
	sortOrder string

	// backendCache holds the most recent committed backend result.
	// cacheGen records which query generation produced it; a cache whose
	// generation is not the latest is still served (last-good), but no
	// longer reported as definitive.
	backendCache *Page
	cacheGen     uint64

	// gen is bumped whenever the query identity changes (filters, page,
	// sort, reset). In-flight responses carry the generation they were
	// issued under and are dropped unless it is still current.
	gen uint64

	timer  *time.Timer
	closed bool
}

// New builds an engine around the given options.
func New(opts Options) *Engine {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	return &Engine{
		opts:      opts,
		filters:   NewFilterState(),
		page:      opts.Page,
		sortBy:    opts.SortBy,
		sortOrder: opts.SortOrder,
	}
}

// Filters returns a copy of the current filter state.
func (e *Engine) Filters() FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters.Clone()
}

// SetLogs replaces the primary page of logs, normally after the consuming
// view fetched a new page from its paginated source.
func (e *Engine) SetLogs(page Page) {
	e.mu.Lock()
	e.logs = page
	e.mu.Unlock()
}

// ApplyFilters shallow-merges update into the filter state. A merge that
// changes nothing is a no-op: pagination is not reset and no search is
// scheduled. A real change resets pagination to page 1 and, when a
// backend-only field is active, re-arms the debounce timer; when the
// change leaves client mode only, any cached backend result is dropped
// immediately.
func (e *Engine) ApplyFilters(update FilterState) {
	e.mu.Lock()
	next, changed := Merge(e.filters, update)
	if !changed {
		e.mu.Unlock()
		return
	}
	e.filters = next
	e.page = 1
	e.gen++ // orphan any in-flight response for the old query
	if next.BackendActive() {
		e.armDebounceLocked()
	} else {
		e.backendCache = nil
		e.stopTimerLocked()
	}
	notify := e.opts.SetCurrentPage
	e.mu.Unlock()

	if notify != nil {
		notify(1)
	}
}

// ResetFilters clears the filter state to all-empty and drops the cached
// backend result immediately, falling back to the unfiltered page on the
// next read.
func (e *Engine) ResetFilters() {
	e.mu.Lock()
	e.filters = NewFilterState()
	e.backendCache = nil
	e.gen++
	e.stopTimerLocked()
	e.mu.Unlock()
}

// SetPage records a page change driven by explicit user pagination. In
// backend mode the search is re-issued right away with the same filters;
// pagination clicks are deliberate, so no debounce applies.
func (e *Engine) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	e.mu.Lock()
	e.page = page
	e.refetchLocked()
	e.mu.Unlock()
}

// SetSort records a sort change and, in backend mode, re-issues the
// search immediately with the new ordering.
func (e *Engine) SetSort(sortBy, sortOrder string) {
	e.mu.Lock()
	e.sortBy = sortBy
	e.sortOrder = sortOrder
	e.refetchLocked()
	e.mu.Unlock()
}

// Results returns the current coherent view: in backend mode the cached
// backend result when it has rows, otherwise the client-side filtered
// page. An empty backend result is treated as "no backend match yet"
// rather than definitely empty, so transient results never blank the
// view.
func (e *Engine) Results() Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filters.BackendActive() {
		if c := e.backendCache; c != nil && len(c.Data) > 0 {
			return *c
		}
	}
	return ApplyClientFilters(e.logs, e.filters)
}

// ClientFallback reports whether a Results read would serve the
// client-side filtered page even though backend mode is active, either
// because no backend result has been committed yet or because the
// committed result was empty.
func (e *Engine) ClientFallback() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.filters.BackendActive() {
		return false
	}
	c := e.backendCache
	return c == nil || len(c.Data) == 0
}

// BackendDefinitive reports whether the current Results value is an
// up-to-date backend answer (as opposed to a client-side view or a
// fallback). It lets callers distinguish a true zero-match search from a
// result that simply has not arrived yet.
func (e *Engine) BackendDefinitive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters.BackendActive() && e.backendCache != nil && e.cacheGen == e.gen
}

// Close cancels any pending debounce timer and causes in-flight backend
// responses to be discarded. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.gen++
	e.stopTimerLocked()
	e.mu.Unlock()
}

// armDebounceLocked restarts the single debounce timer. A newer filter
// mutation replaces the pending timer rather than queueing a second one.
func (e *Engine) armDebounceLocked() {
	if e.closed || e.opts.Searcher == nil || e.opts.AccessToken == "" {
		return
	}
	e.stopTimerLocked()
	var t *time.Timer
	t = time.AfterFunc(e.opts.Debounce, func() { e.debounceFired(t) })
	e.timer = t
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// debounceFired runs when timer t elapses. Stop cannot prevent a timer
// whose callback is already blocked on the mutex, so the identity check
// keeps a replaced timer from issuing a search for the newer filters
// that its replacement is about to issue anyway.
func (e *Engine) debounceFired(t *time.Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != t {
		return
	}
	e.timer = nil
	e.issueLocked()
}

// refetchLocked re-issues the backend search for page/sort changes while
// in backend mode. No-op in client mode or when searches are disabled.
func (e *Engine) refetchLocked() {
	e.gen++
	if !e.filters.BackendActive() {
		return
	}
	e.issueLocked()
}

// issueLocked starts an asynchronous backend search for the current query
// identity. The response is committed only if its generation is still the
// latest when it resolves.
func (e *Engine) issueLocked() {
	if e.closed || e.opts.Searcher == nil || e.opts.AccessToken == "" {
		return
	}
	if !e.filters.BackendActive() {
		return
	}
	e.gen++
	gen := e.gen
	params := e.buildParamsLocked()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		result, err := e.opts.Searcher.SearchLogs(ctx, e.opts.AccessToken, params)
		e.commit(gen, result, err)
	}()
}

// commit writes a resolved backend response into the cache, unless the
// engine was closed or a newer query has been issued since.
func (e *Engine) commit(gen uint64, result Page, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if gen != e.gen {
		hook := e.opts.OnStaleDrop
		e.mu.Unlock()
		if hook != nil {
			hook()
		}
		return
	}
	if err != nil {
		hook := e.opts.OnSearchError
		e.mu.Unlock()
		log.Printf("[LogView] backend search failed: %v", err)
		if hook != nil {
			hook(err)
		}
		return
	}
	e.backendCache = &result
	e.cacheGen = gen
	e.mu.Unlock()
}

// buildParamsLocked translates the active filters and query state into
// backend search parameters. Only non-empty filter values are sent.
func (e *Engine) buildParamsLocked() SearchParams {
	start, end := e.windowLocked()
	p := SearchParams{
		StartDate: start,
		EndDate:   end,
		SortBy:    e.sortBy,
		SortOrder: e.sortOrder,
		Page:      e.page,
		Params:    make(map[string]string),
	}
	for f, v := range e.filters {
		if v != "" {
			p.Params[string(f)] = v
		}
	}
	return p
}

// windowLocked formats the active time window. Relative windows keep
// their span but end at "now" so long-lived views keep seeing fresh logs.
func (e *Engine) windowLocked() (string, string) {
	start, end := e.opts.StartTime, e.opts.EndTime
	if !e.opts.IsCustomDate {
		span := end.Sub(start)
		if span <= 0 {
			span = 24 * time.Hour
		}
		end = time.Now()
		start = end.Add(-span)
	}
	return start.Format(TimeLayout), end.Format(TimeLayout)
}
