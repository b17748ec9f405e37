package logview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testDebounce = 10 * time.Millisecond

type fakeSearcher struct {
	mu      sync.Mutex
	calls   []SearchParams
	handler func(SearchParams) (Page, error)
}

func (f *fakeSearcher) SearchLogs(_ context.Context, _ string, p SearchParams) (Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return Page{}, nil
	}
	return h(p)
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSearcher) call(i int) SearchParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func pageOf(entries ...LogEntry) Page {
	return Page{
		Data:       entries,
		Total:      int64(len(entries)),
		Page:       1,
		PageSize:   50,
		TotalPages: 1,
	}
}

func newTestEngine(t *testing.T, searcher Searcher, pageResets *int) *Engine {
	t.Helper()
	e := New(Options{
		Searcher:    searcher,
		AccessToken: "sk-test",
		StartTime:   time.Now().Add(-time.Hour),
		EndTime:     time.Now(),
		SortBy:      "timestamp",
		SortOrder:   "desc",
		Debounce:    testDebounce,
		SetCurrentPage: func(page int) {
			if pageResets != nil {
				*pageResets++
			}
		},
	})
	t.Cleanup(e.Close)
	return e
}

func TestIdenticalFilterChangeDoesNotResetPagination(t *testing.T) {
	resets := 0
	e := newTestEngine(t, &fakeSearcher{}, &resets)

	e.ApplyFilters(FilterState{FieldTeamID: "team-1"})
	e.ApplyFilters(FilterState{FieldTeamID: "team-1"})
	if resets != 1 {
		t.Fatalf("setCurrentPage invoked %d times, want 1", resets)
	}

	e.ApplyFilters(FilterState{FieldTeamID: "team-2"})
	if resets != 2 {
		t.Fatalf("setCurrentPage invoked %d times after real change, want 2", resets)
	}
}

func TestClientModeFiltersWithoutBackendCall(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newTestEngine(t, searcher, nil)
	e.SetLogs(pageOf(
		LogEntry{RequestID: "req-1", TeamID: "team-a"},
		LogEntry{RequestID: "req-2", TeamID: "team-b"},
	))

	e.ApplyFilters(FilterState{FieldTeamID: "team-a"})

	got := e.Results()
	if len(got.Data) != 1 || got.Data[0].RequestID != "req-1" {
		t.Fatalf("team filter returned %+v", got.Data)
	}

	time.Sleep(4 * testDebounce)
	if n := searcher.callCount(); n != 0 {
		t.Fatalf("client-only filter issued %d backend calls", n)
	}
}

func TestBackendFilterIssuesOneDebouncedSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newTestEngine(t, searcher, nil)

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})

	waitFor(t, "backend search", func() bool { return searcher.callCount() == 1 })
	params := searcher.call(0)
	if params.Params["key_alias"] != "alias-1" {
		t.Fatalf("search params = %+v, want key_alias=alias-1", params.Params)
	}
	if params.Page != 1 {
		t.Fatalf("search page = %d, want 1", params.Page)
	}
	if params.StartDate == "" || params.EndDate == "" {
		t.Fatalf("search params missing time window: %+v", params)
	}

	// One distinct filter value, one call.
	time.Sleep(4 * testDebounce)
	if n := searcher.callCount(); n != 1 {
		t.Fatalf("debounced filter issued %d calls, want 1", n)
	}
}

func TestDebounceCoalescesRapidChanges(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newTestEngine(t, searcher, nil)

	// Typing "alias-1" one keystroke at a time within the debounce
	// window must produce a single search for the final value.
	for _, v := range []string{"a", "al", "alias-1"} {
		e.ApplyFilters(FilterState{FieldKeyAlias: v})
	}

	waitFor(t, "backend search", func() bool { return searcher.callCount() >= 1 })
	time.Sleep(4 * testDebounce)
	if n := searcher.callCount(); n != 1 {
		t.Fatalf("rapid changes issued %d calls, want 1", n)
	}
	if got := searcher.call(0).Params["key_alias"]; got != "alias-1" {
		t.Fatalf("search used value %q, want final value alias-1", got)
	}
}

func TestNoBackendCallWithoutAccessToken(t *testing.T) {
	searcher := &fakeSearcher{}
	e := New(Options{
		Searcher: searcher,
		Debounce: testDebounce,
	})
	defer e.Close()

	e.ApplyFilters(FilterState{FieldRequestID: "req-1"})
	time.Sleep(4 * testDebounce)
	if n := searcher.callCount(); n != 0 {
		t.Fatalf("engine without token issued %d calls", n)
	}
}

func TestEmptyBackendResultFallsBackToClientView(t *testing.T) {
	searcher := &fakeSearcher{handler: func(SearchParams) (Page, error) {
		return Page{Data: []LogEntry{}, Total: 0}, nil
	}}
	e := newTestEngine(t, searcher, nil)
	e.SetLogs(pageOf(LogEntry{RequestID: "client-req"}))

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})

	waitFor(t, "definitive backend answer", e.BackendDefinitive)
	got := e.Results()
	if len(got.Data) != 1 || got.Data[0].RequestID != "client-req" {
		t.Fatalf("empty backend result blanked the view: %+v", got.Data)
	}
	if !e.ClientFallback() {
		t.Fatalf("view served from the client page not reported as a fallback")
	}
}

func TestBackendResultReplacesClientView(t *testing.T) {
	backendRow := LogEntry{RequestID: "req-far-away", TeamID: "team-z", KeyAlias: "alias-1"}
	searcher := &fakeSearcher{handler: func(SearchParams) (Page, error) {
		return pageOf(backendRow), nil
	}}
	e := newTestEngine(t, searcher, nil)
	e.SetLogs(pageOf(LogEntry{RequestID: "client-req", TeamID: "team-a"}))

	// Team filter active alongside the backend filter: the backend is
	// trusted to have applied it, so its row is served as-is.
	e.ApplyFilters(FilterState{FieldTeamID: "team-a", FieldKeyAlias: "alias-1"})

	waitFor(t, "backend result", func() bool {
		got := e.Results()
		return len(got.Data) == 1 && got.Data[0].RequestID == "req-far-away"
	})
	if !e.BackendDefinitive() {
		t.Fatalf("committed backend result not reported definitive")
	}
	if e.ClientFallback() {
		t.Fatalf("committed backend result still reported as a fallback")
	}
}

func TestResetClearsBackendCacheImmediately(t *testing.T) {
	searcher := &fakeSearcher{handler: func(SearchParams) (Page, error) {
		return pageOf(LogEntry{RequestID: "req-backend"}), nil
	}}
	e := newTestEngine(t, searcher, nil)
	original := pageOf(
		LogEntry{RequestID: "req-1", TeamID: "team-a"},
		LogEntry{RequestID: "req-2", TeamID: "team-b"},
	)
	e.SetLogs(original)

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})
	waitFor(t, "backend result", func() bool {
		got := e.Results()
		return len(got.Data) == 1 && got.Data[0].RequestID == "req-backend"
	})

	e.ResetFilters()

	// Synchronous: no debounce, no waiting.
	got := e.Results()
	if len(got.Data) != 2 {
		t.Fatalf("reset did not restore the unfiltered page: %+v", got.Data)
	}
	if e.BackendDefinitive() {
		t.Fatalf("reset engine still reports a definitive backend result")
	}
	if len(e.Filters()) != 0 && e.Filters().BackendActive() {
		t.Fatalf("reset left filters active: %v", e.Filters())
	}
}

func TestPageAndSortChangesRefetchWithoutDebounce(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newTestEngine(t, searcher, nil)

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})
	waitFor(t, "initial search", func() bool { return searcher.callCount() == 1 })

	e.SetPage(2)
	waitFor(t, "page refetch", func() bool { return searcher.callCount() == 2 })
	params := searcher.call(1)
	if params.Page != 2 {
		t.Fatalf("refetch page = %d, want 2", params.Page)
	}
	if params.Params["key_alias"] != "alias-1" {
		t.Fatalf("refetch dropped active filters: %+v", params.Params)
	}

	e.SetSort("duration", "asc")
	waitFor(t, "sort refetch", func() bool { return searcher.callCount() == 3 })
	params = searcher.call(2)
	if params.SortBy != "duration" || params.SortOrder != "asc" {
		t.Fatalf("refetch sort = %s/%s, want duration/asc", params.SortBy, params.SortOrder)
	}
}

func TestPageChangeInClientModeDoesNotSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newTestEngine(t, searcher, nil)

	e.SetPage(3)
	e.SetSort("duration", "asc")
	time.Sleep(4 * testDebounce)
	if n := searcher.callCount(); n != 0 {
		t.Fatalf("client mode pagination issued %d searches", n)
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	searcher := &fakeSearcher{}
	searcher.handler = func(p SearchParams) (Page, error) {
		if p.Params["key_alias"] == "alias-slow" {
			<-release
			return pageOf(LogEntry{RequestID: "req-stale"}), nil
		}
		return pageOf(LogEntry{RequestID: "req-fresh"}), nil
	}
	var staleDrops atomic.Int32
	e := New(Options{
		Searcher:    searcher,
		AccessToken: "sk-test",
		Debounce:    testDebounce,
		OnStaleDrop: func() { staleDrops.Add(1) },
	})
	defer e.Close()

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-slow"})
	waitFor(t, "slow search to start", func() bool { return searcher.callCount() == 1 })

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-fresh"})
	waitFor(t, "fresh result", func() bool {
		got := e.Results()
		return len(got.Data) == 1 && got.Data[0].RequestID == "req-fresh"
	})

	close(release)
	waitFor(t, "stale drop hook", func() bool { return staleDrops.Load() == 1 })
	got := e.Results()
	if got.Data[0].RequestID != "req-fresh" {
		t.Fatalf("stale response overwrote newer result: %+v", got.Data)
	}
}

func TestReplacedTimerFiringDoesNotDuplicateSearch(t *testing.T) {
	searcher := &fakeSearcher{}
	e := New(Options{
		Searcher:    searcher,
		AccessToken: "sk-test",
		Debounce:    time.Hour,
	})
	defer e.Close()

	e.ApplyFilters(FilterState{FieldKeyAlias: "a"})
	e.mu.Lock()
	replaced := e.timer
	e.mu.Unlock()

	// The second change re-arms the timer. The first timer can still be
	// mid-fire at that point; delivering it must not issue a search for
	// the newer filters on top of the one the new timer will issue.
	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})
	e.debounceFired(replaced)
	if n := searcher.callCount(); n != 0 {
		t.Fatalf("replaced timer issued %d searches, want 0", n)
	}

	e.mu.Lock()
	current := e.timer
	e.mu.Unlock()
	e.debounceFired(current)
	waitFor(t, "search from the live timer", func() bool { return searcher.callCount() == 1 })
	if got := searcher.call(0).Params["key_alias"]; got != "alias-1" {
		t.Fatalf("search used value %q, want alias-1", got)
	}
}

func TestCustomWindowSentVerbatim(t *testing.T) {
	searcher := &fakeSearcher{}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	end := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	e := New(Options{
		Searcher:     searcher,
		AccessToken:  "sk-test",
		StartTime:    start,
		EndTime:      end,
		IsCustomDate: true,
		Debounce:     testDebounce,
	})
	defer e.Close()

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})
	waitFor(t, "backend search", func() bool { return searcher.callCount() == 1 })

	p := searcher.call(0)
	if p.StartDate != start.Format(TimeLayout) || p.EndDate != end.Format(TimeLayout) {
		t.Fatalf("custom window sent as %s..%s, want %s..%s",
			p.StartDate, p.EndDate, start.Format(TimeLayout), end.Format(TimeLayout))
	}
}

func TestRelativeWindowTracksIssueTime(t *testing.T) {
	searcher := &fakeSearcher{}
	// A 30-minute window configured an hour ago: the span must survive,
	// the end must move to when the search is issued.
	e := New(Options{
		Searcher:    searcher,
		AccessToken: "sk-test",
		StartTime:   time.Now().Add(-90 * time.Minute),
		EndTime:     time.Now().Add(-60 * time.Minute),
		Debounce:    testDebounce,
	})
	defer e.Close()

	before := time.Now()
	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})
	waitFor(t, "backend search", func() bool { return searcher.callCount() == 1 })

	p := searcher.call(0)
	endAt, err := time.ParseInLocation(TimeLayout, p.EndDate, time.Local)
	if err != nil {
		t.Fatalf("unparseable end date %q: %v", p.EndDate, err)
	}
	startAt, err := time.ParseInLocation(TimeLayout, p.StartDate, time.Local)
	if err != nil {
		t.Fatalf("unparseable start date %q: %v", p.StartDate, err)
	}
	if endAt.Before(before.Truncate(time.Second)) {
		t.Fatalf("relative window end %s predates issue time %s", endAt, before)
	}
	if span := endAt.Sub(startAt); span != 30*time.Minute {
		t.Fatalf("relative window span = %s, want 30m", span)
	}
}

func TestSearchFailureRetainsViewAndStaysUsable(t *testing.T) {
	var failures atomic.Int32
	searcher := &fakeSearcher{}
	searcher.handler = func(p SearchParams) (Page, error) {
		if p.Params["key_alias"] == "alias-bad" {
			return Page{}, errors.New("gateway unreachable")
		}
		return pageOf(LogEntry{RequestID: "req-good"}), nil
	}

	e := New(Options{
		Searcher:      searcher,
		AccessToken:   "sk-test",
		Debounce:      testDebounce,
		OnSearchError: func(error) { failures.Add(1) },
	})
	defer e.Close()
	e.SetLogs(pageOf(LogEntry{RequestID: "client-req"}))

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-bad"})
	waitFor(t, "failure hook", func() bool { return failures.Load() == 1 })

	got := e.Results()
	if len(got.Data) != 1 || got.Data[0].RequestID != "client-req" {
		t.Fatalf("failed search disturbed the view: %+v", got.Data)
	}

	// The engine must remain usable for retry.
	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-good"})
	waitFor(t, "recovery", func() bool {
		got := e.Results()
		return len(got.Data) == 1 && got.Data[0].RequestID == "req-good"
	})
}

func TestCloseCancelsPendingDebounce(t *testing.T) {
	searcher := &fakeSearcher{}
	e := newTestEngine(t, searcher, nil)

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})
	e.Close()

	time.Sleep(4 * testDebounce)
	if n := searcher.callCount(); n != 0 {
		t.Fatalf("closed engine issued %d searches", n)
	}
}

func TestCloseIgnoresInFlightResponse(t *testing.T) {
	release := make(chan struct{})
	searcher := &fakeSearcher{handler: func(SearchParams) (Page, error) {
		<-release
		return pageOf(LogEntry{RequestID: "req-late"}), nil
	}}
	e := newTestEngine(t, searcher, nil)
	e.SetLogs(pageOf(LogEntry{RequestID: "client-req"}))

	e.ApplyFilters(FilterState{FieldKeyAlias: "alias-1"})
	waitFor(t, "search to start", func() bool { return searcher.callCount() == 1 })

	e.Close()
	close(release)
	time.Sleep(4 * testDebounce)
	// No panic, no mutation: the late response is dropped on the floor.
	if e.BackendDefinitive() {
		t.Fatalf("closed engine committed a late response")
	}
}
