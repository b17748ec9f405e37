package gateway

import (
	"context"

	"github.com/pysugar/nexus-console/internal/logstore"
	"github.com/pysugar/nexus-console/internal/logview"
)

// Local backs the Searcher interface with the console's own store, used
// when no remote gateway is configured. The access token is ignored; the
// store is in-process and already trusted.
type Local struct {
	store *logstore.Store
}

// NewLocal wraps a store as a Searcher.
func NewLocal(store *logstore.Store) Local {
	return Local{store: store}
}

// SearchLogs implements logview.Searcher.
func (l Local) SearchLogs(_ context.Context, _ string, p logview.SearchParams) (logview.Page, error) {
	return l.store.Search(p)
}
