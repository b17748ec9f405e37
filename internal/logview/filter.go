package logview

// FilterField names one of the fixed set of filterable log attributes.
// The string value doubles as the wire key sent to the backend search.
type FilterField string

const (
	FieldTeamID       FilterField = "team_id"
	FieldKeyHash      FilterField = "api_key"
	FieldRequestID    FilterField = "request_id"
	FieldModel        FilterField = "model_id"
	FieldUserID       FilterField = "user_id"
	FieldEndUser      FilterField = "end_user"
	FieldStatus       FilterField = "status"
	FieldKeyAlias     FilterField = "key_alias"
	FieldErrorCode    FilterField = "error_code"
	FieldErrorMessage FilterField = "error_message"
)

// StatusSuccess and StatusError are the two recognized Status filter
// values. An entry with no status at all counts as successful.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// clientFields can be evaluated against the already-loaded page without a
// network round trip. Everything else requires a server-side search
// because matching records may live beyond the current page.
var clientFields = map[FilterField]bool{
	FieldTeamID: true,
	FieldStatus: true,
}

var backendFields = []FilterField{
	FieldKeyHash,
	FieldRequestID,
	FieldModel,
	FieldUserID,
	FieldEndUser,
	FieldKeyAlias,
	FieldErrorCode,
	FieldErrorMessage,
}

// AllFields lists every filterable field.
var AllFields = []FilterField{
	FieldTeamID,
	FieldKeyHash,
	FieldRequestID,
	FieldModel,
	FieldUserID,
	FieldEndUser,
	FieldStatus,
	FieldKeyAlias,
	FieldErrorCode,
	FieldErrorMessage,
}

// IsFilterField reports whether name is a known filter field.
func IsFilterField(name string) bool {
	for _, f := range AllFields {
		if string(f) == name {
			return true
		}
	}
	return false
}

// FilterState maps filter fields to their current value. An empty string
// (or absent key) means the field is not filtered.
type FilterState map[FilterField]string

// NewFilterState returns an all-empty filter state.
func NewFilterState() FilterState {
	return make(FilterState, len(AllFields))
}

// Clone returns an independent copy of the state.
func (s FilterState) Clone() FilterState {
	next := make(FilterState, len(s))
	for f, v := range s {
		next[f] = v
	}
	return next
}

// Get returns the value for a field, "" when unset.
func (s FilterState) Get(f FilterField) string {
	return s[f]
}

// BackendActive reports whether any backend-only field carries a
// non-empty value, i.e. whether the engine is in backend mode.
func (s FilterState) BackendActive() bool {
	for _, f := range backendFields {
		if s[f] != "" {
			return true
		}
	}
	return false
}

// Merge is the pure reducer behind filter changes: it shallow-merges
// update into state and returns the resulting state together with whether
// anything actually changed. Unchanged merges must not reset pagination,
// so callers rely on the changed flag rather than on "an update arrived".
func Merge(state, update FilterState) (FilterState, bool) {
	next := state.Clone()
	changed := false
	for f, v := range update {
		if next[f] == v {
			continue
		}
		next[f] = v
		changed = true
	}
	return next, changed
}

// matchesStatus applies the status predicate: "success" matches entries
// that report success or carry no status at all, "error" matches only an
// explicit error status. Any other wanted value is an exact match.
func matchesStatus(entry LogEntry, want string) bool {
	switch want {
	case StatusSuccess:
		return entry.Status == "" || entry.Status == StatusSuccess
	case StatusError:
		return entry.Status == StatusError
	default:
		return entry.Status == want
	}
}

// ApplyClientFilters evaluates the client-filterable predicates (team ID
// exact match, status) over a page and returns the surviving subset.
// Pagination metadata is preserved except for Total, which reflects the
// filtered count when anything was dropped.
func ApplyClientFilters(page Page, state FilterState) Page {
	teamID := state.Get(FieldTeamID)
	status := state.Get(FieldStatus)
	if teamID == "" && status == "" {
		return page
	}

	filtered := make([]LogEntry, 0, len(page.Data))
	for _, entry := range page.Data {
		if teamID != "" && entry.TeamID != teamID {
			continue
		}
		if status != "" && !matchesStatus(entry, status) {
			continue
		}
		filtered = append(filtered, entry)
	}

	out := page
	out.Data = filtered
	out.Total = int64(len(filtered))
	return out
}
