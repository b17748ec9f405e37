// Package logview implements the filter engine behind the request-log
// console: it reconciles the currently loaded page of logs with an
// optional debounced backend search and exposes one coherent result set.
package logview

import "context"

// ErrorInfo carries error attributes attached to a failed request.
type ErrorInfo struct {
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Metadata is the nested metadata blob of a log entry.
type Metadata struct {
	ErrorInformation *ErrorInfo `json:"error_information,omitempty"`
}

// LogEntry is a single recorded proxy request/response, as served by the
// gateway. Entries are immutable once fetched; RequestID is unique within
// a page.
type LogEntry struct {
	RequestID    string    `json:"request_id"`
	TeamID       string    `json:"team_id,omitempty"`
	APIKey       string    `json:"api_key,omitempty"`
	KeyAlias     string    `json:"key_alias,omitempty"`
	ModelID      string    `json:"model_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	EndUser      string    `json:"end_user,omitempty"`
	Status       string    `json:"status,omitempty"`
	Timestamp    int64     `json:"timestamp,omitempty"`
	Duration     int64     `json:"duration,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	Metadata     *Metadata `json:"metadata,omitempty"`
}

// ErrorCode returns the nested error code, or "" when absent.
func (e LogEntry) ErrorCode() string {
	if e.Metadata == nil || e.Metadata.ErrorInformation == nil {
		return ""
	}
	return e.Metadata.ErrorInformation.ErrorCode
}

// ErrorMessage returns the nested error message, or "" when absent.
func (e LogEntry) ErrorMessage() string {
	if e.Metadata == nil || e.Metadata.ErrorInformation == nil {
		return ""
	}
	return e.Metadata.ErrorInformation.ErrorMessage
}

// Page is one page of log results, either from the primary paginated
// fetch or from a backend search.
type Page struct {
	Data       []LogEntry `json:"data"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

// SearchParams is the wire shape of a backend log search. Params carries
// only the filter fields that are set to a non-empty value.
type SearchParams struct {
	StartDate string            `json:"start_date"`
	EndDate   string            `json:"end_date"`
	SortBy    string            `json:"sort_by"`
	SortOrder string            `json:"sort_order"`
	Page      int               `json:"page"`
	Params    map[string]string `json:"params"`
}

// Searcher is the backend search collaborator. Implementations include the
// remote gateway client and the local store adapter.
type Searcher interface {
	SearchLogs(ctx context.Context, accessToken string, p SearchParams) (Page, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, accessToken string, p SearchParams) (Page, error)

func (f SearcherFunc) SearchLogs(ctx context.Context, accessToken string, p SearchParams) (Page, error) {
	return f(ctx, accessToken, p)
}
