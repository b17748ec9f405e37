package models

// RequestLog stores one proxied request/response for the log console.
// Status is "" for legacy rows written before status tracking existed;
// an empty status is treated as success everywhere it is filtered.
type RequestLog struct {
	ID           string `gorm:"primaryKey" json:"id"`
	RequestID    string `gorm:"uniqueIndex" json:"request_id"`
	Timestamp    int64  `gorm:"index" json:"timestamp"`
	TeamID       string `gorm:"index" json:"team_id,omitempty"`
	APIKey       string `gorm:"index" json:"api_key,omitempty"`
	KeyAlias     string `json:"key_alias,omitempty"`
	ModelID      string `gorm:"index" json:"model_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	EndUser      string `json:"end_user,omitempty"`
	Status       string `gorm:"index" json:"status,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Duration     int64  `json:"duration"` // milliseconds
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	RequestBody  string `gorm:"type:text" json:"request_body,omitempty"`
	ResponseBody string `gorm:"type:text" json:"response_body,omitempty"`
}

// RequestStats holds aggregated statistics for request logs
type RequestStats struct {
	TotalRequests int64 `json:"total_requests"`
	SuccessCount  int64 `json:"success_count"`
	ErrorCount    int64 `json:"error_count"`
}
