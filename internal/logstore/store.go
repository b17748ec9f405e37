// Package logstore persists request logs and implements the server side
// of the log search API the filter engine consumes.
package logstore

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/nexus-console/internal/db/models"
	"github.com/pysugar/nexus-console/internal/logview"
	"github.com/pysugar/nexus-console/internal/util"
	"gorm.io/gorm"
)

const (
	// MaxRequestBodySize limits request body storage to 1MB
	MaxRequestBodySize = 1024 * 1024
	// MaxResponseBodySize limits response body storage to 512KB
	MaxResponseBodySize = 512 * 1024
	// MaxMemoryLogs limits the in-memory recent-log cache
	MaxMemoryLogs = 100
	// DefaultPageSize is used when a request does not specify one
	DefaultPageSize = 50
	// MaxPageSize caps a single page
	MaxPageSize = 500
)

// sortColumns whitelists the sortable columns; anything else falls back
// to timestamp ordering.
var sortColumns = map[string]string{
	"timestamp": "timestamp",
	"duration":  "duration",
	"model_id":  "model_id",
	"team_id":   "team_id",
	"status":    "status",
}

// Store manages request-log persistence, statistics, and search.
type Store struct {
	db       *gorm.DB
	pageSize int

	// In-memory cache for recent logs (thread-safe)
	recentLogs []models.RequestLog
	logsMu     sync.RWMutex

	// In-memory stats (updated atomically)
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
}

// New creates a Store on top of an initialized database.
func New(db *gorm.DB, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &Store{
		db:         db,
		pageSize:   pageSize,
		recentLogs: make([]models.RequestLog, 0, MaxMemoryLogs),
	}
	s.loadStatsFromDB()
	return s
}

// PageSize returns the configured default page size.
func (s *Store) PageSize() int { return s.pageSize }

// Record stores a request log (async DB write, non-blocking).
func (s *Store) Record(entry models.RequestLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.RequestID == "" {
		entry.RequestID = entry.ID
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	// Truncate bodies if too large
	if len(entry.RequestBody) > MaxRequestBodySize {
		entry.RequestBody = util.TruncateLog(entry.RequestBody, MaxRequestBodySize)
	}
	if len(entry.ResponseBody) > MaxResponseBodySize {
		entry.ResponseBody = util.TruncateLog(entry.ResponseBody, MaxResponseBodySize)
	}

	// Update in-memory stats
	s.totalRequests.Add(1)
	if entry.Status == logview.StatusError {
		s.errorCount.Add(1)
	} else {
		s.successCount.Add(1)
	}

	// Add to in-memory cache
	s.logsMu.Lock()
	s.recentLogs = append([]models.RequestLog{entry}, s.recentLogs...)
	if len(s.recentLogs) > MaxMemoryLogs {
		s.recentLogs = s.recentLogs[:MaxMemoryLogs]
	}
	s.logsMu.Unlock()

	// Async save to DB
	go func(row models.RequestLog) {
		if err := s.db.Create(&row).Error; err != nil {
			log.Printf("[LogStore] Failed to save log: %v", err)
		}
	}(entry)
}

// List returns one unfiltered page of logs, the primary paginated source
// behind the console views.
func (s *Store) List(page, pageSize int, sortBy, sortOrder string) (logview.Page, error) {
	if page < 1 {
		page = 1
	}
	pageSize = s.clampPageSize(pageSize)

	var total int64
	if err := s.db.Model(&models.RequestLog{}).Count(&total).Error; err != nil {
		return logview.Page{}, fmt.Errorf("count logs: %w", err)
	}

	var rows []models.RequestLog
	offset := (page - 1) * pageSize
	err := s.db.Order(orderClause(sortBy, sortOrder)).Offset(offset).Limit(pageSize).Find(&rows).Error
	if err != nil {
		// Fall back to the recent-log cache so a transient DB error
		// does not blank the view.
		log.Printf("[LogStore] Failed to list logs, serving memory cache: %v", err)
		s.logsMu.RLock()
		rows = append([]models.RequestLog(nil), s.recentLogs...)
		s.logsMu.RUnlock()
		if len(rows) > pageSize {
			rows = rows[:pageSize]
		}
		total = int64(len(rows))
	}

	return buildPage(rows, total, page, pageSize), nil
}

// Search runs a filtered query: every backend filter field becomes a SQL
// predicate, the time window bounds timestamps, and results come back as
// one page. The status predicate mirrors the client-side one: "success"
// matches rows with an empty status too.
func (s *Store) Search(p logview.SearchParams) (logview.Page, error) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	pageSize := s.pageSize

	query := s.db.Model(&models.RequestLog{})
	query = applyTimeWindow(query, p.StartDate, p.EndDate)

	for key, value := range p.Params {
		if value == "" {
			continue
		}
		switch logview.FilterField(key) {
		case logview.FieldTeamID:
			query = query.Where("team_id = ?", value)
		case logview.FieldKeyHash:
			query = query.Where("api_key = ?", value)
		case logview.FieldRequestID:
			query = query.Where("request_id = ?", value)
		case logview.FieldModel:
			query = query.Where("model_id = ?", value)
		case logview.FieldUserID:
			query = query.Where("user_id = ?", value)
		case logview.FieldEndUser:
			query = query.Where("end_user = ?", value)
		case logview.FieldKeyAlias:
			query = query.Where("key_alias = ?", value)
		case logview.FieldErrorCode:
			query = query.Where("error_code = ?", value)
		case logview.FieldErrorMessage:
			query = query.Where("error_message LIKE ?", "%"+value+"%")
		case logview.FieldStatus:
			switch value {
			case logview.StatusSuccess:
				query = query.Where("(status = ? OR status = ?)", "", logview.StatusSuccess)
			default:
				query = query.Where("status = ?", value)
			}
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return logview.Page{}, fmt.Errorf("count search results: %w", err)
	}

	var rows []models.RequestLog
	offset := (page - 1) * pageSize
	err := query.Order(orderClause(p.SortBy, p.SortOrder)).Offset(offset).Limit(pageSize).Find(&rows).Error
	if err != nil {
		return logview.Page{}, fmt.Errorf("search logs: %w", err)
	}

	return buildPage(rows, total, page, pageSize), nil
}

// Stats returns aggregated request statistics.
func (s *Store) Stats() models.RequestStats {
	return models.RequestStats{
		TotalRequests: s.totalRequests.Load(),
		SuccessCount:  s.successCount.Load(),
		ErrorCount:    s.errorCount.Load(),
	}
}

// Clear removes all logs from memory and database.
func (s *Store) Clear() error {
	s.logsMu.Lock()
	s.recentLogs = s.recentLogs[:0]
	s.logsMu.Unlock()

	s.totalRequests.Store(0)
	s.successCount.Store(0)
	s.errorCount.Store(0)

	if err := s.db.Exec("DELETE FROM request_logs").Error; err != nil {
		log.Printf("[LogStore] Failed to clear logs: %v", err)
		return err
	}

	log.Printf("[LogStore] All logs cleared")
	return nil
}

func (s *Store) clampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return s.pageSize
	}
	if pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}

// loadStatsFromDB loads initial statistics from the database. Rows with
// an empty status predate status tracking and count as successes.
func (s *Store) loadStatsFromDB() {
	var total, errors int64

	s.db.Model(&models.RequestLog{}).Count(&total)
	s.db.Model(&models.RequestLog{}).Where("status = ?", logview.StatusError).Count(&errors)

	s.totalRequests.Store(total)
	s.successCount.Store(total - errors)
	s.errorCount.Store(errors)

	log.Printf("[LogStore] Loaded stats: total=%d, errors=%d", total, errors)
}

func orderClause(sortBy, sortOrder string) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = "timestamp"
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir
}

// applyTimeWindow bounds the query by the formatted start/end timestamps.
// Unparseable bounds are skipped rather than failing the search.
func applyTimeWindow(query *gorm.DB, startDate, endDate string) *gorm.DB {
	if t, err := time.ParseInLocation(logview.TimeLayout, startDate, time.Local); err == nil {
		query = query.Where("timestamp >= ?", t.UnixMilli())
	}
	if t, err := time.ParseInLocation(logview.TimeLayout, endDate, time.Local); err == nil {
		query = query.Where("timestamp <= ?", t.UnixMilli())
	}
	return query
}

func buildPage(rows []models.RequestLog, total int64, page, pageSize int) logview.Page {
	entries := make([]logview.LogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return logview.Page{
		Data:       entries,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// toEntry converts a storage row into the wire shape, folding the flat
// error columns into the nested metadata blob.
func toEntry(row models.RequestLog) logview.LogEntry {
	entry := logview.LogEntry{
		RequestID:    row.RequestID,
		TeamID:       row.TeamID,
		APIKey:       row.APIKey,
		KeyAlias:     row.KeyAlias,
		ModelID:      row.ModelID,
		UserID:       row.UserID,
		EndUser:      row.EndUser,
		Status:       row.Status,
		Timestamp:    row.Timestamp,
		Duration:     row.Duration,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
	}
	if row.ErrorCode != "" || row.ErrorMessage != "" {
		entry.Metadata = &logview.Metadata{
			ErrorInformation: &logview.ErrorInfo{
				ErrorCode:    row.ErrorCode,
				ErrorMessage: row.ErrorMessage,
			},
		}
	}
	return entry
}
