package db

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/nexus-console/internal/db/models"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// seedEntry is the YAML shape of one sample log row. Only request_id is
// required; timestamps default to now and IDs are generated.
type seedEntry struct {
	RequestID    string `yaml:"request_id"`
	TeamID       string `yaml:"team_id"`
	APIKey       string `yaml:"api_key"`
	KeyAlias     string `yaml:"key_alias"`
	ModelID      string `yaml:"model_id"`
	UserID       string `yaml:"user_id"`
	EndUser      string `yaml:"end_user"`
	Status       string `yaml:"status"`
	ErrorCode    string `yaml:"error_code"`
	ErrorMessage string `yaml:"error_message"`
	Duration     int64  `yaml:"duration"`
	InputTokens  int    `yaml:"input_tokens"`
	OutputTokens int    `yaml:"output_tokens"`
	AgeMinutes   int    `yaml:"age_minutes"`
}

// SeedFromFile loads sample request logs from a YAML fixture so a fresh
// console has traffic to browse. Rows whose request_id already exists are
// skipped, making the seed idempotent across restarts.
func SeedFromFile(db *gorm.DB, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var entries []seedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	now := time.Now()
	inserted := 0
	for _, s := range entries {
		if s.RequestID == "" {
			continue
		}
		var count int64
		db.Model(&models.RequestLog{}).Where("request_id = ?", s.RequestID).Count(&count)
		if count > 0 {
			continue
		}
		row := models.RequestLog{
			ID:           uuid.New().String(),
			RequestID:    s.RequestID,
			Timestamp:    now.Add(-time.Duration(s.AgeMinutes) * time.Minute).UnixMilli(),
			TeamID:       s.TeamID,
			APIKey:       s.APIKey,
			KeyAlias:     s.KeyAlias,
			ModelID:      s.ModelID,
			UserID:       s.UserID,
			EndUser:      s.EndUser,
			Status:       s.Status,
			ErrorCode:    s.ErrorCode,
			ErrorMessage: s.ErrorMessage,
			Duration:     s.Duration,
			InputTokens:  s.InputTokens,
			OutputTokens: s.OutputTokens,
		}
		if err := db.Create(&row).Error; err != nil {
			return inserted, fmt.Errorf("insert seed row %s: %w", s.RequestID, err)
		}
		inserted++
	}
	return inserted, nil
}
