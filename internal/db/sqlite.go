package db

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/nexus-console/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the SQLite database connection and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate all models
	if err := db.AutoMigrate(&models.Config{}, &models.RequestLog{}); err != nil {
		return nil, err
	}

	// Ensure API token exists (generate on first run)
	ensureAPIToken(db)

	return db, nil
}

// ensureAPIToken generates the search API token if not exists
func ensureAPIToken(db *gorm.DB) {
	var config models.Config
	result := db.Where("key = ?", "api_token").First(&config)

	if result.Error != nil {
		// Generate new token: sk-<32 hex chars>
		tokenBytes := make([]byte, 16)
		rand.Read(tokenBytes)
		token := "sk-" + hex.EncodeToString(tokenBytes)

		db.Create(&models.Config{
			Key:   "api_token",
			Value: token,
		})
		log.Printf("🔑 Generated new API token: %s", token)
	}
}

// GetAPIToken retrieves the search API token from database
func GetAPIToken(db *gorm.DB) string {
	var config models.Config
	db.Where("key = ?", "api_token").First(&config)
	return config.Value
}

// RegenerateAPIToken creates a new search API token
func RegenerateAPIToken(db *gorm.DB) string {
	tokenBytes := make([]byte, 16)
	rand.Read(tokenBytes)
	token := "sk-" + hex.EncodeToString(tokenBytes)

	db.Model(&models.Config{}).Where("key = ?", "api_token").Update("value", token)
	log.Printf("🔑 Regenerated API token: %s", token)
	return token
}
