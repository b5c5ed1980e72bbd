package database

import (
	"fuzzforge/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewDBConnection opens the campaign history database. Without a
// configured DATABASE_URL the history integration is off and the
// returned handle is nil; callers treat nil as "do not persist".
func NewDBConnection(appConfig *config.AppConfig, logger *zap.Logger) *gorm.DB {
	connectionString := appConfig.DatabaseURL
	if connectionString == "" {
		logger.Debug("no database configured, campaign history disabled")
		return nil
	}
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	logger.Debug("connected to database")
	return db
}
