package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradeexecutor/src/externalmodel"
)

// ReadOnlyDB is the read-only database connection used to poll scored trade
// signals produced by the upstream pipeline. The database user for this
// connection should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()
	db, err := gorm.Open(postgres.Open(config.DatabaseURLReadOnly),
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	// Verify the signal table is really reachable before anything polls it.
	var count int64
	if err := db.
		Model(&externalmodel.SignalScore{}).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access signal_scores: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).
		Info("[ReadOnlyDB] signal_scores reachable")

	ReadOnlyDB = db

	return nil
}
