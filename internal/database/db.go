// Package database holds the durable Repository implementations of the
// remote store: MySQL through gorm and MongoDB.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bar-pos/internal/logger"
	"bar-pos/internal/models"
)

type businessRow struct {
	ID        string          `gorm:"primaryKey;size:64"`
	NameKey   string          `gorm:"size:191;uniqueIndex"`
	Data      models.Business `gorm:"serializer:json;type:longtext"`
	UpdatedAt time.Time
}

func (businessRow) TableName() string { return "businesses" }

type userRow struct {
	ID           string      `gorm:"primaryKey;size:64"`
	BusinessID   string      `gorm:"size:64;index"`
	NameKey      string      `gorm:"size:191;index"`
	PasswordHash string      `gorm:"size:255"`
	Data         models.User `gorm:"serializer:json;type:longtext"`
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

// snapshotRow is one tenant document. The arrays are stored whole, the way
// terminals push them.
type snapshotRow struct {
	BusinessID string            `gorm:"primaryKey;size:64"`
	Products   []models.Product  `gorm:"serializer:json;type:longtext"`
	Sales      []models.Sale     `gorm:"serializer:json;type:longtext"`
	AuditLogs  []models.AuditLog `gorm:"serializer:json;type:longtext"`
	LastSync   time.Time
}

func (snapshotRow) TableName() string { return "snapshots" }

// Connect opens dsn and syncs the schema. The database may still be
// starting, so the connection is retried.
func Connect(dsn string, attempts int) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN is not configured")
	}
	if attempts <= 0 {
		attempts = 5
	}

	var (
		db  *gorm.DB
		err error
	)
	// 1. Connect with GORM (Wait for DB to be ready)
	for i := 0; i < attempts; i++ {
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
			TranslateError: true,
		})
		if err == nil {
			break
		}
		logger.LogWarn("failed to connect to database, retrying in 2 seconds (%d/%d)", i+1, attempts)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, err)
	}
	logger.LogInfo("connected to MySQL")

	// 2. Auto-Migrate
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&businessRow{}, &userRow{}, &snapshotRow{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	logger.LogInfo("database schema synced")
	return nil
}
