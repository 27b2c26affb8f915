package database

import (
	"fmt"
	"log/slog"
	"time"

	"codegen-app/internal/domain/access"
	"codegen-app/internal/domain/billing"
	"codegen-app/internal/domain/conversations"
	"codegen-app/internal/domain/github"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table the service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		// billing
		&billing.Subscription{},
		&billing.Payment{},

		// conversations
		&conversations.Conversation{},
		&conversations.Message{},
		&conversations.File{},

		&github.Token{},
		&access.UsageRecord{},
	}
}

// Open connects to PostgreSQL. Timestamps are written in UTC and slow
// queries go to the process logger.
func Open(dsn string, log *slog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_URL not set")
	}
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger: gormlogger.New(
			slog.NewLogLogger(log.Handler(), slog.LevelWarn),
			gormlogger.Config{
				SlowThreshold:             500 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
