package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/camprush/camprush/internal/config"
	"github.com/camprush/camprush/internal/models"
)

var conn *gorm.DB

// Init opens the configured database, migrates it and keeps it as the
// process-wide connection returned by Conn.
func Init(cfg config.DBConfig) error {
	gdb, err := Open(cfg)
	if err != nil {
		return err
	}
	conn = gdb
	return nil
}

func Conn() *gorm.DB {
	return conn
}

// Open connects to postgres when DatabaseURL is set, otherwise to a local
// sqlite file, and runs migrations.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: newGormLogger(log.New(os.Stderr, "", log.LstdFlags), cfg.Silent)}

	var (
		gdb *gorm.DB
		err error
	)
	if cfg.DatabaseURL != "" {
		gdb, err = gorm.Open(postgres.Open(cfg.DatabaseURL), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	} else {
		gdb, err = gorm.Open(sqlite.Open(cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// newGormLogger logs slow queries and real failures. Lookups that find no
// row are a normal answer here (first poll, cache miss) and stay quiet.
func newGormLogger(out gormlogger.Writer, silent bool) gormlogger.Interface {
	level := gormlogger.Warn
	if silent {
		level = gormlogger.Silent
	}
	return gormlogger.New(out, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.Parent{},
		&models.Child{},
		&models.RegistrationPlan{},
		&models.PlanChild{},
		&models.Registration{},
		&models.OpenDetectionLog{},
		&models.SessionRequirement{},
		&models.NotificationQueue{},
		&models.ComplianceAudit{},
		&models.ApprovalToken{},
		&models.TelegramUser{},
		&models.LinkCode{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// Composite indexes that GORM doesn't auto-create from struct tags.
	if err := gdb.Exec("CREATE INDEX IF NOT EXISTS idx_plan_monitor ON registration_plans(status, open_strategy)").Error; err != nil {
		return err
	}
	return gdb.Exec("CREATE INDEX IF NOT EXISTS idx_reg_parent ON registrations(parent_id)").Error
}
