package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string // silent, error, warn, info
}

func (c GormConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func getLogger(level string) logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  parseLogLevel(level),
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  true,
		},
	)
}

func gormConfig(level string) *gorm.Config {
	return &gorm.Config{
		Logger: getLogger(level),
		// Unique violations surface as gorm.ErrDuplicatedKey on every dialect.
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

func configureConnectionPool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return nil
}

func NewGormDB(cfg GormConfig) (*gorm.DB, error) {
	return NewGormDBFromDSN(cfg.DSN(), cfg.LogLevel)
}

func NewGormDBFromDSN(dsn string, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(logLevel))
	if err != nil {
		return nil, err
	}

	if err := configureConnectionPool(db); err != nil {
		return nil, err
	}

	return db, nil
}

// NewSQLiteDB opens a SQLite database, e.g. "file::memory:" for tests.
// SQLite allows one writer, so the pool is pinned to a single connection;
// this also keeps an in-memory database alive for the life of the pool.
func NewSQLiteDB(path string, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+sqliteParams(path)), gormConfig(logLevel))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return db, nil
}

func sqliteParams(path string) string {
	sep := "?"
	for _, c := range path {
		if c == '?' {
			sep = "&"
			break
		}
	}
	return sep + "_foreign_keys=on&_busy_timeout=5000"
}
