package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options describes how to reach Postgres. DatabaseURL wins over the discrete fields.
type Options struct {
	DatabaseURL string
	Host        string
	User        string
	Password    string
	Name        string
	Port        string
	LogQueries  bool
}

// DSN renders the connection string for Options.
func (o Options) DSN() string {
	if o.DatabaseURL != "" {
		return o.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		valueOrDefault(o.Host, "localhost"),
		valueOrDefault(o.User, "postgres"),
		o.Password,
		valueOrDefault(o.Name, "kudos_feed"),
		valueOrDefault(o.Port, "5432"),
	)
}

// Connect opens a GORM handle. The caller owns it; there is no package-level DB.
func Connect(opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN()), gormConfig(opts.LogQueries))
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return db, nil
}

// gormConfig translates driver errors into gorm sentinels such as gorm.ErrDuplicatedKey.
func gormConfig(logQueries bool) *gorm.Config {
	cfg := &gorm.Config{TranslateError: true}
	if !logQueries {
		cfg.Logger = logger.Default.LogMode(logger.Warn)
	}
	return cfg
}

func valueOrDefault(val, fallback string) string {
	if val != "" {
		return val
	}

	return fallback
}
