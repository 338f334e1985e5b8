package database

import (
	"context"

	"github.com/caarlos0/env/v10"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testConfig struct {
	// Optional MySQL DSN; when unset tests run on in-memory SQLite.
	DSN string `env:"TEST_DB_DSN"`
}

// ConnectAndInitializeTestDB opens a test database with the full schema
// migrated. By default it uses in-memory SQLite so the suite runs without
// an external MySQL instance; set TEST_DB_DSN to run against MySQL.
func ConnectAndInitializeTestDB(ctx context.Context) (*gorm.DB, error) {
	var tCfg testConfig
	if err := env.Parse(&tCfg); err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	var err error
	if tCfg.DSN != "" {
		db, err = gorm.Open(gormMysql.Open(tCfg.DSN), gormConfig)
		if err != nil {
			return nil, err
		}
		return initialize(ctx, db, true)
	}

	db, err = gorm.Open(sqlite.Open(":memory:"), gormConfig)
	if err != nil {
		return nil, err
	}

	// A pooled second connection would see a different in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return initialize(ctx, db, false)
}
