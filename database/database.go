package database

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"veriframe-indexer/config"
)

const tcp = "tcp"

var (
	// List entities to auto-migrate
	entities = []interface{}{
		State{},
		Worker{},
		Job{},
		JobEvent{},
		ReputationHistory{},
		DailyStats{},
		GlobalStats{},
		ContractEvent{},
	}
)

func ConnectAndInitialize(ctx context.Context, cfg *config.DBConfig) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("ConnectAndInitialize: Connect: %w", err)
	}

	return initialize(ctx, db, cfg.DropTableAtStart)
}

func initialize(ctx context.Context, db *gorm.DB, dropTables bool) (*gorm.DB, error) {
	if dropTables {
		err := db.Migrator().DropTable(entities...)
		if err != nil {
			return nil, errors.Wrap(err, "initialize: DropTable")
		}
	}

	err := db.AutoMigrate(entities...)
	if err != nil {
		return nil, errors.Wrap(err, "initialize: AutoMigrate")
	}

	// If the state info is not in the DB, create it
	if err := initStates(ctx, db); err != nil {
		return nil, errors.Wrap(err, "initialize: initStates")
	}

	return db, nil
}

func Connect(cfg *config.DBConfig) (*gorm.DB, error) {
	// Connect to the database
	dbConfig := mysql.Config{
		User:                 cfg.Username,
		Passwd:               cfg.Password,
		Net:                  tcp,
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.Database,
		AllowNativePasswords: true,
		ParseTime:            true,
	}

	gormLogLevel := getGormLogLevel(cfg)
	gormConfig := gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	}
	return gorm.Open(gormMysql.Open(dbConfig.FormatDSN()), &gormConfig)
}

func getGormLogLevel(cfg *config.DBConfig) gormlogger.LogLevel {
	if cfg.LogQueries {
		return gormlogger.Info
	}

	return gormlogger.Silent
}
