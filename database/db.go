package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"dailyvote-bot/config"
	"dailyvote-bot/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel(cfg.Environment),
			IgnoreRecordNotFoundError: true,
			Colorful:                  cfg.Environment == "development",
		},
	)

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
				cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		}
		log.Printf("database: using MySQL at %s:%s", cfg.DBHost, cfg.DBPort)
		dialector = mysql.Open(dsn)
	default:
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = "dailyvote.db"
		}
		log.Printf("database: using SQLite at %s", dsn)
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("database: connected and migrated")
	return db, nil
}

// Migrate creates or updates every table the bot uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.DailyVoteRecord{}, &models.PointsAccount{}, &models.VoteEvent{}); err != nil {
		return fmt.Errorf("migrate models: %w", err)
	}
	return nil
}

// Ping checks the underlying connection.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection.
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("database: get connection failed: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("database: close failed: %v", err)
		return
	}

	log.Println("database: connection closed")
}

func logLevel(env string) logger.LogLevel {
	if env == "development" {
		return logger.Info
	}
	return logger.Warn
}
