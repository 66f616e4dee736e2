package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"liveAgent/internal/config"
	"liveAgent/internal/logger"
)

type Database struct {
	DB *gorm.DB
}

func New(cfg *config.Cfg, log *logger.Zap) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("подключение к postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("пул соединений: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("проверка соединения: %w", err)
	}

	log.Info("БД подключена", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))
	return &Database{DB: db}, nil
}

func (d *Database) Close(log *logger.Zap) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("Ошибка закрытия БД", zap.Error(err))
	}
}
