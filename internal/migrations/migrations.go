// Package migrations применяет SQL-миграции из каталога MIGRATIONS_PATH.
package migrations

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"liveAgent/internal/config"
	"liveAgent/internal/logger"
)

func Run(cfg *config.Cfg, log *logger.Zap) error {
	m, err := migrate.New(cfg.Migrations.Path, cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Warn("Закрытие миграций", zap.NamedError("source", srcErr), zap.NamedError("db", dbErr))
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("применение миграций: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("версия схемы: %w", err)
	}
	log.Info("Миграции применены", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
