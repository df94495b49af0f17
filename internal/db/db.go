package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"media-analytics-api/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open abre a conexão para o driver informado ("sqlite" ou "postgres").
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver: %s", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driver, err)
	}
	return conn, nil
}

// Migrate cria/atualiza as tabelas.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if err := conn.AutoMigrate(&models.User{}, &models.Media{}, &models.View{}); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

// IsUniqueViolation reporta violação de índice único em qualquer dialeto.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite sem tradução de erro
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Time normaliza timestamps gravados: UTC e truncado em segundos, para que
// comparação e agrupamento por dia funcionem igual nos dois dialetos.
func Time(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
