package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Dialetos aceitos pela camada de banco (DB_DRIVER).
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DialectName devolve o nome do dialeto da conexão, ou "" sem conexão.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reporta se a conexão usa SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// DayExpr devolve a expressão SQL que reduz column ao dia (YYYY-MM-DD, UTC).
// O SQLite grava em UTC; no Postgres a conversão é explícita.
func DayExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
	}
	return fmt.Sprintf("to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM-DD')", column)
}
