package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"

	"flowseed/internal/apperr"
)

// IgnoredTables hold migration bookkeeping and survive a reset.
var IgnoredTables = []string{"schema_migrations", "migrations", "typeorm_metadata"}

func ignored(table string) bool {
	for _, name := range IgnoredTables {
		if strings.EqualFold(name, table) {
			return true
		}
	}
	return false
}

// ListUserTables returns the base tables of the current schema, minus IgnoredTables and
// engine internal tables, sorted by name.
func ListUserTables(ctx context.Context, db *DB) ([]string, error) {
	var query string
	switch db.dialect {
	case DialectPostgres:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
	case DialectMySQL:
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	case DialectSQLite:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	default:
		return nil, apperr.UnsupportedBackend(string(db.dialect))
	}

	var all []string
	if err := db.SelectContext(ctx, &all, query); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables := make([]string, 0, len(all))
	for _, table := range all {
		if !ignored(table) {
			tables = append(tables, table)
		}
	}
	return tables, nil
}

// ResetDatabase empties every user table and resets identity state. It stops at the
// first failing statement; the database is then in an unknown state.
func ResetDatabase(ctx context.Context, db *DB) error {
	if !db.dialect.Valid() {
		return apperr.UnsupportedBackend(string(db.dialect))
	}
	tables, err := ListUserTables(ctx, db)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return nil
	}

	switch db.dialect {
	case DialectPostgres:
		quoted := make([]string, len(tables))
		for i, table := range tables {
			quoted[i] = QuoteIdentifier(db.dialect, table)
		}
		stmt := `TRUNCATE TABLE ` + strings.Join(quoted, ", ") + ` RESTART IDENTITY CASCADE`
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate tables: %w", err)
		}
		return nil
	case DialectMySQL:
		return resetMySQL(ctx, db, tables)
	default:
		return resetSQLite(ctx, db, tables)
	}
}

// resetMySQL pins one connection because FOREIGN_KEY_CHECKS is session scoped.
func resetMySQL(ctx context.Context, db *DB, tables []string) (err error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SET FOREIGN_KEY_CHECKS = 0`); err != nil {
		return fmt.Errorf("disable foreign key checks: %w", err)
	}
	defer func() {
		if _, enableErr := conn.ExecContext(ctx, `SET FOREIGN_KEY_CHECKS = 1`); enableErr != nil && err == nil {
			err = fmt.Errorf("enable foreign key checks: %w", enableErr)
		}
	}()

	for _, table := range tables {
		if _, err := conn.ExecContext(ctx, `TRUNCATE TABLE `+QuoteIdentifier(DialectMySQL, table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

func resetSQLite(ctx context.Context, db *DB, tables []string) (err error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, enableErr := conn.ExecContext(ctx, `PRAGMA foreign_keys = ON`); enableErr != nil && err == nil {
			err = fmt.Errorf("enable foreign keys: %w", enableErr)
		}
	}()

	for _, table := range tables {
		if _, err := conn.ExecContext(ctx, `DELETE FROM `+QuoteIdentifier(DialectSQLite, table)); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}

	var sequences int
	if err := conn.QueryRowxContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`).Scan(&sequences); err != nil {
		return fmt.Errorf("check sqlite_sequence: %w", err)
	}
	if sequences == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM sqlite_sequence WHERE name IN (?)`, tables)
	if err != nil {
		return fmt.Errorf("build sequence reset: %w", err)
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("reset sqlite_sequence: %w", err)
	}
	return nil
}

// QuoteIdentifier quotes a table name for the dialect.
func QuoteIdentifier(dialect Dialect, name string) string {
	switch dialect {
	case DialectPostgres:
		return pgx.Identifier{name}.Sanitize()
	case DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// CountRows reports how many rows a table holds.
func CountRows(ctx context.Context, db *DB, table string) (int, error) {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+QuoteIdentifier(db.dialect, table)); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}
