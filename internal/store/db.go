package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"flowseed/internal/apperr"
)

// DB is a connection pool that remembers which dialect it speaks.
type DB struct {
	*sqlx.DB
	dialect Dialect
}

// Open connects to dsn with the dialect's driver and verifies the connection.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	if !dialect.Valid() {
		return nil, apperr.UnsupportedBackend(string(dialect))
	}
	switch dialect {
	case DialectSQLite:
		dsn = sqliteDSN(dsn)
	case DialectMySQL:
		var err error
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}
	raw, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == DialectSQLite {
		// One writer; a second connection would block on the file lock.
		raw.SetMaxOpenConns(1)
	} else {
		raw.SetConnMaxIdleTime(5 * time.Minute)
		raw.SetConnMaxLifetime(30 * time.Minute)
		raw.SetMaxIdleConns(5)
		raw.SetMaxOpenConns(10)
	}

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: raw, dialect: dialect}, nil
}

// Wrap adopts an already opened *sql.DB.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: sqlx.NewDb(db, dialect.DriverName()), dialect: dialect}
}

// Dialect returns the SQL dialect of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Store returns a repository that runs statements directly on the pool.
func (db *DB) Store() *Store {
	return NewStore(db.DB)
}

// WithTx runs fn inside one transaction, committing when fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(NewStore(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
}

// mysqlDSN makes UPDATE report matched rather than changed rows, so rewriting a row
// with identical values is not mistaken for a missing row.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	cfg.MultiStatements = false
	return cfg.FormatDSN(), nil
}
