// Package database wraps a database/sql connection with the read surface
// the agent tools use: table listing, table descriptions and statement
// execution rendered as text.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	_ "github.com/go-sql-driver/mysql" // mysql
	_ "github.com/jackc/pgx/v5/stdlib" // pgx
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite
)

// ErrTableNotFound is returned when a requested table is not visible.
var ErrTableNotFound = errors.New("not found in database")

// DB is the database collaborator shared by all agent invocations.
type DB struct {
	sql        *sql.DB
	dialect    string
	include    []string
	sampleRows int
	logger     *zap.Logger
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	driver, dialect, err := driverFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	conn, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// every new connection to an in-memory sqlite database is a fresh database
	if dialect == "sqlite" && strings.Contains(cfg.DSN, ":memory:") {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connected", zap.String("dialect", dialect))
	return New(conn, dialect, cfg.IncludeTables, cfg.SampleRows, logger), nil
}

// New wraps an existing connection.
func New(conn *sql.DB, dialect string, include []string, sampleRows int, logger *zap.Logger) *DB {
	inc := append([]string(nil), include...)
	sort.Strings(inc)
	return &DB{
		sql:        conn,
		dialect:    dialect,
		include:    inc,
		sampleRows: sampleRows,
		logger:     logger,
	}
}

func driverFor(name string) (driver, dialect string, err error) {
	switch name {
	case "sqlite", "sqlite3":
		return "sqlite", "sqlite", nil
	case "postgres", "postgresql", "pgx":
		return "pgx", "postgresql", nil
	case "mysql":
		return "mysql", "mysql", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", name)
	}
}

// SQL exposes the underlying connection for seeding.
func (d *DB) SQL() *sql.DB { return d.sql }

// Dialect returns the SQL dialect name: sqlite, postgresql or mysql.
func (d *DB) Dialect() string { return d.dialect }

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) Ping(ctx context.Context) error { return d.sql.PingContext(ctx) }

// Verify checks that every included table exists.
func (d *DB) Verify(ctx context.Context) error {
	if len(d.include) == 0 {
		return nil
	}
	all, err := d.allTables(ctx)
	if err != nil {
		return err
	}
	if missing := difference(d.include, all); len(missing) > 0 {
		return fmt.Errorf("include_tables %s %w", setString(missing), ErrTableNotFound)
	}
	return nil
}

// TableNames returns the visible tables in sorted order.
func (d *DB) TableNames(ctx context.Context) ([]string, error) {
	if len(d.include) > 0 {
		return append([]string(nil), d.include...), nil
	}
	return d.allTables(ctx)
}

func (d *DB) allTables(ctx context.Context) ([]string, error) {
	var query string
	switch d.dialect {
	case "postgresql":
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`
	case "mysql":
		query = `SELECT TABLE_NAME FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'`
	default:
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
	}

	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// TableInfo describes the named tables, or every visible table when no
// names are given: the CREATE TABLE statement followed by sample rows.
func (d *DB) TableInfo(ctx context.Context, names ...string) (string, error) {
	visible, err := d.TableNames(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		names = visible
	} else if missing := difference(names, visible); len(missing) > 0 {
		return "", fmt.Errorf("table_names %s %w", setString(missing), ErrTableNotFound)
	}

	infos := make([]string, 0, len(names))
	for _, name := range names {
		ddl, err := d.createStatement(ctx, name)
		if err != nil {
			return "", err
		}
		info := "\n" + strings.TrimSpace(ddl) + "\n"
		if d.sampleRows > 0 {
			sample, err := d.sample(ctx, name)
			if err != nil {
				return "", err
			}
			info += "\n/*\n" + sample + "*/"
		}
		infos = append(infos, info)
	}
	return strings.Join(infos, "\n\n"), nil
}

// Run executes a statement and renders any returned rows. Statements that
// return no rows yield an empty string.
func (d *DB) Run(ctx context.Context, statement string) (string, error) {
	rows, err := d.sql.QueryContext(ctx, statement)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	d.logger.Debug("statement executed", zap.Int("rows", len(out)))
	if len(out) == 0 {
		return "", nil
	}
	return FormatRows(out), nil
}

func (d *DB) quote(name string) string {
	if d.dialect == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func difference(want, have []string) []string {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	var missing []string
	for _, w := range want {
		if !set[w] {
			missing = append(missing, w)
		}
	}
	return missing
}

func setString(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "{" + strings.Join(quoted, ", ") + "}"
}
