package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/wonny/taxico2/pkg/config"
)

var (
	// ErrDatabaseNotFound is returned when a read-only open targets a missing file
	ErrDatabaseNotFound = errors.New("database file not found")

	// ErrTableMissing is wrapped by TableMissingError
	ErrTableMissing = errors.New("required table missing")
)

// TableMissingError names the table a precondition check did not find
type TableMissingError struct {
	Table string
}

func (e *TableMissingError) Error() string {
	return fmt.Sprintf("missing required table: %s", e.Table)
}

func (e *TableMissingError) Unwrap() error {
	return ErrTableMissing
}

// DB wraps the DuckDB handle
// ⭐ SSOT: store connections are only created in this package
type DB struct {
	Conn     *sql.DB
	Path     string
	ReadOnly bool
}

// Options tunes how the DuckDB file is opened
type Options struct {
	ReadOnly    bool
	Threads     int
	MemoryLimit string
}

// New opens the configured DuckDB file for writing
func New(cfg *config.Config) (*DB, error) {
	return Open(cfg.Database.Path, Options{
		Threads:     cfg.Database.Threads,
		MemoryLimit: cfg.Database.MemoryLimit,
	})
}

// NewReadOnly opens the configured DuckDB file read-only.
// The file must already exist.
func NewReadOnly(cfg *config.Config) (*DB, error) {
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, cfg.Database.Path)
		}
		return nil, fmt.Errorf("stat database file: %w", err)
	}

	return Open(cfg.Database.Path, Options{
		ReadOnly:    true,
		Threads:     cfg.Database.Threads,
		MemoryLimit: cfg.Database.MemoryLimit,
	})
}

// Open opens a DuckDB database. An empty path opens an in-memory database.
func Open(path string, opts Options) (*DB, error) {
	conn, err := sql.Open("duckdb", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	return &DB{Conn: conn, Path: path, ReadOnly: opts.ReadOnly}, nil
}

// dsn builds the DuckDB connection string with config options as query params
func dsn(path string, opts Options) string {
	params := url.Values{}
	if opts.ReadOnly {
		params.Set("access_mode", "READ_ONLY")
	}
	if opts.Threads > 0 {
		params.Set("threads", strconv.Itoa(opts.Threads))
	}
	if opts.MemoryLimit != "" {
		params.Set("memory_limit", opts.MemoryLimit)
	}

	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// Close closes the database handle
func (db *DB) Close() error {
	if db.Conn == nil {
		return nil
	}
	return db.Conn.Close()
}

// Ping checks if the database is accessible
func (db *DB) Ping(ctx context.Context) error {
	return db.Conn.PingContext(ctx)
}

// TableExists reports whether a table with the given name exists
func (db *DB) TableExists(ctx context.Context, table string) (bool, error) {
	var count int64
	err := db.Conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`,
		table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return count > 0, nil
}

// RequireTables returns a TableMissingError for the first absent table
func (db *DB) RequireTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		ok, err := db.TableExists(ctx, table)
		if err != nil {
			return err
		}
		if !ok {
			return &TableMissingError{Table: table}
		}
	}
	return nil
}

// RowCount returns COUNT(*) for a table
func (db *DB) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, QuoteIdent(table))
	if err := db.Conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

// HealthCheck returns connectivity and per-table row counts
func (db *DB) HealthCheck(ctx context.Context, tables ...string) (*HealthStatus, error) {
	status := &HealthStatus{
		Healthy:   false,
		Timestamp: time.Now(),
		Path:      db.Path,
		ReadOnly:  db.ReadOnly,
	}

	start := time.Now()
	if err := db.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(start)

	for _, table := range tables {
		stat := TableStat{Name: table}
		ok, err := db.TableExists(ctx, table)
		if err != nil {
			status.Error = err.Error()
			return status, err
		}
		if ok {
			stat.Exists = true
			if stat.Rows, err = db.RowCount(ctx, table); err != nil {
				status.Error = err.Error()
				return status, err
			}
		}
		status.Tables = append(status.Tables, stat)
	}

	status.Healthy = true
	return status, nil
}

// HealthStatus represents the health status of the store
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	Timestamp    time.Time     `json:"timestamp"`
	ResponseTime time.Duration `json:"response_time"`
	Path         string        `json:"path"`
	ReadOnly     bool          `json:"read_only"`
	Error        string        `json:"error,omitempty"`
	Tables       []TableStat   `json:"tables"`
}

// TableStat is one table's presence and size
type TableStat struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Rows   int64  `json:"rows"`
}

// QuoteIdent quotes a SQL identifier
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a SQL string literal, for table functions that
// do not accept bound parameters
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
