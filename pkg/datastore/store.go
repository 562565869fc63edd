// Package datastore serves read-only SQL access to the demo database as
// agent tools.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haruo/kaigi/internal/tracing"
)

// maxRows caps how many result rows a query renders.
const maxRows = 50

var (
	// ErrNotFound is returned when the database file does not exist
	ErrNotFound = errors.New("database file not found")

	// ErrNotReadOnly is returned for statements other than SELECT
	ErrNotReadOnly = errors.New("only SELECT queries are allowed")
)

// Store wraps a read-only SQLite database. Every pooled connection
// carries the query_only pragma, so writes fail at the driver even if a
// statement slips past validation.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens an existing database read-only.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	db, err := sql.Open("sqlite3", path+"?_query_only=true&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	log.Info().Str("path", path).Msg("Datastore opened read-only")

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Schema renders every table as a block of column lines and a row-count
// footer:
//
//	-- Table: customers
//	  customer_id (INTEGER)
//	  customer_name (TEXT)
//	  -- Total rows: 200
//
// A non-empty table argument restricts the output to that table.
func (s *Store) Schema(ctx context.Context, table string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "kaigi.datastore", "datastore.schema")
	defer span.End()

	tables, err := s.tableNames(ctx, table)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "No tables found", nil
	}

	var lines []string
	for _, name := range tables {
		lines = append(lines, fmt.Sprintf("\n-- Table: %s", name))

		cols, err := s.columns(ctx, name)
		if err != nil {
			return "", err
		}
		for _, col := range cols {
			lines = append(lines, fmt.Sprintf("  %s (%s)", col.name, col.typ))
		}

		var count int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&count); err != nil {
			return "", fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		lines = append(lines, fmt.Sprintf("  -- Total rows: %d", count))
	}

	return strings.Join(lines, "\n"), nil
}

// Query runs one read-only query and renders the result as a text table:
// a header line, a dashed separator, then up to maxRows value rows with a
// remainder footer. An empty result renders as a fixed marker line.
func (s *Store) Query(ctx context.Context, query string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "kaigi.datastore", "datastore.query",
		attribute.String("query", query))
	defer span.End()

	if err := validateReadOnly(query); err != nil {
		return "", err
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("SQL Error: %v", err)
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("SQL Error: %v", err)
	}

	var rendered [][]string
	for rows.Next() {
		vals := make([]interface{}, len(headers))
		ptrs := make([]interface{}, len(headers))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("SQL Error: %v", err)
		}

		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = renderCell(v)
		}
		rendered = append(rendered, row)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("SQL Error: %v", err)
	}

	logger.Debug().
		Int("rows", len(rendered)).
		Dur("duration", time.Since(start)).
		Msg("Query executed")

	return formatRows(headers, rendered), nil
}

type column struct {
	name string
	typ  string
}

func (s *Store) tableNames(ctx context.Context, filter string) ([]string, error) {
	const q = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if filter != "" && name != filter {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) columns(ctx context.Context, table string) ([]column, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pkeyOrd int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pkeyOrd); err != nil {
			return nil, err
		}
		cols = append(cols, column{name: name, typ: typ})
	}
	return cols, rows.Err()
}

// validateReadOnly admits SELECT statements and CTEs only.
func validateReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return errors.New("query cannot be empty")
	}
	head := strings.ToUpper(firstWord(trimmed))
	if head != "SELECT" && head != "WITH" {
		return fmt.Errorf("%w, got %s", ErrNotReadOnly, head)
	}
	return nil
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' {
			return s[:i]
		}
	}
	return s
}

func renderCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatRows(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return "Query returned no results."
	}

	out := []string{strings.Join(headers, " | ")}
	out = append(out, strings.Repeat("-", len(out[0])))

	display := rows
	if len(display) > maxRows {
		display = display[:maxRows]
	}
	for _, row := range display {
		out = append(out, strings.Join(row, " | "))
	}

	if len(rows) > maxRows {
		out = append(out, fmt.Sprintf("\n... (%d more rows)", len(rows)-maxRows))
	}

	return strings.Join(out, "\n")
}
