package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Row is one record headed for a table, column name to value.
type Row map[string]any

const (
	defaultBatchSize   = 300
	transientRetries   = 5
	transientBaseDelay = 200 * time.Millisecond
)

// Store is a SQLite-backed sink with batched idempotent upserts. Target
// schemas can drift behind the writer, so unknown columns are dropped from
// the payload on first sight and the batch is retried without them.
type Store struct {
	db        *sql.DB
	log       *slog.Logger
	batchSize int

	// dropped remembers columns already stripped per table so the warning
	// is logged once, not once per batch.
	dropped map[string]map[string]bool
}

// Open creates the database file's directory if needed, opens the database,
// and brings the schema up to date.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:        db,
		log:       logger,
		batchSize: defaultBatchSize,
		dropped:   make(map[string]map[string]bool),
	}, nil
}

// SetBatchSize overrides the rows-per-statement batch size.
func (s *Store) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for read-side queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// UnknownColumnError reports a column the target table kept rejecting even
// after it was dropped from the payload.
type UnknownColumnError struct {
	Table  string
	Column string
	Err    error
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("upsert %s: column %q still rejected after drop: %v", e.Table, e.Column, e.Err)
}

func (e *UnknownColumnError) Unwrap() error { return e.Err }

var unknownColumnRe = regexp.MustCompile(`(?:has no column named|no such column:?)\s+"?([A-Za-z0-9_.]+)"?`)

func unknownColumn(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	m := unknownColumnRe.FindStringSubmatch(err.Error())
	if m == nil {
		return "", false
	}
	col := m[1]
	if i := strings.LastIndexByte(col, '.'); i >= 0 {
		col = col[i+1:]
	}
	return col, true
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// Upsert writes rows into table in batches, resolving conflicts on
// conflictCols by updating every other column from the incoming row. Columns
// the table does not have are dropped and the batch retried; lock contention
// is retried with a short backoff.
func (s *Store) Upsert(ctx context.Context, table string, rows []Row, conflictCols []string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := s.upsertBatch(ctx, table, rows[start:end], conflictCols)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (s *Store) upsertBatch(ctx context.Context, table string, rows []Row, conflictCols []string) (int, error) {
	batch := rows
	confl := append([]string(nil), conflictCols...)

	for {
		cols := columnsOf(batch, s.dropped[table])
		confl = filterKnown(confl, cols)
		if len(cols) == 0 {
			return 0, fmt.Errorf("upsert %s: no usable columns left", table)
		}

		query, args := buildUpsert(table, cols, confl, batch)

		err := s.execTransient(ctx, query, args)
		if err == nil {
			return len(batch), nil
		}

		col, isUnknown := unknownColumn(err)
		if !isUnknown {
			return 0, fmt.Errorf("upsert %s: %w", table, err)
		}
		if s.dropped[table] == nil {
			s.dropped[table] = make(map[string]bool)
		}
		if s.dropped[table][col] {
			return 0, &UnknownColumnError{Table: table, Column: col, Err: err}
		}
		s.dropped[table][col] = true
		s.log.Warn("dropping column unknown to target table", "table", table, "column", col)
	}
}

func (s *Store) execTransient(ctx context.Context, query string, args []any) error {
	var err error
	for attempt := 0; attempt < transientRetries; attempt++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !isTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(transientBaseDelay * time.Duration(attempt+1)):
		}
	}
	return err
}

// columnsOf unions the column names across the batch, minus any already
// dropped, in sorted order so statements are stable.
func columnsOf(rows []Row, dropped map[string]bool) []string {
	set := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			if !dropped[k] {
				set[k] = struct{}{}
			}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func filterKnown(confl, cols []string) []string {
	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c] = struct{}{}
	}
	out := confl[:0]
	for _, c := range confl {
		if _, ok := known[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func buildUpsert(table string, cols, confl []string, rows []Row) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
		for _, c := range cols {
			args = append(args, r[c])
		}
	}

	if len(confl) > 0 {
		sb.WriteString(" ON CONFLICT(")
		sb.WriteString(strings.Join(confl, ", "))
		sb.WriteString(")")

		conflSet := make(map[string]struct{}, len(confl))
		for _, c := range confl {
			conflSet[c] = struct{}{}
		}
		var updates []string
		for _, c := range cols {
			if _, isKey := conflSet[c]; isKey || c == "created_at" {
				continue
			}
			updates = append(updates, c+" = excluded."+c)
		}
		if len(updates) == 0 {
			sb.WriteString(" DO NOTHING")
		} else {
			sb.WriteString(" DO UPDATE SET ")
			sb.WriteString(strings.Join(updates, ", "))
		}
	}

	return sb.String(), args
}
