package columnar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// keyColumn is the reserved row-key column. Declared INTEGER PRIMARY KEY so
// SQLite aliases it to the rowid: uniqueness is enforced by the engine and
// ordered scans over it are index-backed.
const keyColumn = "_key"

var (
	// ErrNoRecords is returned by an import whose input matched no rows.
	ErrNoRecords = errors.New("columnar: no records in input")
	// ErrUnknownColumn is returned when a named column does not exist in
	// the table.
	ErrUnknownColumn = errors.New("columnar: unknown column")
)

// Store owns one SQLite-backed table holding a collection's rows. All
// string-valued access goes through the column name; values of non-text
// source columns are stored in their SQLite text rendering.
//
// The mutex serializes imports against reads. database/sql is itself safe
// for concurrent use; the lock exists so a half-finished import is never
// observable from ReadBatch or FetchByKey.
type Store struct {
	mu    sync.RWMutex
	db    *sql.DB
	table string
}

// Open opens (creating if needed) the SQLite database at path and binds the
// store to the named table. The table itself is created lazily by the first
// import.
func Open(path, table string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("columnar: open %s: %w", path, err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY on concurrent statement preparation during imports.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("columnar: open %s: %w", path, err)
	}
	return &Store{db: db, table: table}, nil
}

// Checkpoint folds the WAL back into the main database file, so a copy of
// the file alone is a complete snapshot.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("columnar: checkpoint: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Table returns the bound table name.
func (s *Store) Table() string { return s.table }

// record is one decoded input row: column values (nil for NULL) and an
// optional explicit key carried by the source data.
type record struct {
	values map[string]*string
	key    uint64
	hasKey bool
}

// recordSource yields records one at a time; it returns io.EOF-like
// behavior via done=true.
type recordSource interface {
	next() (rec record, done bool, err error)
	close() error
}

// ingest bulk-loads every record from src into the table inside a single
// transaction. If the table does not exist it is created from the first
// record's column set; if it exists, records append to it and the key
// sequence continues at MAX(_key)+1. Records carrying their own key keep
// it. Returns the number of rows inserted.
func (s *Store) ingest(ctx context.Context, src recordSource) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first, done, err := src.next()
	if err != nil {
		return 0, err
	}
	if done {
		return 0, ErrNoRecords
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("columnar: ingest: %w", err)
	}
	defer tx.Rollback()

	cols, err := tableColumnsTx(tx, s.table)
	if err != nil {
		return 0, err
	}
	if cols == nil {
		cols = columnsOf(first)
		if err := createTableTx(tx, s.table, cols); err != nil {
			return 0, err
		}
	}

	nextKey, err := nextKeyTx(tx, s.table)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(s.table, cols))
	if err != nil {
		return 0, fmt.Errorf("columnar: ingest: %w", err)
	}
	defer stmt.Close()

	var count int64
	rec, done := first, false
	for !done {
		key := nextKey
		if rec.hasKey {
			key = rec.key
		} else {
			nextKey++
		}
		if rec.hasKey && key >= nextKey {
			nextKey = key + 1
		}

		args := make([]any, 0, len(cols)+1)
		args = append(args, int64(key))
		for _, c := range cols {
			if v := rec.values[c]; v != nil {
				args = append(args, *v)
			} else {
				args = append(args, nil)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("columnar: ingest row %d: %w", count+1, err)
		}
		count++

		rec, done, err = src.next()
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("columnar: ingest: %w", err)
	}
	return count, nil
}

// CountRows returns the number of rows in the table, or 0 if the table has
// not been created yet.
func (s *Store) CountRows(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.tableExists(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var n int64
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(s.table))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("columnar: count: %w", err)
	}
	return n, nil
}

// Columns returns the table's column names excluding _key, in schema order.
// Returns nil if the table has not been created yet.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columnsLocked(ctx)
}

func (s *Store) columnsLocked(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(s.table)+")")
	if err != nil {
		return nil, fmt.Errorf("columnar: columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("columnar: columns: %w", err)
		}
		if name != keyColumn {
			cols = append(cols, name)
		}
	}
	return cols, rows.Err()
}

// HasColumn reports whether the table has the named column.
func (s *Store) HasColumn(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasColumnLocked(ctx, name)
}

func (s *Store) hasColumnLocked(ctx context.Context, name string) (bool, error) {
	cols, err := s.columnsLocked(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}

// ReadBatch returns up to limit (text, key) pairs of the named column
// starting at offset, ordered by _key. NULL values read as "".
func (s *Store) ReadBatch(ctx context.Context, column string, limit, offset int) ([]string, []uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := s.hasColumnLocked(ctx, column)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}

	q := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s LIMIT ? OFFSET ?",
		quoteIdent(column), keyColumn, quoteIdent(s.table), keyColumn)
	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("columnar: read batch: %w", err)
	}
	defer rows.Close()

	var texts []string
	var keys []uint64
	for rows.Next() {
		var text sql.NullString
		var key int64
		if err := rows.Scan(&text, &key); err != nil {
			return nil, nil, fmt.Errorf("columnar: read batch: %w", err)
		}
		texts = append(texts, text.String)
		keys = append(keys, uint64(key))
	}
	return texts, keys, rows.Err()
}

// FetchByKey returns the named column's value for each of the given keys.
// Keys absent from the table are simply missing from the result map.
func (s *Store) FetchByKey(ctx context.Context, column string, keys []uint64) (map[uint64]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(keys) == 0 {
		return map[uint64]string{}, nil
	}
	ok, err := s.hasColumnLocked(ctx, column)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s)",
		quoteIdent(column), keyColumn, quoteIdent(s.table), keyColumn, placeholders)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = int64(k)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("columnar: fetch by key: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64]string, len(keys))
	for rows.Next() {
		var text sql.NullString
		var key int64
		if err := rows.Scan(&text, &key); err != nil {
			return nil, fmt.Errorf("columnar: fetch by key: %w", err)
		}
		out[uint64(key)] = text.String
	}
	return out, rows.Err()
}

func (s *Store) tableExists(ctx context.Context) (bool, error) {
	var n int
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", s.table)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("columnar: table exists: %w", err)
	}
	return n > 0, nil
}

// tableColumnsTx returns the table's non-key columns inside tx, or nil if
// the table does not exist.
func tableColumnsTx(tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.Query("PRAGMA table_info(" + quoteIdent(table) + ")")
	if err != nil {
		return nil, fmt.Errorf("columnar: table info: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("columnar: table info: %w", err)
		}
		if name != keyColumn {
			cols = append(cols, name)
		}
	}
	return cols, rows.Err()
}

func createTableTx(tx *sql.Tx, table string, cols []string) error {
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, keyColumn+" INTEGER PRIMARY KEY")
	for _, c := range cols {
		defs = append(defs, quoteIdent(c)+" TEXT")
	}
	_, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", ")))
	if err != nil {
		return fmt.Errorf("columnar: create table: %w", err)
	}
	return nil
}

func nextKeyTx(tx *sql.Tx, table string) (uint64, error) {
	var next int64
	row := tx.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) + 1 FROM %s", keyColumn, quoteIdent(table)))
	if err := row.Scan(&next); err != nil {
		return 0, fmt.Errorf("columnar: next key: %w", err)
	}
	return uint64(next), nil
}

func insertSQL(table string, cols []string) string {
	names := make([]string, 0, len(cols)+1)
	names = append(names, keyColumn)
	for _, c := range cols {
		names = append(names, quoteIdent(c))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), placeholders)
}

func columnsOf(rec record) []string {
	cols := make([]string, 0, len(rec.values))
	for c := range rec.values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// quoteIdent double-quotes an SQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// expandGlob resolves a glob pattern (or a literal path) into the sorted
// list of matching files.
func expandGlob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("columnar: bad glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("columnar: no files match %q", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}
