package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/groundsched/core/schedule"
	"github.com/kilianp07/groundsched/core/timerange"
	"github.com/kilianp07/groundsched/internal/filelock"
)

// SQLiteStore persists generations to a SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	timeout  time.Duration
	lock     *filelock.Lock
	readOnly bool
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
// A positive timeout bounds every call. A writable file database holds an
// exclusive lock on path+".lock" until Close and fails with ErrLocked when
// another store already writes to it.
func NewSQLiteStore(path string, timeout time.Duration, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)
	var lock *filelock.Lock
	if !inMemory(path) {
		var err error
		if lock, err = o.acquire(path + ".lock"); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS schedule_ranges (
        generation TEXT NOT NULL,
        seq INTEGER NOT NULL,
        id TEXT NOT NULL,
        start TEXT NOT NULL,
        finish TEXT NOT NULL,
        priority INTEGER NOT NULL,
        parts INTEGER NOT NULL,
        initial_start TEXT NOT NULL,
        initial_duration_ns INTEGER NOT NULL,
        PRIMARY KEY (generation, seq)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = lock.Unlock()
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db, timeout: timeout, lock: lock, readOnly: o.readOnly}, nil
}

func inMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:") || strings.Contains(path, "mode=memory")
}

func (s *SQLiteStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ReplaceAll swaps the rows of gen inside one transaction.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, gen schedule.Generation, ranges []timerange.TimeRange) error {
	if !gen.Valid() {
		return fmt.Errorf("unknown generation %q", gen)
	}
	if s.readOnly {
		return ErrReadOnly
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_ranges WHERE generation = ?`, string(gen)); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO schedule_ranges
        (generation, seq, id, start, finish, priority, parts, initial_start, initial_duration_ns)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for i, r := range ranges {
		if _, err := stmt.ExecContext(ctx, string(gen), i, r.ID,
			r.Start.Format(time.RFC3339Nano), r.Finish.Format(time.RFC3339Nano),
			r.Priority, r.Parts, r.InitialStart.Format(time.RFC3339Nano), int64(r.InitialDuration)); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// LoadAll returns the ranges of gen in the order they were stored.
func (s *SQLiteStore) LoadAll(ctx context.Context, gen schedule.Generation) ([]timerange.TimeRange, error) {
	if !gen.Valid() {
		return nil, fmt.Errorf("unknown generation %q", gen)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT id, start, finish, priority, parts, initial_start, initial_duration_ns
        FROM schedule_ranges WHERE generation = ? ORDER BY seq`, string(gen))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []timerange.TimeRange
	for rows.Next() {
		var (
			r                           timerange.TimeRange
			start, finish, initialStart string
			initialDuration             int64
		)
		if err := rows.Scan(&r.ID, &start, &finish, &r.Priority, &r.Parts, &initialStart, &initialDuration); err != nil {
			return nil, err
		}
		if r.Start, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return nil, fmt.Errorf("range %s start: %w", r.ID, err)
		}
		if r.Finish, err = time.Parse(time.RFC3339Nano, finish); err != nil {
			return nil, fmt.Errorf("range %s finish: %w", r.ID, err)
		}
		if r.InitialStart, err = time.Parse(time.RFC3339Nano, initialStart); err != nil {
			return nil, fmt.Errorf("range %s initial start: %w", r.ID, err)
		}
		r.InitialDuration = time.Duration(initialDuration)
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database and releases the writer lock.
func (s *SQLiteStore) Close() error {
	return errors.Join(s.db.Close(), s.lock.Unlock())
}
