// Package journal keeps a local SQLite record of every apply invocation.
// The journal is write-only from the executor's point of view: it is never
// consulted to skip a script.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps the journal's SQLite connection.
type DB struct {
	conn *sql.DB
}

// Run is one recorded apply invocation.
type Run struct {
	ID         int64
	Label      string
	ScriptPath string
	Checksum   *string
	Bytes      int
	Target     string // redacted descriptor
	Outcome    string
	State      string
	Error      *string
	StartedAt  string
	DurationMs int64
}

// journalPragmas: WAL with NORMAL sync. A power loss may drop the last run.
const journalPragmas = "_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"

// Open creates the journal file if needed and brings its schema up to date.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?"+journalPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{conn: conn}
	if err := d.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, d.conn, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

const runColumns = `id, label, script_path, checksum, bytes, target, outcome, state, error, started_at, duration_ms`

func scanRun(scanner interface{ Scan(...any) error }, r *Run) error {
	return scanner.Scan(&r.ID, &r.Label, &r.ScriptPath, &r.Checksum, &r.Bytes, &r.Target, &r.Outcome, &r.State, &r.Error, &r.StartedAt, &r.DurationMs)
}

// RecordRun inserts a run and returns its ID.
func (d *DB) RecordRun(r *Run) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO runs (label, script_path, checksum, bytes, target, outcome, state, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Label, r.ScriptPath, r.Checksum, r.Bytes, r.Target, r.Outcome, r.State, r.Error, r.StartedAt, r.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// GetRun retrieves a single run by ID, or nil if it does not exist.
func (d *DB) GetRun(id int64) (*Run, error) {
	r := &Run{}
	row := d.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err := scanRun(row, r); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (d *DB) ListRuns(limit int) ([]Run, error) {
	rows, err := d.conn.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := scanRun(rows, &r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunsForChecksum returns every recorded run of a script body, newest first.
func (d *DB) RunsForChecksum(checksum string) ([]Run, error) {
	rows, err := d.conn.Query(
		`SELECT `+runColumns+` FROM runs WHERE checksum = ? ORDER BY started_at DESC, id DESC`, checksum,
	)
	if err != nil {
		return nil, fmt.Errorf("runs for checksum: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := scanRun(rows, &r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
