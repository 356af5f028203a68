// Package target turns a connection descriptor into an open database handle.
//
// Descriptors are accepted in the URL forms the operators already keep in
// their environment, including SQLAlchemy-style driver suffixes such as
// postgresql+psycopg2://.
package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Kind identifies the database engine behind a descriptor.
type Kind string

const (
	Postgres Kind = "postgres"
	SQLite   Kind = "sqlite"
)

// sqlitePragmas are applied to every SQLite connection.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

var (
	// ErrEmptyDescriptor is returned when the descriptor is blank.
	ErrEmptyDescriptor = errors.New("empty connection descriptor")
	// ErrUnsupportedScheme is returned for URL schemes without a driver.
	ErrUnsupportedScheme = errors.New("unsupported database scheme")
)

// Target is a parsed descriptor ready for sql.Open.
type Target struct {
	Kind       Kind
	DriverName string
	DSN        string
}

// Parse maps a descriptor onto a driver and DSN. It does not connect.
func Parse(descriptor string) (Target, error) {
	d := strings.TrimSpace(descriptor)
	if d == "" {
		return Target{}, ErrEmptyDescriptor
	}

	if strings.HasPrefix(d, "file:") {
		return sqliteTarget(d), nil
	}

	scheme, rest, ok := strings.Cut(d, "://")
	if !ok {
		return Target{}, fmt.Errorf("%w: descriptor has no scheme", ErrUnsupportedScheme)
	}
	// SQLAlchemy URLs carry the client library after a plus sign.
	base, _, _ := strings.Cut(strings.ToLower(scheme), "+")

	switch base {
	case "postgres", "postgresql":
		return Target{
			Kind:       Postgres,
			DriverName: "pgx",
			DSN:        "postgres://" + rest,
		}, nil
	case "sqlite":
		return sqliteTarget(sqlitePath(rest)), nil
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, base)
	}
}

// sqlitePath follows SQLAlchemy's convention: the path starts after the third
// slash, so sqlite:///rel.db is relative and sqlite:////abs.db is absolute.
func sqlitePath(rest string) string {
	if rest == "" || rest == "/" {
		return ":memory:"
	}
	p := strings.TrimPrefix(rest, "/")
	if p == "" {
		return ":memory:"
	}
	return p
}

func sqliteTarget(path string) Target {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return Target{
		Kind:       SQLite,
		DriverName: "sqlite",
		DSN:        path + sep + sqlitePragmas,
	}
}

// Open parses the descriptor, opens a handle limited to one connection and
// verifies it with a ping.
func Open(ctx context.Context, descriptor string) (*sql.DB, Target, error) {
	t, err := Parse(descriptor)
	if err != nil {
		return nil, Target{}, err
	}

	conn, err := sql.Open(t.DriverName, t.DSN)
	if err != nil {
		return nil, t, fmt.Errorf("open %s: %w", t.Kind, err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, t, fmt.Errorf("ping %s: %w", t.Kind, err)
	}

	return conn, t, nil
}

// Ping runs a trivial round trip against the target.
func Ping(ctx context.Context, conn *sql.DB) error {
	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("select 1: %w", err)
	}
	return nil
}
