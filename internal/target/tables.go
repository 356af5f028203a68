package target

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Table is a user table on the target together with its row count.
type Table struct {
	Name string
	Rows int64
	Err  error // set when the count query failed
}

// ListTables returns the user tables of the target ordered by name. Count
// failures are attached to the row so one broken table does not hide the
// rest of the listing.
func ListTables(ctx context.Context, conn *sql.DB, kind Kind) ([]Table, error) {
	var query string
	switch kind {
	case Postgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = 'public' ORDER BY table_name`
	case SQLite:
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, kind)
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		t := Table{Name: name}
		q := "SELECT COUNT(*) FROM " + quoteIdent(kind, name)
		if err := conn.QueryRowContext(ctx, q).Scan(&t.Rows); err != nil {
			t.Err = err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// HasTable reports whether a user table with the given name exists.
func HasTable(ctx context.Context, conn *sql.DB, kind Kind, name string) (bool, error) {
	tables, err := ListTables(ctx, conn, kind)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func quoteIdent(kind Kind, name string) string {
	if kind == Postgres {
		return pgx.Identifier{name}.Sanitize()
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
