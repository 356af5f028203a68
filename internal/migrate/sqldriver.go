package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joestump/sqlapply/internal/target"
)

// SQLDriver connects through database/sql using the drivers registered by
// the target package.
type SQLDriver struct{}

// Connect opens the target, pinned to one connection, and begins a
// transaction on it. Opening honours ctx; the transaction does not, so a
// cancellation after Connect cannot roll back a script that already ran.
func (SQLDriver) Connect(ctx context.Context, descriptor string) (Conn, error) {
	db, t, err := target.Open(ctx, descriptor)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("begin %s transaction: %w", t.Kind, err)
	}

	return &sqlConn{db: db, tx: tx}, nil
}

type sqlConn struct {
	db        *sql.DB
	tx        *sql.Tx
	committed bool
}

// Exec submits the whole script in one call. Both pgx (simple protocol, no
// arguments) and modernc sqlite run every statement in the text.
func (c *sqlConn) Exec(ctx context.Context, script string) error {
	_, err := c.tx.ExecContext(ctx, script)
	return err
}

func (c *sqlConn) Commit() error {
	if err := c.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	c.committed = true
	return nil
}

func (c *sqlConn) Close() error {
	var errs []error
	if !c.committed {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("rollback: %w", err))
		}
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	return errors.Join(errs...)
}
