// Package migrate applies a single SQL script to a single database as one
// transaction. It keeps no history: applying the same script twice runs it
// twice.
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Driver opens a connection with an open transaction for a descriptor.
type Driver interface {
	Connect(ctx context.Context, descriptor string) (Conn, error)
}

// Conn is one connection holding one transaction. Close releases the
// connection and rolls back anything not committed.
type Conn interface {
	Exec(ctx context.Context, script string) error
	Commit() error
	Close() error
}

// Script is a SQL file to apply. Label only appears in progress messages.
type Script struct {
	Path  string
	Label string
}

// Name returns the label, falling back to the file name.
func (s Script) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return filepath.Base(s.Path)
}

// Result describes what a single Apply call did.
type Result struct {
	Script   Script
	Outcome  Outcome
	State    State
	Checksum string // hex SHA-256 of the script text, empty if never read
	Bytes    int
	Duration time.Duration
}

// Executor applies scripts through a Driver.
type Executor struct {
	driver Driver
	fs     afero.Fs
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithFs reads scripts from fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(e *Executor) { e.fs = fs }
}

// WithLogger sets the sink for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// New creates an Executor.
func New(driver Driver, opts ...Option) *Executor {
	e := &Executor{
		driver: driver,
		fs:     afero.NewOsFs(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply connects to descriptor, runs the full text of script as one unit and
// commits. Every error is an *Error whose Outcome says how far it got. The
// connection is released before Apply returns on every path past Connect.
//
// Once the script has been submitted, cancelling ctx no longer interrupts
// it; the engine's own timeouts decide.
func (e *Executor) Apply(ctx context.Context, descriptor string, script Script) (res Result, err error) {
	res = Result{Script: script, State: NotStarted}
	start := time.Now()
	log := e.logger.With("script", script.Name())

	defer func() {
		res.Duration = time.Since(start)
		if err != nil {
			res.State = Failed
			res.Outcome = OutcomeOf(err)
			log.Debug("migration failed", "outcome", res.Outcome, "error", err)
		}
	}()

	if strings.TrimSpace(descriptor) == "" {
		return res, &Error{Outcome: ConfigurationMissing}
	}

	log.Info("connecting")
	conn, err := e.driver.Connect(ctx, descriptor)
	if err != nil {
		return res, &Error{Outcome: ConnectionFailed, Err: err}
	}
	res.State = Connected
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("release connection", "error", cerr)
		}
	}()

	body, err := afero.ReadFile(e.fs, script.Path)
	if err != nil {
		return res, &Error{Outcome: ScriptUnreadable, Path: script.Path, Err: err}
	}
	res.Checksum = ChecksumSQL(body)
	res.Bytes = len(body)

	execCtx := context.WithoutCancel(ctx)

	log.Info("executing", "path", script.Path, "bytes", res.Bytes)
	if err := conn.Exec(execCtx, string(body)); err != nil {
		return res, &Error{Outcome: ExecutionFailed, Path: script.Path, Err: err}
	}
	if err := conn.Commit(); err != nil {
		return res, &Error{Outcome: ExecutionFailed, Path: script.Path, Err: err}
	}

	res.State = Committed
	res.Outcome = Success
	log.Info("migration applied", "checksum", res.Checksum[:12], "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// ChecksumSQL returns the hex SHA-256 of a script body, as stored in Result.
func ChecksumSQL(body []byte) string {
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}
