package main

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/joestump/sqlapply/internal/journal"
	"github.com/joestump/sqlapply/internal/migrate"
	"github.com/joestump/sqlapply/internal/target"
)

func newApplyCmd(a *app) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "apply SCRIPT...",
		Short: "Apply SQL scripts, each in its own transaction, in argument order",
		Long: `Apply runs every statement of each script as one transaction and commits it.
Scripts run in the order given and the command stops at the first failure.
Nothing records which scripts were applied before: write idempotent SQL
(DROP ... IF EXISTS, CREATE OR REPLACE) if a script may run twice.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if label != "" && len(args) > 1 {
				return fmt.Errorf("--label applies to a single script, got %d", len(args))
			}

			var jr *journal.DB
			if a.cfg.Journal != "" {
				var err error
				jr, err = journal.Open(a.cfg.Journal)
				if err != nil {
					return fmt.Errorf("open journal: %w", err)
				}
				defer jr.Close() //nolint:errcheck
			}

			fs := afero.NewOsFs()
			exec := migrate.New(migrate.SQLDriver{}, migrate.WithFs(fs), migrate.WithLogger(a.logger))
			redacted := target.Redact(a.cfg.DatabaseURL)

			fmt.Printf("sqlapply %s\n", cmd.Root().Version)
			fmt.Printf("  Target: %s\n", displayTarget(redacted))
			fmt.Printf("  Scripts: %d\n", len(args))
			fmt.Println()

			for _, path := range args {
				script := migrate.Script{Path: path, Label: label}
				started := time.Now().UTC()

				if jr != nil {
					a.warnIfCommitted(jr, fs, script)
				}
				res, err := exec.Apply(cmd.Context(), a.cfg.DatabaseURL, script)
				if jr != nil {
					a.record(jr, res, redacted, started, err)
				}
				if err != nil {
					return err
				}
				fmt.Printf("✅ %s applied (%s, sha256 %s)\n", script.Name(), res.Duration.Round(time.Millisecond), res.Checksum[:12])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "name shown in progress messages (single script only)")
	return cmd
}

// record writes the run to the journal. Journal failures are logged and never
// change the outcome of the apply.
func (a *app) record(jr *journal.DB, res migrate.Result, redacted string, started time.Time, applyErr error) {
	run := &journal.Run{
		Label:      res.Script.Name(),
		ScriptPath: res.Script.Path,
		Bytes:      res.Bytes,
		Target:     redacted,
		Outcome:    res.Outcome.String(),
		State:      res.State.String(),
		StartedAt:  started.Format(time.RFC3339Nano),
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Checksum != "" {
		run.Checksum = &res.Checksum
	}
	if applyErr != nil {
		msg := a.redactor.Redact(applyErr.Error())
		run.Error = &msg
	}
	if _, err := jr.RecordRun(run); err != nil {
		a.logger.Warn("journal write failed", "error", err)
	}
}

// warnIfCommitted tells the operator, before the script runs, that the same
// script body was committed earlier. It never stops the apply.
func (a *app) warnIfCommitted(jr *journal.DB, fs afero.Fs, script migrate.Script) {
	n, last, err := committedBefore(jr, fs, script.Path)
	if err != nil {
		a.logger.Warn("journal lookup failed", "error", err)
		return
	}
	if n > 0 {
		a.logger.Warn("identical script was committed before; applying again", "script", script.Name(), "times", n, "last", last)
	}
}

// committedBefore counts committed journal runs of the script at path. An
// unreadable script counts as never run; Apply reports the read failure.
func committedBefore(jr *journal.DB, fs afero.Fs, path string) (int, string, error) {
	body, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, "", nil
	}
	prior, err := jr.RunsForChecksum(migrate.ChecksumSQL(body))
	if err != nil {
		return 0, "", err
	}
	n, last := countCommitted(prior)
	return n, last, nil
}

// countCommitted expects runs newest first.
func countCommitted(runs []journal.Run) (n int, last string) {
	for _, r := range runs {
		if r.State != migrate.Committed.String() {
			continue
		}
		if n == 0 {
			last = r.StartedAt
		}
		n++
	}
	return n, last
}

func displayTarget(redacted string) string {
	if redacted == "" {
		return "(not set)"
	}
	return redacted
}
