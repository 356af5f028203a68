package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joestump/sqlapply/internal/journal"
	"github.com/joestump/sqlapply/internal/migrate"
	"github.com/joestump/sqlapply/internal/target"
)

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List user tables on the target with row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireTarget(); err != nil {
				return err
			}
			ctx := cmd.Context()

			a.logger.Info("fetching table list", "target", target.Redact(a.cfg.DatabaseURL))
			conn, t, err := target.Open(ctx, a.cfg.DatabaseURL)
			if err != nil {
				return &migrate.Error{Outcome: migrate.ConnectionFailed, Err: err}
			}
			defer conn.Close() //nolint:errcheck

			tables, err := target.ListTables(ctx, conn, t.Kind)
			if err != nil {
				return err
			}

			fmt.Printf("Found %d tables:\n", len(tables))
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tROWS")
			for _, tbl := range tables {
				if tbl.Err != nil {
					fmt.Fprintf(w, "%s\terror: %s\n", tbl.Name, a.redactor.Redact(tbl.Err.Error()))
					continue
				}
				fmt.Fprintf(w, "%s\t%d\n", tbl.Name, tbl.Rows)
			}
			return w.Flush()
		},
	}
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireTarget(); err != nil {
				return err
			}
			ctx := cmd.Context()

			fmt.Printf("URL: %s\n", target.Redact(a.cfg.DatabaseURL))
			conn, t, err := target.Open(ctx, a.cfg.DatabaseURL)
			if err != nil {
				fmt.Println("Connectivity: FAILED")
				return &migrate.Error{Outcome: migrate.ConnectionFailed, Err: err}
			}
			defer conn.Close() //nolint:errcheck

			fmt.Printf("Dialect: %s\n", t.Kind)
			if err := target.Ping(ctx, conn); err != nil {
				fmt.Println("Connectivity: FAILED")
				return &migrate.Error{Outcome: migrate.ConnectionFailed, Err: err}
			}
			fmt.Println("Connectivity: OK")
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded apply runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Journal == "" {
				return fmt.Errorf("no journal configured (set --journal or SQLAPPLY_JOURNAL)")
			}
			jr, err := journal.Open(a.cfg.Journal)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer jr.Close() //nolint:errcheck

			runs, err := jr.ListRuns(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSCRIPT\tOUTCOME\tDURATION\tTARGET")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%dms\t%s\n", r.ID, r.StartedAt, r.Label, r.Outcome, r.DurationMs, r.Target)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}
