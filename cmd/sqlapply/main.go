package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joestump/sqlapply/internal/config"
	"github.com/joestump/sqlapply/internal/migrate"
	"github.com/joestump/sqlapply/internal/target"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	redactor *target.Redactor
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "sqlapply",
		Short:         "Apply hand-written SQL migration files to a database",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	f := rootCmd.PersistentFlags()
	f.String("database-url", "", "connection descriptor (default from $SQLAPPLY_DATABASE_URL, $SUPABASE_DB_URL, $TARGET_DATABASE_URL)")
	f.String("env-file", ".env", "dotenv file loaded before configuration is resolved")
	f.String("journal", "", "path to a local SQLite run journal (disabled when empty)")
	f.BoolP("verbose", "v", false, "enable debug logging")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("database_url", "database-url")
	bindFlag("env_file", "env-file")
	bindFlag("journal", "journal")
	bindFlag("verbose", "verbose")

	config.BindEnv()

	rootCmd.AddCommand(
		newApplyCmd(a),
		newTablesCmd(a),
		newPingCmd(a),
		newHistoryCmd(a),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s\n", a.redactor.Redact(err.Error()))
		cancel()
		os.Exit(exitCode(err))
	}
}

// init resolves configuration exactly once, after flags are parsed.
func (a *app) init() error {
	if err := config.LoadEnvFile(viper.GetString("env_file")); err != nil {
		return err
	}
	a.cfg = config.Load()

	a.redactor = target.NewRedactor(a.cfg.DatabaseURL)

	level := slog.LevelInfo
	if a.cfg.Verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: a.redactAttr,
	}))
	return nil
}

// redactAttr keeps the descriptor's password out of log lines. Driver errors
// are the usual way it would leak.
func (a *app) redactAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, a.redactor.Redact(attr.Value.String()))
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok {
			return slog.String(attr.Key, a.redactor.Redact(err.Error()))
		}
	}
	return attr
}

// requireTarget fails with the same ConfigurationMissing error the executor
// uses, so every subcommand reports an unset descriptor the same way.
func (a *app) requireTarget() error {
	if a.cfg.DatabaseURL == "" {
		return &migrate.Error{
			Outcome: migrate.ConfigurationMissing,
			Err:     fmt.Errorf("set one of %s", strings.Join(config.DescriptorEnv, ", ")),
		}
	}
	return nil
}

func exitCode(err error) int {
	var me *migrate.Error
	if errors.As(err, &me) {
		return me.Outcome.ExitCode()
	}
	return 1
}
