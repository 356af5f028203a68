package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// EnvPrefix namespaces every setting, e.g. SQLAPPLY_JOURNAL.
const EnvPrefix = "SQLAPPLY"

// DescriptorEnv lists the variables consulted for the connection descriptor,
// highest precedence first. The legacy names are what the hand-run migration
// scripts read.
var DescriptorEnv = []string{
	EnvPrefix + "_DATABASE_URL",
	"SUPABASE_DB_URL",
	"TARGET_DATABASE_URL",
}

// Config is resolved once at startup and passed around by value.
type Config struct {
	DatabaseURL string
	EnvFile     string
	Journal     string
	Verbose     bool
}

// BindEnv wires environment variables into viper. Call it before Load.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = viper.BindEnv(append([]string{"database_url"}, DescriptorEnv...)...)
}

// LoadEnvFile exports the variables in a dotenv file without overriding any
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/sqlapply).
func Load() Config {
	return Config{
		DatabaseURL: strings.TrimSpace(viper.GetString("database_url")),
		EnvFile:     viper.GetString("env_file"),
		Journal:     viper.GetString("journal"),
		Verbose:     viper.GetBool("verbose"),
	}
}
