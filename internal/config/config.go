// Package config loads openingdrill settings.
//
// Values are layered, lowest precedence first: compiled defaults, a YAML
// file, a .env file, OPENINGDRILL_* environment variables and finally
// command-line flags. Nested keys use "." in files and flags and "__" in
// environment variables, e.g. OPENINGDRILL_DRILL__DAILY_NEW_CAP.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/openingdrill/internal/daybound"
	"github.com/conorfennell/openingdrill/internal/storage"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "OPENINGDRILL_"

const (
	DefaultConfigFile = "openingdrill.yaml"
	DefaultEnvFile    = ".env"
)

type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Drill    DrillConfig    `koanf:"drill"`
	Sync     SyncConfig     `koanf:"sync"`
	Log      LogConfig      `koanf:"log"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `koanf:"dsn" validate:"required"`
}

// DataSource returns the DSN to hand to the driver.
func (d DatabaseConfig) DataSource() string {
	if d.Driver == storage.DriverSQLite && !strings.HasPrefix(d.DSN, "file:") {
		return storage.SQLiteDSN(d.DSN)
	}
	return d.DSN
}

type ServerConfig struct {
	Addr        string          `koanf:"addr" validate:"required"`
	CORSOrigins []string        `koanf:"cors_origins"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig bounds API requests per user.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" validate:"gt=0"`
	Burst int     `koanf:"burst" validate:"min=1"`
}

type DrillConfig struct {
	DailyNewCap int           `koanf:"daily_new_cap" validate:"min=0"`
	RetryDelay  time.Duration `koanf:"retry_delay" validate:"min=1s"`
	CutoverHour int           `koanf:"cutover_hour" validate:"min=0,max=23"`
	Timezone    string        `koanf:"timezone" validate:"required"`
}

// Clock returns the day boundary for the configured zone and cutover.
func (d DrillConfig) Clock() (daybound.Clock, error) {
	return daybound.New(d.Timezone, d.CutoverHour)
}

type SyncConfig struct {
	ReposDir string        `koanf:"repos_dir" validate:"required"`
	Interval time.Duration `koanf:"interval" validate:"min=1s"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json tint"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: storage.DriverSQLite, DSN: "openingdrill.db"},
		Server: ServerConfig{
			Addr:      ":8080",
			RateLimit: RateLimitConfig{RPS: 10, Burst: 20},
		},
		Drill: DrillConfig{
			DailyNewCap: 10,
			RetryDelay:  7 * time.Minute,
			CutoverHour: daybound.DefaultCutoverHour,
			Timezone:    "Local",
		},
		Sync: SyncConfig{ReposDir: "repos", Interval: time.Hour},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Options says where Load looks besides the defaults.
type Options struct {
	// ConfigFile is the YAML file to read. A missing DefaultConfigFile is
	// ignored; any other missing file is an error.
	ConfigFile string
	// EnvFile is loaded into the process environment if it exists.
	EnvFile string
	// Flags contributes the flags the user actually set.
	Flags *pflag.FlagSet
}

// RegisterFlags defines the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", DefaultConfigFile, "path to the YAML config file")
	fs.String("env-file", DefaultEnvFile, "path to a .env file")
	fs.String("database.driver", d.Database.Driver, "database driver (sqlite or postgres)")
	fs.String("database.dsn", d.Database.DSN, "sqlite file or postgres URL")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log.format", d.Log.Format, "log format (text, json, tint)")
	fs.String("sync.repos_dir", d.Sync.ReposDir, "directory for cloned deck repositories")
}

// Load builds the configuration and validates it.
func Load(opts Options) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if opts.ConfigFile != "" {
		err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser())
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist) && opts.ConfigFile == DefaultConfigFile:
		default:
			return cfg, fmt.Errorf("failed to load config file %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return cfg, fmt.Errorf("failed to load environment: %w", err)
	}

	if opts.Flags != nil {
		err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" || f.Name == "env-file" {
				return "", nil
			}
			return f.Name, posflag.FlagVal(opts.Flags, f)
		}), nil)
		if err != nil {
			return cfg, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and the time zone.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Drill.Clock(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// OptionsFromFlags reads --config and --env-file from fs and passes fs on
// as the flag layer.
func OptionsFromFlags(fs *pflag.FlagSet) Options {
	opts := Options{ConfigFile: DefaultConfigFile, EnvFile: DefaultEnvFile, Flags: fs}
	if fs == nil {
		return opts
	}
	if v, err := fs.GetString("config"); err == nil {
		opts.ConfigFile = v
	}
	if v, err := fs.GetString("env-file"); err == nil {
		opts.EnvFile = v
	}
	return opts
}
