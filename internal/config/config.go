// Package config loads the command-line tool's settings from flags, an
// optional YAML file, a .env file and KNOLSCHED_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix namespaces environment overrides. A double underscore nests:
// KNOLSCHED_LOG__LEVEL sets log.level.
const EnvPrefix = "KNOLSCHED_"

// ErrHelp is returned when -h or --help was requested.
var ErrHelp = pflag.ErrHelp

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type SchedConfig struct {
	// Deck selects the study context; 0 keeps the collection's current deck.
	Deck        int64  `koanf:"deck" validate:"gte=0"`
	Timezone    string `koanf:"timezone"`
	QueueLimit  int    `koanf:"queue_limit" validate:"gte=1,lte=1000"`
	BuryOnFetch bool   `koanf:"bury_on_fetch"`
}

type MetricsConfig struct {
	// Textfile, when set, receives the metrics in Prometheus text format on exit.
	Textfile string `koanf:"textfile"`
}

// Config is the fully resolved tool configuration.
type Config struct {
	DB      string        `koanf:"db" validate:"required"`
	Log     LogConfig     `koanf:"log"`
	Sched   SchedConfig   `koanf:"sched"`
	Metrics MetricsConfig `koanf:"metrics"`
	// Yes confirms operations that otherwise only report what they would do.
	Yes bool `koanf:"yes"`

	// Args are the positional arguments left after flag parsing.
	Args []string `koanf:"-"`
}

// Location resolves the configured timezone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Sched.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Sched.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Sched.Timezone, err)
	}
	return loc, nil
}

func flags(name string) *pflag.FlagSet {
	set := pflag.NewFlagSet(name, pflag.ContinueOnError)
	set.String("config", "", "Path to a YAML configuration file")
	set.String("env-file", ".env", "Path to a .env file loaded before the environment is read")
	set.String("db", "knolsched.db", "Path to the SQLite collection")
	set.String("log.level", "info", "Log level: debug, info, warn or error")
	set.String("log.format", "text", "Log format: text or json")
	set.Int64("sched.deck", 0, "Deck to study; 0 keeps the current deck")
	set.String("sched.timezone", "", "IANA timezone the day rollover is measured in")
	set.Int("sched.queue_limit", 50, "Cards fetched per queue refill")
	set.Bool("sched.bury_on_fetch", false, "Bury siblings when a card is shown instead of when it is answered")
	set.BoolP("yes", "y", false, "Confirm destructive operations such as a scheduler version switch")
	set.String("metrics.textfile", "", "Write Prometheus metrics to this file on exit")
	return set
}

// Load resolves the configuration from args (without the program name).
// Precedence, lowest first: flag defaults, YAML file, environment, explicit flags.
func Load(name string, args []string) (*Config, error) {
	set := flags(name)
	if err := set.Parse(args); err != nil {
		return nil, err
	}

	envFile, _ := set.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")
	if path, _ := set.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	// Defaults fill keys nothing else set; explicitly passed flags always win.
	if err := k.Load(posflag.Provider(set, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Args = set.Args()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
