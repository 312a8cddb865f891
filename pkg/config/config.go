package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Log       LogConfig
	Scheduler SchedulerConfig
	Batch     BatchConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the constraint model and the search budget.
type SchedulerConfig struct {
	SlotMinutes         int
	TimeLimit           time.Duration
	MaxNodes            int64
	Workers             int
	MinProctors         int
	EnforceAvailability bool
	EnforceCapacity     bool
}

// BatchConfig sizes the worker queue used for multi-file runs.
type BatchConfig struct {
	Workers    int
	MaxRetries int
}

func Load() (*Config, error) {
	return LoadViper(viper.New())
}

// LoadViper reads .env and the environment into v and materialises a Config.
// Flags bound onto v beforehand take precedence over both.
func LoadViper(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return FromViper(v), nil
}

// FromViper materialises a Config from an already populated viper instance.
// The CLI binds its flags onto the same keys before calling it.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		SlotMinutes:         positiveInt(v.GetInt("SCHEDULER_SLOT_MINUTES"), 30),
		TimeLimit:           parseDuration(v.GetString("SCHEDULER_TIME_LIMIT"), 10*time.Second),
		MaxNodes:            v.GetInt64("SCHEDULER_MAX_NODES"),
		Workers:             positiveInt(v.GetInt("SCHEDULER_WORKERS"), 1),
		MinProctors:         positiveInt(v.GetInt("SCHEDULER_MIN_PROCTORS"), 1),
		EnforceAvailability: v.GetBool("SCHEDULER_ENFORCE_AVAILABILITY"),
		EnforceCapacity:     v.GetBool("SCHEDULER_ENFORCE_CAPACITY"),
	}

	cfg.Batch = BatchConfig{
		Workers:    positiveInt(v.GetInt("BATCH_WORKERS"), 2),
		MaxRetries: v.GetInt("BATCH_MAX_RETRIES"),
	}

	return cfg
}

// SetDefaults registers every known key with its default value.
func SetDefaults(v *viper.Viper) {
	setDefaults(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_SLOT_MINUTES", 30)
	v.SetDefault("SCHEDULER_TIME_LIMIT", "10s")
	v.SetDefault("SCHEDULER_MAX_NODES", 2000000)
	v.SetDefault("SCHEDULER_WORKERS", 1)
	v.SetDefault("SCHEDULER_MIN_PROCTORS", 1)
	v.SetDefault("SCHEDULER_ENFORCE_AVAILABILITY", true)
	v.SetDefault("SCHEDULER_ENFORCE_CAPACITY", true)

	v.SetDefault("BATCH_WORKERS", 2)
	v.SetDefault("BATCH_MAX_RETRIES", 1)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
