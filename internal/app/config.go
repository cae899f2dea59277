package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/samintell/songquiz/internal/database"
	"github.com/samintell/songquiz/internal/quiz"
	"github.com/samintell/songquiz/internal/services"
)

// EnvPrefix prefixes environment overrides, e.g. SONGQUIZ_SERVER_PORT.
const EnvPrefix = "SONGQUIZ"

// Config represents the runtime configuration of the quiz server.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Quiz       QuizConfig       `mapstructure:"quiz"`
	History    HistoryConfig    `mapstructure:"history"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogEncoding     string        `mapstructure:"log_encoding"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string            `mapstructure:"driver"`
	Path     string            `mapstructure:"path"`
	DSN      string            `mapstructure:"dsn"`
	Postgres DBAuthConfig      `mapstructure:"postgres"`
	MySQL    DBAuthConfig      `mapstructure:"mysql"`
	Options  map[string]string `mapstructure:"options"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CatalogConfig locates the chart list and its media.
type CatalogConfig struct {
	Path           string `mapstructure:"path"`
	ImagesDir      string `mapstructure:"images_dir"`
	AudioDir       string `mapstructure:"audio_dir"`
	ReloadSchedule string `mapstructure:"reload_schedule"`
	CheckMedia     bool   `mapstructure:"check_media"`
}

// QuizConfig bounds session settings and paces rounds.
type QuizConfig struct {
	MatchThreshold float64       `mapstructure:"match_threshold"`
	DefaultRounds  int           `mapstructure:"default_rounds"`
	MaxRounds      int           `mapstructure:"max_rounds"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MinTimeout     time.Duration `mapstructure:"min_timeout"`
	MaxTimeout     time.Duration `mapstructure:"max_timeout"`
	DefaultSnippet int           `mapstructure:"default_snippet"`
	MinSnippet     int           `mapstructure:"min_snippet"`
	MaxSnippet     int           `mapstructure:"max_snippet"`
	LeadIn         time.Duration `mapstructure:"lead_in"`
	Intermission   time.Duration `mapstructure:"intermission"`
	SkipPolicy     string        `mapstructure:"skip_policy"`
}

// HistoryConfig controls persistence and retention of finished quizzes.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	RetentionDays int    `mapstructure:"retention_days"`
	Schedule      string `mapstructure:"schedule"`
}

// MonitoringConfig enables metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig reads config.yaml from ./config and the given paths, then applies .env files
// and SONGQUIZ_ environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// loadDotEnv populates the environment from .env without overriding variables that are
// already set.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load .env: %w", err)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_encoding", "json")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/songquiz.sqlite")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("catalog.path", "./output.json")
	v.SetDefault("catalog.images_dir", "./images")
	v.SetDefault("catalog.audio_dir", "./audio")
	v.SetDefault("catalog.reload_schedule", "@hourly")
	v.SetDefault("catalog.check_media", true)

	v.SetDefault("quiz.match_threshold", quiz.DefaultThreshold)
	v.SetDefault("quiz.default_rounds", 10)
	v.SetDefault("quiz.max_rounds", 50)
	v.SetDefault("quiz.default_timeout", "20s")
	v.SetDefault("quiz.min_timeout", "10s")
	v.SetDefault("quiz.max_timeout", "300s")
	v.SetDefault("quiz.default_snippet", 10)
	v.SetDefault("quiz.min_snippet", 5)
	v.SetDefault("quiz.max_snippet", 30)
	v.SetDefault("quiz.lead_in", "3s")
	v.SetDefault("quiz.intermission", "3s")
	v.SetDefault("quiz.skip_policy", services.SkipPolicyHost)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.retention_days", 30)
	v.SetDefault("history.schedule", "@daily")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Settings converts the database section into connection options.
func (c DatabaseConfig) Settings() database.Config {
	cfg := database.Config{
		Driver:  c.Driver,
		Path:    c.Path,
		DSN:     c.DSN,
		Options: c.Options,
	}

	var auth DBAuthConfig
	switch strings.ToLower(c.Driver) {
	case "postgres", "postgresql":
		auth = c.Postgres
	case "mysql", "mariadb":
		auth = c.MySQL
	default:
		return cfg
	}
	cfg.Host = auth.Host
	cfg.Port = auth.Port
	cfg.User = auth.Username
	cfg.Password = auth.Password
	cfg.Name = auth.Database
	return cfg
}

// Limits converts the quiz section into session bounds.
func (c QuizConfig) Limits() quiz.Limits {
	return quiz.Limits{
		DefaultRounds:  c.DefaultRounds,
		MaxRounds:      c.MaxRounds,
		DefaultTimeout: c.DefaultTimeout,
		MinTimeout:     c.MinTimeout,
		MaxTimeout:     c.MaxTimeout,
		DefaultSnippet: c.DefaultSnippet,
		MinSnippet:     c.MinSnippet,
		MaxSnippet:     c.MaxSnippet,
	}
}

// ServiceConfig converts the quiz section into quiz service pacing.
func (c QuizConfig) ServiceConfig() services.QuizServiceConfig {
	return services.QuizServiceConfig{
		LeadIn:       c.LeadIn,
		Intermission: c.Intermission,
		SkipPolicy:   c.SkipPolicy,
	}
}
