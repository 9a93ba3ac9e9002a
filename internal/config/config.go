package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`

	// Database
	DBPath string `yaml:"db_path"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Auth
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// Company name used in export filenames.
	Company string `yaml:"company"`

	DigiKey     DigiKey       `yaml:"digikey"`
	Mouser      Mouser        `yaml:"mouser"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

type DigiKey struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	APIBase      string `yaml:"api_base"`
}

type Mouser struct {
	APIKey  string `yaml:"api_key"`
	APIBase string `yaml:"api_base"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Port:        9000,
		Environment: "development",
		DBPath:      "mrp.db",
		LogLevel:    "info",
		LogFormat:   "text",
		TokenTTL:    12 * time.Hour,
		Company:     "engimusing-llc",
		DigiKey: DigiKey{
			TokenURL: "https://api.digikey.com/v1/oauth2/token",
			APIBase:  "https://api.digikey.com",
		},
		Mouser:      Mouser{APIBase: "https://api.mouser.com"},
		HTTPTimeout: 15 * time.Second,
	}
}

// Load reads .env (if present), then the optional YAML file at path, then
// MRP_* environment variables, each layer overriding the previous one.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.Port = getEnvInt("MRP_PORT", cfg.Port)
	cfg.Environment = getEnv("MRP_ENV", cfg.Environment)
	cfg.DBPath = getEnv("MRP_DB_PATH", cfg.DBPath)
	cfg.LogLevel = getEnv("MRP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("MRP_LOG_FORMAT", cfg.LogFormat)
	cfg.JWTSecret = getEnv("MRP_JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getEnvDuration("MRP_TOKEN_TTL", cfg.TokenTTL)
	cfg.Company = getEnv("MRP_COMPANY", cfg.Company)
	cfg.DigiKey.ClientID = getEnv("DIGIKEY_CLIENT_ID", cfg.DigiKey.ClientID)
	cfg.DigiKey.ClientSecret = getEnv("DIGIKEY_CLIENT_SECRET", cfg.DigiKey.ClientSecret)
	cfg.DigiKey.TokenURL = getEnv("DIGIKEY_TOKEN_URL", cfg.DigiKey.TokenURL)
	cfg.DigiKey.APIBase = getEnv("DIGIKEY_API_BASE", cfg.DigiKey.APIBase)
	cfg.Mouser.APIKey = getEnv("MOUSER_API_KEY", cfg.Mouser.APIKey)
	cfg.Mouser.APIBase = getEnv("MOUSER_API_BASE", cfg.Mouser.APIBase)
	cfg.HTTPTimeout = getEnvDuration("MRP_HTTP_TIMEOUT", cfg.HTTPTimeout)

	return cfg, cfg.Validate()
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret (MRP_JWT_SECRET) is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the logging settings.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
