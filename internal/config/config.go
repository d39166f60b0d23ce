// Package config loads service settings from .env.local, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrMissingMailFrom    = errors.New("MAIL_FROM is required when SMTP_HOST is set")
	ErrMissingAdmins      = errors.New("ADMINS is required when SMTP_HOST is set")
	ErrMissingRedisAddr   = errors.New("REDIS_ADDR is required when USE_CACHE is enabled")
	ErrAdminAuthPartial   = errors.New("ADMIN_USER and ADMIN_PASSWORD_HASH must be set together")
	ErrInvalidRate        = errors.New("WIKIDATA_RATE must not be negative")
)

const (
	DefaultPort      = "5050"
	DefaultFile      = "config.yaml"
	DefaultUserAgent = "UK-geocode/0.1 (https://github.com/EmpoweredVote/geocode)"
)

// Config holds every setting of the service.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`

	UseCache        bool          `yaml:"use_cache"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	ElementCacheTTL time.Duration `yaml:"element_cache_ttl"`

	SMTPHost     string            `yaml:"smtp_host"`
	MailFrom     string            `yaml:"mail_from"`
	MailFromName string            `yaml:"mail_from_name"`
	Admins       []string          `yaml:"admins"`
	MailHeaders  map[string]string `yaml:"mail_headers"`

	AdminUser         string `yaml:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash"`

	// Requests per second to Wikidata and Overpass. Zero means unlimited.
	WikidataRate float64 `yaml:"wikidata_rate"`
	UserAgent    string  `yaml:"user_agent"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() Config {
	return Config{
		Port:            DefaultPort,
		ElementCacheTTL: 24 * time.Hour,
		MailFromName:    "UK geocode",
		WikidataRate:    5,
		UserAgent:       DefaultUserAgent,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load reads .env.local, then the YAML file named by GEOCODE_CONFIG (default
// config.yaml, skipped when absent), then environment variables.
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")

	cfg := Defaults()
	path := os.Getenv("GEOCODE_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	str("SMTP_HOST", &c.SMTPHost)
	str("MAIL_FROM", &c.MailFrom)
	str("MAIL_FROM_NAME", &c.MailFromName)
	str("ADMIN_USER", &c.AdminUser)
	str("ADMIN_PASSWORD_HASH", &c.AdminPasswordHash)
	str("USER_AGENT", &c.UserAgent)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if v, ok := lookup("ADMINS"); ok && v != "" {
		c.Admins = splitList(v)
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("USE_CACHE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("USE_CACHE: %w", err)
		}
		c.UseCache = b
	}
	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.RedisDB = n
	}
	if v, ok := lookup("ELEMENT_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ELEMENT_CACHE_TTL: %w", err)
		}
		c.ElementCacheTTL = d
	}
	if v, ok := lookup("WIKIDATA_RATE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("WIKIDATA_RATE: %w", err)
		}
		c.WikidataRate = f
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that required settings are present and consistent.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.SMTPHost != "" {
		if c.MailFrom == "" {
			return ErrMissingMailFrom
		}
		if len(c.Admins) == 0 {
			return ErrMissingAdmins
		}
	}
	if c.UseCache && c.RedisAddr == "" {
		return ErrMissingRedisAddr
	}
	if (c.AdminUser == "") != (c.AdminPasswordHash == "") {
		return ErrAdminAuthPartial
	}
	if c.WikidataRate < 0 {
		return ErrInvalidRate
	}
	return nil
}

// MailEnabled reports whether admin mail can be sent.
func (c Config) MailEnabled() bool { return c.SMTPHost != "" }
