package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/habedi/gigsync/auth"
	"github.com/habedi/gigsync/client"
	"github.com/habedi/gigsync/token"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	DefaultBaseURL = "http://localhost:8080/api"
)

// Config holds runtime settings for the CLI.
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	ChatURL           string        `yaml:"chat_url"`        // derived from BaseURL when empty
	LeadTime          time.Duration `yaml:"lead_time"`       // refresh this long before exp
	RefreshTimeout    time.Duration `yaml:"refresh_timeout"` // bound on a single refresh call
	RequestTimeout    time.Duration `yaml:"request_timeout"` // bound on a single API call
	RateLimit         float64       `yaml:"rate_limit"`      // requests per second, 0 = unlimited
	RateBurst         int           `yaml:"rate_burst"`      // burst size for RateLimit
	MaxRetries        int           `yaml:"max_retries"`     // attempts for GET calls on server errors
	Store             string        `yaml:"store"`           // sqlite or redis
	DBPath            string        `yaml:"db_path"`         // sqlite file
	RedisURL          string        `yaml:"redis_url"`       // redis://host:port/db
	RedisKey          string        `yaml:"redis_key"`       // key holding the session
	RefreshCookieName string        `yaml:"refresh_cookie"`  // name of the refresh cookie
	AuthEndpoints     []string      `yaml:"auth_endpoints"`  // paths that never carry a bearer token
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		LeadTime:          token.DefaultLeadTime,
		RefreshTimeout:    auth.DefaultRefreshTimeout,
		RequestTimeout:    30 * time.Second,
		RateBurst:         1,
		MaxRetries:        3,
		Store:             StoreSQLite,
		DBPath:            filepath.Join(homeDir(), ".gigsync", "credentials.db"),
		RedisKey:          "gigsync:credential",
		RefreshCookieName: client.DefaultRefreshCookieName,
		AuthEndpoints:     append([]string(nil), client.DefaultAuthEndpoints...),
	}
}

// DefaultPath is where Load looks for a config file when none is given.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".gigsync", "config.yaml")
}

// Load builds the configuration from defaults, the YAML file at path, a .env file and the environment,
// in that order. A missing file is only an error when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.mergeFile(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("No config file, using defaults")
		} else {
			return Config{}, err
		}
	}

	cfg.mergeEnv()
	if cfg.ChatURL == "" {
		if derived, err := client.ChatURLFor(cfg.BaseURL); err == nil {
			cfg.ChatURL = derived
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.BaseURL = firstNonEmpty(os.Getenv("GIGSYNC_BASE_URL"), c.BaseURL)
	c.ChatURL = firstNonEmpty(os.Getenv("GIGSYNC_CHAT_URL"), c.ChatURL)
	c.LeadTime = durationFromEnv("GIGSYNC_LEAD_TIME", c.LeadTime)
	c.RefreshTimeout = durationFromEnv("GIGSYNC_REFRESH_TIMEOUT", c.RefreshTimeout)
	c.RequestTimeout = durationFromEnv("GIGSYNC_REQUEST_TIMEOUT", c.RequestTimeout)
	c.RateLimit = floatFromEnv("GIGSYNC_RATE_LIMIT", c.RateLimit)
	c.RateBurst = intFromEnv("GIGSYNC_RATE_BURST", c.RateBurst)
	c.MaxRetries = intFromEnv("GIGSYNC_MAX_RETRIES", c.MaxRetries)
	c.Store = strings.ToLower(firstNonEmpty(os.Getenv("GIGSYNC_STORE"), c.Store))
	c.DBPath = firstNonEmpty(os.Getenv("GIGSYNC_DB_PATH"), c.DBPath)
	c.RedisURL = firstNonEmpty(os.Getenv("GIGSYNC_REDIS_URL"), c.RedisURL)
	c.RedisKey = firstNonEmpty(os.Getenv("GIGSYNC_REDIS_KEY"), c.RedisKey)
	c.RefreshCookieName = firstNonEmpty(os.Getenv("GIGSYNC_COOKIE_NAME"), c.RefreshCookieName)
	if eps := parseCSV(os.Getenv("GIGSYNC_AUTH_ENDPOINTS")); len(eps) > 0 {
		c.AuthEndpoints = eps
	}
}

// Validate checks that the settings can produce a working client.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.ChatURL != "" {
		cu, err := url.Parse(c.ChatURL)
		if err != nil || (cu.Scheme != "ws" && cu.Scheme != "wss") || cu.Host == "" {
			return fmt.Errorf("chat_url must be an absolute ws(s) URL, got %q", c.ChatURL)
		}
	}
	for name, d := range map[string]time.Duration{
		"lead_time":       c.LeadTime,
		"refresh_timeout": c.RefreshTimeout,
		"request_timeout": c.RequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db_path is required for the sqlite store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreSQLite, StoreRedis)
	}
	return nil
}

// ClientConfig converts the settings into a client.Config.
func (c Config) ClientConfig(onSessionEnded func(error)) client.Config {
	return client.Config{
		BaseURL:           c.BaseURL,
		ChatURL:           c.ChatURL,
		LeadTime:          c.LeadTime,
		RefreshTimeout:    c.RefreshTimeout,
		RequestTimeout:    c.RequestTimeout,
		RateLimit:         c.RateLimit,
		RateBurst:         c.RateBurst,
		MaxRetries:        c.MaxRetries,
		RefreshCookieName: c.RefreshCookieName,
		AuthEndpoints:     c.AuthEndpoints,
		OnSessionEnded:    onSessionEnded,
	}
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// durationFromEnv reads a duration such as "30s"; a bare number is taken as seconds.
func durationFromEnv(name string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn().Str("var", name).Str("value", v).Msg("Ignoring invalid duration")
	return defaultVal
}

func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Warn().Str("var", name).Str("value", v).Msg("Ignoring invalid integer")
	}
	return defaultVal
}

func floatFromEnv(name string, defaultVal float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("var", name).Str("value", v).Msg("Ignoring invalid number")
	}
	return defaultVal
}

// parseCSV splits a comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
