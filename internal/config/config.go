package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application. It is built once at
// startup and handed to the constructors that need it.
type Config struct {
	// Remote (GitHub contents API) storage
	AccessToken string
	Repository  string
	PathPrefix  string
	Branch      string
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Local and SQL storage
	DataDir     string
	DatabaseURL string
	StrictReads bool

	// Passwords and list sessions
	PasswordHash string
	TokenSecret  string
	TokenTTL     time.Duration

	// Serving
	Port              string
	AllowedOrigins    []string
	LogLevel          string
	LogFormat         string
	TelegramToken     string
	CommandTimeout    time.Duration
	ReconcileInterval time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// A missing .env file is normal outside of development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		AccessToken:  firstEnv("ACCESS_TOKEN", "GH_TOKEN"),
		Repository:   firstEnv("REPOSITORY", "GH_REPO"),
		PathPrefix:   strings.Trim(firstEnv("PATH_PREFIX", "GH_PATH"), "/"),
		Branch:       getEnvOrDefault("BRANCH", "main"),
		APIBaseURL:   strings.TrimRight(getEnvOrDefault("GITHUB_API_URL", "https://api.github.com"), "/"),
		DataDir:      getEnvOrDefault("DATA_DIR", "data"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		PasswordHash: strings.ToLower(getEnvOrDefault("PASSWORD_HASH", "sha256")),
		TokenSecret:  os.Getenv("TOKEN_SECRET"),
		Port:         getEnvOrDefault("PORT", "8080"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:    getEnvOrDefault("LOG_FORMAT", "text"),
	}
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "cloud-data"
	}

	origins := getEnvOrDefault("ALLOWED_ORIGINS", "*")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	var err error
	if cfg.StrictReads, err = getEnvBool("STRICT_READS", false); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getEnvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = getEnvDuration("TOKEN_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CommandTimeout, err = getEnvDuration("COMMAND_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getEnvDuration("RECONCILE_INTERVAL", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be corrected with a default.
func (c *Config) Validate() error {
	switch c.PasswordHash {
	case "sha256", "bcrypt":
	default:
		return fmt.Errorf("PASSWORD_HASH must be sha256 or bcrypt, got %q", c.PasswordHash)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Repository != "" && !strings.Contains(c.Repository, "/") {
		return fmt.Errorf("REPOSITORY must look like owner/name, got %q", c.Repository)
	}
	return nil
}

// IsRemoteConfigured reports whether both the remote credential and the target
// repository are present. It does no I/O.
func (c *Config) IsRemoteConfigured() bool {
	return c.AccessToken != "" && c.Repository != ""
}

// PartiallyRemote reports a half configured remote, which silently falls back
// to another backend and is worth a warning at startup.
func (c *Config) PartiallyRemote() bool {
	return (c.AccessToken == "") != (c.Repository == "")
}

// SessionsEnabled reports whether signed list session tokens can be issued.
func (c *Config) SessionsEnabled() bool {
	return c.TokenSecret != ""
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
