// Package config loads server settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage driver names.
const (
	DriverFile     = "file"
	DriverBolt     = "bbolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all server configuration.
type Config struct {
	AdminUsername string
	AdminPassword string
	// BaseURL is the externally reachable address encoded into asset codes.
	BaseURL string
	Port    int
	DataDir string

	StorageDriver string
	PostgresDSN   string

	// AssetSessionTTL bounds asset verification sessions. Zero means they
	// last until the process exits.
	AssetSessionTTL time.Duration

	WebhookURL        string
	WebhookAuthHeader string

	TrustedProxies []string
	TLSCert        string
	TLSKey         string
	LogLevel       string
}

// Defaults.
const (
	DefaultPort     = 3000
	DefaultDataDir  = "./data"
	DefaultLogLevel = "info"
)

// Load reads the given .env files (".env" when none are named) into the
// environment without overriding variables already set, then builds a
// Config from the environment. Missing .env files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		AdminUsername:     getenv("ADMIN_USERNAME"),
		AdminPassword:     getenv("ADMIN_PASSWORD"),
		BaseURL:           strings.TrimRight(get("BASE_URL", ""), "/"),
		DataDir:           get("DATA_DIR", DefaultDataDir),
		StorageDriver:     strings.ToLower(get("STORAGE_DRIVER", DriverFile)),
		PostgresDSN:       get("POSTGRES_DSN", ""),
		WebhookURL:        get("WEBHOOK_URL", ""),
		WebhookAuthHeader: get("WEBHOOK_AUTH_HEADER", ""),
		TrustedProxies:    splitList(get("TRUSTED_PROXIES", "")),
		TLSCert:           get("TLS_CERT", ""),
		TLSKey:            get("TLS_KEY", ""),
		LogLevel:          strings.ToLower(get("LOG_LEVEL", DefaultLogLevel)),
	}

	port, err := strconv.Atoi(get("PORT", strconv.Itoa(DefaultPort)))
	if err != nil {
		return Config{}, fmt.Errorf("PORT: %w", err)
	}
	cfg.Port = port

	if v := get("ASSET_SESSION_TTL", ""); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("ASSET_SESSION_TTL: %w", err)
		}
		cfg.AssetSessionTTL = ttl
	}
	return cfg, nil
}

// Validate checks the settings needed to serve requests and fills in
// BaseURL when unset.
func (c *Config) Validate() error {
	var errs []error
	if c.AdminUsername == "" || c.AdminPassword == "" {
		errs = append(errs, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.StorageDriver {
	case DriverFile, DriverBolt, DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("TLS_CERT and TLS_KEY must be set together"))
	}
	if c.AssetSessionTTL < 0 {
		errs = append(errs, errors.New("asset session TTL must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if c.BaseURL == "" {
		scheme := "http"
		if c.TLSCert != "" {
			scheme = "https"
		}
		c.BaseURL = fmt.Sprintf("%s://localhost:%d", scheme, c.Port)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
