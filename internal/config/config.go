package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort       = "18920"
	DefaultBackendURL = "https://cacviun-backend.onrender.com"
	DefaultPageSize   = 15
	DefaultTopN       = 5
)

type Config struct {
	Port           string
	PublicURL      string
	BackendURL     string
	DBPath         string
	AuditDBPath    string
	PageSize       int
	TopN           int
	EmailDomain    string
	BackendTimeout time.Duration
	SecureCookies  bool
	ViewCacheTTL   time.Duration
	OTLPEndpoint   string
	MetricsEnabled bool
	LogLevel       string
	LogFormat      string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// LoadFile is Load with an explicit .env path.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	dataDir := defaultDataDir()
	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		PublicURL:      getEnv("SERVER_PUBLIC_URL", ""),
		BackendURL:     strings.TrimRight(getEnv("CACVIUN_BACKEND_URL", DefaultBackendURL), "/"),
		DBPath:         getEnv("CACVIUN_DB_PATH", filepath.Join(dataDir, "cacviun", "sessions.db")),
		AuditDBPath:    getEnv("CACVIUN_AUDIT_DB_PATH", filepath.Join(dataDir, "cacviun", "audit.db")),
		PageSize:       getEnvAsInt("CACVIUN_PAGE_SIZE", DefaultPageSize),
		TopN:           getEnvAsInt("CACVIUN_TOP_N", DefaultTopN),
		EmailDomain:    getEnv("CACVIUN_EMAIL_DOMAIN", "unal.edu.co"),
		BackendTimeout: time.Duration(getEnvAsInt("BACKEND_TIMEOUT", 30)) * time.Second,
		SecureCookies:  getEnvAsBool("SECURE_COOKIES", false),
		ViewCacheTTL:   time.Duration(getEnvAsInt("VIEW_CACHE_TTL", 300)) * time.Second,
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.TopN < 1 {
		cfg.TopN = DefaultTopN
	}
	return cfg
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

// defaultDataDir follows XDG_DATA_HOME, falling back to ~/.local/share.
func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
