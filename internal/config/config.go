package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	CatalogCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	BootstrapOwnerPassword string
	StoreTimezone          string
	SaleMaxAttempts        int
	SaleTimeoutSeconds     int
	OTLPEndpoint           string
	OTelStdout             bool
}

// source resolves a key from the process environment first and the optional
// POS_CONFIG_FILE overlay second.
type source struct {
	file map[string]string
}

// Load reads configuration from the environment. When POS_CONFIG_FILE names a
// YAML file of KEY: value pairs, those values fill keys the environment leaves
// unset.
func Load() (Config, error) {
	src := source{file: map[string]string{}}
	if path := strings.TrimSpace(os.Getenv("POS_CONFIG_FILE")); path != "" {
		values, err := readOverlay(path)
		if err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		src.file = values
	}

	cfg := Config{
		Port:                   src.get("PORT", "8080"),
		AllowedOrigin:          src.get("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            src.get("DATABASE_URL", ""),
		RedisAddr:              src.get("REDIS_ADDR", ""),
		RedisPassword:          src.get("REDIS_PASSWORD", ""),
		RedisDB:                src.getInt("REDIS_DB", 0, 0),
		CatalogCacheTTLSeconds: src.getInt("CATALOG_CACHE_TTL_SECONDS", 30, 1),
		AuthSecret:             strings.TrimSpace(src.get("AUTH_SECRET", "")),
		AccessTokenTTLMinutes:  src.getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		BootstrapOwnerPassword: src.get("BOOTSTRAP_OWNER_PASSWORD", ""),
		StoreTimezone:          src.get("STORE_TIMEZONE", "UTC"),
		SaleMaxAttempts:        src.getInt("SALE_MAX_ATTEMPTS", 3, 1),
		SaleTimeoutSeconds:     src.getInt("SALE_TIMEOUT_SECONDS", 10, 0),
		OTLPEndpoint:           src.get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelStdout:             src.getBool("OTEL_STDOUT", false),
	}

	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location is the store time zone used for invoice dates and date filters.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return nil, fmt.Errorf("STORE_TIMEZONE %q: %w", c.StoreTimezone, err)
	}
	return loc, nil
}

func (c Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) SaleTimeout() time.Duration {
	return time.Duration(c.SaleTimeoutSeconds) * time.Second
}

func readOverlay(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if value == nil {
			continue
		}
		values[strings.ToUpper(strings.TrimSpace(key))] = fmt.Sprint(value)
	}
	return values, nil
}

func (s source) get(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val, ok := s.file[key]; ok && val != "" {
		return val
	}
	return fallback
}

func (s source) getInt(key string, fallback int, min int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(s.get(key, strconv.Itoa(fallback))))
	if err != nil || parsed < min {
		return fallback
	}
	return parsed
}

func (s source) getBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(s.get(key, strconv.FormatBool(fallback))))
	if err != nil {
		return fallback
	}
	return parsed
}
