package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskhub.yaml"

// Load reads DefaultConfigFile (optional) and the environment.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom applies defaults < YAML < ENV. A missing YAML file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	if cfg.Keycloak.IssuerBaseURL == "" {
		cfg.Keycloak.IssuerBaseURL = cfg.Keycloak.BaseURL
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables. Only non-empty values override.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "TASKHUB_ADDR")
	setString(&cfg.Server.AdminToken, "TASKHUB_ADMIN_TOKEN")
	setList(&cfg.Server.CORSOrigins, "TASKHUB_CORS_ORIGINS")
	setList(&cfg.Server.TrustedProxies, "TASKHUB_TRUSTED_PROXIES")
	setDuration(&cfg.Server.RequestTimeout, "TASKHUB_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "TASKHUB_SHUTDOWN_TIMEOUT")

	setString(&cfg.Database.DSN, "DATABASE_URL")
	setInt32(&cfg.Database.MaxConns, "TASKHUB_PG_MAX_CONNS")
	setInt32(&cfg.Database.MinConns, "TASKHUB_PG_MIN_CONNS")
	setBool(&cfg.Database.AutoMigrate, "TASKHUB_AUTO_MIGRATE")

	setString(&cfg.Keycloak.BaseURL, "KEYCLOAK_URL")
	setString(&cfg.Keycloak.IssuerBaseURL, "KEYCLOAK_PUBLIC_URL")
	setString(&cfg.Keycloak.AdminRealm, "KEYCLOAK_ADMIN_REALM")
	setString(&cfg.Keycloak.AdminUser, "KEYCLOAK_ADMIN_USER")
	setString(&cfg.Keycloak.AdminPassword, "KEYCLOAK_ADMIN_PASSWORD")
	setString(&cfg.Keycloak.Audience, "KEYCLOAK_AUDIENCE")
	setString(&cfg.Keycloak.AppClientID, "KEYCLOAK_APP_CLIENT_ID")
	setList(&cfg.Keycloak.AppRedirectURIs, "KEYCLOAK_APP_REDIRECT_URIS")
	setList(&cfg.Keycloak.AppWebOrigins, "KEYCLOAK_APP_WEB_ORIGINS")

	setList(&cfg.Tenant.PublicSettings, "TASKHUB_PUBLIC_SETTINGS")
	setDuration(&cfg.Tenant.RealmCacheTTL, "TASKHUB_REALM_CACHE_TTL")
	setDuration(&cfg.Tenant.StepTimeout, "TASKHUB_PROVISION_STEP_TIMEOUT")

	setInt(&cfg.Audit.AsyncBuffer, "TASKHUB_AUDIT_ASYNC_BUFFER")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setList(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	setString(&cfg.Kafka.Topic, "KAFKA_AUDIT_TOPIC")

	setString(&cfg.Log.Level, "TASKHUB_LOG_LEVEL")
}

// MaxRealmCacheTTL bounds how stale a replica's view of tenant status may be.
const MaxRealmCacheTTL = time.Minute

func validate(cfg *Config) error {
	var errs []error
	if cfg.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if cfg.Database.MinConns > cfg.Database.MaxConns {
		errs = append(errs, errors.New("database.min_conns exceeds max_conns"))
	}
	if cfg.Keycloak.BaseURL == "" {
		errs = append(errs, errors.New("keycloak.base_url is required"))
	}
	if cfg.Keycloak.AppClientID == "" {
		errs = append(errs, errors.New("keycloak.app_client_id is required"))
	}
	if cfg.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	// Other replicas admit a suspended tenant until their cached entry expires.
	if cfg.Tenant.RealmCacheTTL <= 0 || cfg.Tenant.RealmCacheTTL > MaxRealmCacheTTL {
		errs = append(errs, fmt.Errorf("tenant.realm_cache_ttl must be positive and at most %s", MaxRealmCacheTTL))
	}
	if cfg.Tenant.StepTimeout <= 0 {
		errs = append(errs, errors.New("tenant.step_timeout must be positive"))
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
