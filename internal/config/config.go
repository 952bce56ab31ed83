package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDetectionURL is the hosted face detection function.
	DefaultDetectionURL = "https://atlassian-forge-functions.azurewebsites.net/api/face/FaceDetect"
	// DefaultPropertyKey addresses the annotation record within a document.
	DefaultPropertyKey = "face-detect-data"
)

// Config holds the runtime settings of the service.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	DatabaseDriver  string        `yaml:"database_driver"` // postgres or sqlite
	DatabaseDSN     string        `yaml:"database_dsn"`
	RedisAddr       string        `yaml:"redis_addr"` // empty disables the record cache
	DetectionURL    string        `yaml:"detection_url"`
	JWTSecret       string        `yaml:"jwt_secret"`
	JWTAudience     string        `yaml:"jwt_audience"`
	AllowedOrigins  []string      `yaml:"cors_allowed_origins"`
	PropertyKey     string        `yaml:"property_key"`
	ModalTTL        time.Duration `yaml:"modal_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in settings used when nothing else is configured.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		DatabaseDriver:  "postgres",
		DatabaseDSN:     "host=postgres user=postgres password=postgres dbname=facedetect port=5432 sslmode=disable",
		RedisAddr:       "redis:6379",
		DetectionURL:    DefaultDetectionURL,
		JWTSecret:       "dev-secret",
		AllowedOrigins:  []string{"*"},
		PropertyKey:     DefaultPropertyKey,
		ModalTTL:        30 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and finally environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", cfg.DatabaseDriver))
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)
	if value, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.RedisAddr = strings.TrimSpace(value)
	}
	cfg.DetectionURL = getEnv("DETECTION_URL", cfg.DetectionURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTAudience = getEnv("JWT_AUDIENCE", cfg.JWTAudience)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	cfg.PropertyKey = getEnv("PROPERTY_KEY", cfg.PropertyKey)

	var err error
	if cfg.ModalTTL, err = getEnvDuration("MODAL_TTL", cfg.ModalTTL); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.DetectionURL == "" {
		return fmt.Errorf("DETECTION_URL must not be empty")
	}
	if c.PropertyKey == "" {
		return fmt.Errorf("PROPERTY_KEY must not be empty")
	}
	if c.ModalTTL <= 0 {
		return fmt.Errorf("MODAL_TTL must be positive, got %s", c.ModalTTL)
	}
	return nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
