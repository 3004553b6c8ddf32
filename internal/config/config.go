package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Verify     VerifyConfig     `yaml:"verify"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Web        WebConfig        `yaml:"web"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`         // postgres, mysql or sqlite
	URL          string `yaml:"url"`            // DSN; a file path for sqlite
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL          string        `yaml:"url"` // defaults to http://localhost:8000
	Model        string        `yaml:"model"`
	Dim          int           `yaml:"dim"`            // defaults to 128
	MaxImageSize int           `yaml:"max_image_size"` // longest side in pixels sent to the server
	Timeout      time.Duration `yaml:"timeout"`
}

type VerifyConfig struct {
	Tolerance float64 `yaml:"tolerance"` // maximum accepted Euclidean distance
}

type AttendanceConfig struct {
	Timeout time.Duration `yaml:"timeout"` // bound on one attendance request
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && !math.IsInf(f, 0) {
		return f
	}
	return defaultVal
}

// envDuration reads a positive duration such as "15s", falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated list.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the configuration embedded in defaults.yaml.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the embedded defaults overridden by environment variables.
func Load() *Config {
	d := Defaults()

	return &Config{
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", d.Database.Driver)),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Embedding: EmbeddingConfig{
			URL:          envString("EMBEDDING_URL", d.Embedding.URL),
			Model:        envString("EMBEDDING_MODEL", d.Embedding.Model),
			Dim:          envInt("EMBEDDING_DIM", d.Embedding.Dim),
			MaxImageSize: envInt("EMBEDDING_MAX_IMAGE_SIZE", d.Embedding.MaxImageSize),
			Timeout:      envDuration("EMBEDDING_TIMEOUT", d.Embedding.Timeout),
		},
		Verify: VerifyConfig{
			Tolerance: envFloat("VERIFY_TOLERANCE", d.Verify.Tolerance),
		},
		Attendance: AttendanceConfig{
			Timeout: envDuration("ATTENDANCE_TIMEOUT", d.Attendance.Timeout),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want postgres, mysql or sqlite)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	return nil
}
