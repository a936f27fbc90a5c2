package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds feature-store database configuration. SQLite is the
// embedded default; Postgres is available for deployments that outgrow a
// single file.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite" or "postgres"
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the connection string for the configured driver
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// UpstreamConfig holds the upstream analytical store connection and the
// snapshot query the ingestion pipeline runs against it
type UpstreamConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	Query        string `mapstructure:"query"`
	EntityColumn string `mapstructure:"entity_column"`
}

// DSN returns the connection string for the configured driver
func (c *UpstreamConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// AccessLogConfig holds access-log sink configuration
type AccessLogConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	RecentWindow time.Duration `mapstructure:"recent_window"`
}

// StatsConfig holds statistics engine configuration
type StatsConfig struct {
	WorkerPoolSize int `mapstructure:"worker_pool_size"`
}

// ReportsConfig holds report generation configuration
type ReportsConfig struct {
	Dir string `mapstructure:"dir"`
}

// FeatureSpec declares a single feature to register at bootstrap
type FeatureSpec struct {
	Name         string   `mapstructure:"name"`
	Description  string   `mapstructure:"description"`
	Type         string   `mapstructure:"type"`
	Version      string   `mapstructure:"version"`
	SourceColumn string   `mapstructure:"source_column"`
	Tags         []string `mapstructure:"tags"`
}

// GroupSpec declares a feature group and its features
type GroupSpec struct {
	Description string        `mapstructure:"description"`
	SourceTable string        `mapstructure:"source_table"`
	Features    []FeatureSpec `mapstructure:"features"`
}

// APIConfig holds configuration for the serving API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig    `mapstructure:"server"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Auth       AuthConfig      `mapstructure:"auth"`
	AccessLog  AccessLogConfig `mapstructure:"access_log"`

	// Upstream and Features let the refresh endpoint run an ingestion pass
	// in-process. Refresh is disabled when no upstream query is configured.
	Upstream UpstreamConfig       `mapstructure:"upstream"`
	Features map[string]GroupSpec `mapstructure:"features"`
}

// IngesterConfig holds configuration for the ingestion pipeline
type IngesterConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig       `mapstructure:"database"`
	Upstream   UpstreamConfig       `mapstructure:"upstream"`
	Stats      StatsConfig          `mapstructure:"stats"`
	Reports    ReportsConfig        `mapstructure:"reports"`
	Features   map[string]GroupSpec `mapstructure:"features"`
}

// LoadAPIConfig loads configuration for the serving API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/feature_store.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("access_log.queue_size", 1024)
	v.SetDefault("access_log.recent_window", "24h")
	v.SetDefault("upstream.driver", "sqlite")
	v.SetDefault("upstream.port", 5432)
	v.SetDefault("upstream.sslmode", "disable")
	v.SetDefault("upstream.entity_column", "entity_id")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadIngesterConfig loads configuration for the ingestion pipeline
func LoadIngesterConfig(configFile string, envPath string) (*IngesterConfig, error) {
	v := configureViper("ingester", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/feature_store.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("upstream.driver", "sqlite")
	v.SetDefault("upstream.port", 5432)
	v.SetDefault("upstream.sslmode", "disable")
	v.SetDefault("upstream.entity_column", "entity_id")
	v.SetDefault("stats.worker_pool_size", 4)
	v.SetDefault("reports.dir", "reports")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config IngesterConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/api/, cmd/ingester/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("FEATURE_STORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables.
// Required for viper to map env vars to config struct fields when no config
// file exists.
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.driver",
		"database.path",
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Upstream
		"upstream.driver",
		"upstream.path",
		"upstream.host",
		"upstream.port",
		"upstream.user",
		"upstream.password",
		"upstream.dbname",
		"upstream.sslmode",
		"upstream.query",
		"upstream.entity_column",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.api_keys",
		// Access log
		"access_log.queue_size",
		"access_log.recent_window",
		// Statistics
		"stats.worker_pool_size",
		// Reports
		"reports.dir",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}
