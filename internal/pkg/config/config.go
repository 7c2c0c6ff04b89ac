package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Trip      TripConfig      `mapstructure:"trip"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Objects   ObjectConfig    `mapstructure:"objectstore"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// ValkeyConfig addresses the durable trip store. An empty Addr selects the
// in-process store.
type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// RoutingConfig configures the directions backend.
type RoutingConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxWaypoints   int     `mapstructure:"max_waypoints"`
	Mode           string  `mapstructure:"mode"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// Timeout is the routing ceiling as a duration.
func (r RoutingConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

type TripConfig struct {
	MaxStops          int    `mapstructure:"max_stops"`
	StorageKey        string `mapstructure:"storage_key"`
	StorageTTLSeconds int    `mapstructure:"storage_ttl_seconds"`
	MaxRecordBytes    int    `mapstructure:"max_record_bytes"`
	ShareBaseURL      string `mapstructure:"share_base_url"`
	IdleMinutes       int    `mapstructure:"idle_minutes"`
}

type CatalogConfig struct {
	Categories      []string `mapstructure:"categories"`
	CacheTTLSeconds int      `mapstructure:"cache_ttl_seconds"`
}

// KafkaConfig mirrors trip events to a topic. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ObjectConfig addresses the S3-compatible store catalog imports read from.
type ObjectConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 35)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "shoptrip")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "shoptrip")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("routing.base_url", "http://localhost:8090/directions")
	v.SetDefault("routing.api_key", "")
	v.SetDefault("routing.timeout_seconds", 30)
	v.SetDefault("routing.max_waypoints", 25)
	v.SetDefault("routing.mode", "DRIVING")
	v.SetDefault("routing.rate_per_second", 0)
	v.SetDefault("routing.burst", 5)
	v.SetDefault("trip.max_stops", 10)
	v.SetDefault("trip.storage_key", "trip_planner_stops")
	v.SetDefault("trip.storage_ttl_seconds", 0)
	v.SetDefault("trip.max_record_bytes", 5*1024*1024)
	v.SetDefault("trip.share_base_url", "")
	v.SetDefault("trip.idle_minutes", 30)
	v.SetDefault("catalog.categories", []string{})
	v.SetDefault("catalog.cache_ttl_seconds", 300)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "shoptrip.trip-events")
	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.access_key", "")
	v.SetDefault("objectstore.secret_key", "")
	v.SetDefault("objectstore.use_ssl", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: SHOPTRIP_ROUTING_API_KEY → routing.api_key
	v.SetEnvPrefix("SHOPTRIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var travelModes = map[string]bool{"DRIVING": true, "WALKING": true, "BICYCLING": true}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Routing.BaseURL == "" {
		errs = append(errs, "routing.base_url is required")
	}
	if c.Routing.TimeoutSeconds <= 0 {
		errs = append(errs, "routing.timeout_seconds must be positive")
	}
	if c.Routing.MaxWaypoints <= 0 {
		errs = append(errs, "routing.max_waypoints must be positive")
	}
	if !travelModes[strings.ToUpper(c.Routing.Mode)] {
		errs = append(errs, fmt.Sprintf("routing.mode must be DRIVING, WALKING or BICYCLING, got %q", c.Routing.Mode))
	}
	if c.Routing.RatePerSecond < 0 {
		errs = append(errs, "routing.rate_per_second must not be negative")
	}
	if c.Routing.RatePerSecond > 0 && c.Routing.Burst < 1 {
		errs = append(errs, "routing.burst must be at least 1 when rate limiting")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, "kafka.topic is required when kafka.brokers is set")
	}
	if c.Trip.MaxStops <= 0 {
		errs = append(errs, "trip.max_stops must be positive")
	}
	if c.Trip.MaxStops > c.Routing.MaxWaypoints {
		errs = append(errs, fmt.Sprintf("trip.max_stops (%d) exceeds routing.max_waypoints (%d)", c.Trip.MaxStops, c.Routing.MaxWaypoints))
	}
	if c.Trip.StorageKey == "" {
		errs = append(errs, "trip.storage_key is required")
	}
	if c.Trip.StorageTTLSeconds < 0 {
		errs = append(errs, "trip.storage_ttl_seconds must not be negative")
	}
	if c.Catalog.CacheTTLSeconds < 0 {
		errs = append(errs, "catalog.cache_ttl_seconds must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
