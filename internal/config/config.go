// Package config provides Viper-based configuration loading for the tepache server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HTTPConfig holds API listener settings.
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// CORSOrigins lists the allowed browser origins. "*" allows any origin.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns the "host:port" listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// HealthConfig holds the gRPC health listener settings.
type HealthConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
func (h HealthConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.GRPCHost, h.GRPCPort)
}

// StoreConfig selects the Session Store implementation.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// BrokerConfig selects and configures the pub/sub channel.
type BrokerConfig struct {
	// Driver is "memory" or "redis".
	Driver        string `mapstructure:"driver"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	// ChannelPrefix namespaces topics on a shared Redis.
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// PresenceConfig holds the player presence settings.
type PresenceConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// NamesConfig holds the anonymous-name counter settings.
type NamesConfig struct {
	// Max is the counter ceiling; the counter wraps to 1 after it.
	Max int `mapstructure:"max"`
}

// FacadeConfig holds the broadcast coordinator settings.
type FacadeConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SMSConfig holds the SMS channel settings.
type SMSConfig struct {
	// IdentityKey keys the hash deriving user ids from phone numbers.
	IdentityKey string `mapstructure:"identity_key"`
}

// AuthConfig holds the identity resolver settings.
type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens. Empty selects the development
	// header resolver.
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// EventsConfig holds the optional Log mirror settings.
type EventsConfig struct {
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	// Endpoint is the OTLP HTTP collector URL. Empty disables export.
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Health   HealthConfig   `mapstructure:"health"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Presence PresenceConfig `mapstructure:"presence"`
	Names    NamesConfig    `mapstructure:"names"`
	Facade   FacadeConfig   `mapstructure:"facade"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Events   EventsConfig   `mapstructure:"events"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	add(validateListener("http", c.HTTP.Host, c.HTTP.Port))
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 {
		errs = append(errs, "http timeouts must not be negative")
	}
	add(validateListener("health", c.Health.GRPCHost, c.Health.GRPCPort))

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		add(validateDatabase(c.Database))
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be one of [memory, postgres], got %q", c.Store.Driver))
	}

	switch c.Broker.Driver {
	case "memory":
	case "redis":
		if c.Broker.RedisAddr == "" {
			errs = append(errs, "broker.redis_addr must not be empty when broker.driver is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("broker.driver must be one of [memory, redis], got %q", c.Broker.Driver))
	}

	if c.Presence.StaleAfter <= 0 {
		errs = append(errs, fmt.Sprintf("presence.stale_after must be positive, got %s", c.Presence.StaleAfter))
	}
	if c.Names.Max < 1 {
		errs = append(errs, fmt.Sprintf("names.max must be >= 1, got %d", c.Names.Max))
	}
	if c.Facade.BufferSize < 1 {
		errs = append(errs, fmt.Sprintf("facade.buffer_size must be >= 1, got %d", c.Facade.BufferSize))
	}
	if c.Facade.WriteTimeout <= 0 {
		errs = append(errs, "facade.write_timeout must be positive")
	}
	if len(c.SMS.IdentityKey) > 64 {
		errs = append(errs, "sms.identity_key must be at most 64 bytes")
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		errs = append(errs, "events.kafka_topic must not be empty when kafka brokers are set")
	}
	add(validateLogging(c.Logging))

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateListener(section, host string, port int) error {
	var errs []string
	if host == "" {
		errs = append(errs, section+" host must not be empty")
	}
	if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("%s port must be 1-65535, got %d", section, port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from path when it is non-empty, applies
// TEPACHE_-prefixed environment overrides, and validates the result.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance carrying the defaults and environment bindings.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TEPACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent
// from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8484)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.cors_origins", []string{"*"})

	v.SetDefault("health.grpc_host", "0.0.0.0")
	v.SetDefault("health.grpc_port", 8485)

	v.SetDefault("store.driver", "memory")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tepache")
	v.SetDefault("database.password", "tepache")
	v.SetDefault("database.name", "tepache")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("broker.driver", "memory")
	v.SetDefault("broker.redis_addr", "localhost:6379")
	v.SetDefault("broker.redis_password", "")
	v.SetDefault("broker.redis_db", 0)
	v.SetDefault("broker.channel_prefix", "tepache")

	v.SetDefault("presence.stale_after", "30s")
	v.SetDefault("names.max", 1000)

	v.SetDefault("facade.buffer_size", 64)
	v.SetDefault("facade.write_timeout", "10s")

	v.SetDefault("sms.identity_key", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")

	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.kafka_topic", "tepache-logs")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "tepache")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
