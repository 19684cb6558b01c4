package config

import "time"

// Store drivers understood by the app wiring.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMongo  = "mongo"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	// WebSocket channel
	MaxMessageBytes      int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ClientBuffer         int      `mapstructure:"client_buffer" yaml:"client_buffer"`
	InboundRatePerMinute int      `mapstructure:"inbound_rate_per_minute" yaml:"inbound_rate_per_minute"`
	AllowedOrigins       []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// Persistence
	StoreDriver       string        `mapstructure:"store_driver" yaml:"store_driver"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	MongoURI          string        `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase     string        `mapstructure:"mongo_database" yaml:"mongo_database"`
	PersistTimeout    time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	NotifyConcurrency int           `mapstructure:"notify_concurrency" yaml:"notify_concurrency"`
	HistoryPageSize   int           `mapstructure:"history_page_size" yaml:"history_page_size"`

	// REST auth
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 ":5000",
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		LogLevel:             "info",
		LogFormat:            "console",
		MaxMessageBytes:      1 << 20,
		ClientBuffer:         32,
		InboundRatePerMinute: 600,
		StoreDriver:          StoreDriverSQLite,
		DatabasePath:         "groupsync.db",
		MongoDatabase:        "groupsync",
		PersistTimeout:       5 * time.Second,
		NotifyConcurrency:    8,
		HistoryPageSize:      50,
		JWTSecret:            "change-me",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.StoreDriver != "" {
		c.StoreDriver = other.StoreDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MongoURI != "" {
		c.MongoURI = other.MongoURI
	}
}
