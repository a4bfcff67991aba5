package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// EDGEVIEW_FILTER_LOW_THRESHOLD.
const EnvPrefix = "EDGEVIEW"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

type ServerConfig struct {
	// HTTP/1.1 listener, always on
	HTTPPort int `mapstructure:"http_port"`

	// HTTP/3 listener, needs TLS
	EnableHTTP3     bool          `mapstructure:"enable_http3"`
	HTTP3Port       int           `mapstructure:"http3_port"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// QUIC specific
	MaxIncomingStreams    int64         `mapstructure:"max_incoming_streams"`
	MaxIncomingUniStreams int64         `mapstructure:"max_incoming_uni_streams"`
	MaxIdleTimeout        time.Duration `mapstructure:"max_idle_timeout"`

	MaxBodyBytes   int64 `mapstructure:"max_body_bytes"`
	DebugEndpoints bool  `mapstructure:"debug_endpoints"`
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type FilterConfig struct {
	LowThreshold  int    `mapstructure:"low_threshold"`
	HighThreshold int    `mapstructure:"high_threshold"`
	OutputLayout  string `mapstructure:"output_layout"` // abgr, bgra or rgba
	Engine        string `mapstructure:"engine"`        // go, or opencv with the gocv build tag
	MaxWidth      int    `mapstructure:"max_width"`
	MaxHeight     int    `mapstructure:"max_height"`
}

// MaxPixels is the largest width*height a frame may have.
func (c *FilterConfig) MaxPixels() int {
	return c.MaxWidth * c.MaxHeight
}

// MaxFrameBytes is the size of the largest accepted RGBA frame.
func (c *FilterConfig) MaxFrameBytes() int64 {
	return int64(c.MaxPixels()) * 4
}

type MemoryConfig struct {
	MaxTotal      int64 `mapstructure:"max_total"`       // bytes across all sessions
	MaxPerSession int64 `mapstructure:"max_per_session"` // bytes per session or request
}

type StreamConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxFrameRate      float64       `mapstructure:"max_frame_rate"` // frames per second per session
	Burst             int           `mapstructure:"burst"`
	AllowCompression  bool          `mapstructure:"allow_compression"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`

	MaxSessions          int `mapstructure:"max_sessions"`            // 0 disables the limit
	MaxSessionsPerClient int `mapstructure:"max_sessions_per_client"` // keyed by remote host
}

// Load reads configuration from configPath, then applies EDGEVIEW_*
// environment overrides. An empty path loads defaults only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.enable_http3", false)
	v.SetDefault("server.http3_port", 8443)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_incoming_streams", 1000)
	v.SetDefault("server.max_incoming_uni_streams", 100)
	v.SetDefault("server.max_idle_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 64<<20) // 64MB
	v.SetDefault("server.debug_endpoints", false)

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// Filter defaults match the camera preview tuning
	v.SetDefault("filter.low_threshold", 50)
	v.SetDefault("filter.high_threshold", 150)
	v.SetDefault("filter.output_layout", "abgr")
	v.SetDefault("filter.engine", "go")
	v.SetDefault("filter.max_width", 3840)
	v.SetDefault("filter.max_height", 2160)

	// Memory defaults
	v.SetDefault("memory.max_total", 1<<30)         // 1GB
	v.SetDefault("memory.max_per_session", 128<<20) // 128MB

	// Stream defaults
	v.SetDefault("stream.enabled", true)
	v.SetDefault("stream.max_frame_rate", 30.0)
	v.SetDefault("stream.burst", 5)
	v.SetDefault("stream.allow_compression", true)
	v.SetDefault("stream.session_ttl", "30s")
	v.SetDefault("stream.heartbeat_interval", "5s")
	v.SetDefault("stream.ping_interval", "15s")
	v.SetDefault("stream.write_timeout", "5s")
	v.SetDefault("stream.max_sessions", 64)
	v.SetDefault("stream.max_sessions_per_client", 8)
}
