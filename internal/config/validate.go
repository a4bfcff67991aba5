package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("filter config: %w", err)
	}

	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	// A single full-size frame needs input plus output inside one session budget.
	if need := 2 * c.Filter.MaxFrameBytes(); c.Memory.MaxPerSession < need {
		return fmt.Errorf("memory.max_per_session (%d) must hold one max-size frame in and out (%d)",
			c.Memory.MaxPerSession, need)
	}

	if c.Metrics.Enabled && c.Metrics.Port == c.Server.HTTPPort {
		return fmt.Errorf("metrics port %d collides with server http_port", c.Metrics.Port)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}

	if s.EnableHTTP3 {
		if s.HTTP3Port < 1 || s.HTTP3Port > 65535 {
			return fmt.Errorf("invalid HTTP3 port: %d", s.HTTP3Port)
		}

		if !s.TLSEnabled() {
			return fmt.Errorf("HTTP/3 requires tls_cert_file and tls_key_file")
		}

		if s.MaxIncomingStreams <= 0 {
			return fmt.Errorf("max_incoming_streams must be positive")
		}

		if s.MaxIncomingUniStreams <= 0 {
			return fmt.Errorf("max_incoming_uni_streams must be positive")
		}
	}

	// Check if certificate files exist
	if s.TLSEnabled() {
		if _, err := os.Stat(s.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", s.TLSCertFile)
		}

		if _, err := os.Stat(s.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", s.TLSKeyFile)
		}
	}

	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

func (f *FilterConfig) Validate() error {
	if f.LowThreshold < 0 || f.HighThreshold < 0 {
		return fmt.Errorf("thresholds cannot be negative")
	}

	switch strings.ToLower(f.OutputLayout) {
	case "abgr", "bgra", "rgba":
	default:
		return fmt.Errorf("output_layout must be one of abgr, bgra, rgba: %q", f.OutputLayout)
	}

	if f.Engine == "" {
		return fmt.Errorf("engine cannot be empty")
	}

	if f.MaxWidth <= 0 || f.MaxHeight <= 0 {
		return fmt.Errorf("max_width and max_height must be positive")
	}

	if f.MaxWidth > 16384 || f.MaxHeight > 16384 {
		return fmt.Errorf("max frame size %dx%d exceeds 16384x16384", f.MaxWidth, f.MaxHeight)
	}

	return nil
}

func (m *MemoryConfig) Validate() error {
	if m.MaxTotal <= 0 {
		return fmt.Errorf("max_total must be positive")
	}

	if m.MaxPerSession <= 0 {
		return fmt.Errorf("max_per_session must be positive")
	}

	if m.MaxPerSession > m.MaxTotal {
		return fmt.Errorf("max_per_session (%d) cannot exceed max_total (%d)", m.MaxPerSession, m.MaxTotal)
	}

	return nil
}

func (s *StreamConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.MaxFrameRate <= 0 {
		return fmt.Errorf("max_frame_rate must be positive")
	}

	if s.Burst < 1 {
		return fmt.Errorf("burst must be at least 1")
	}

	if s.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}

	if s.HeartbeatInterval <= 0 || s.HeartbeatInterval >= s.SessionTTL {
		return fmt.Errorf("heartbeat_interval (%s) must be positive and shorter than session_ttl (%s)",
			s.HeartbeatInterval, s.SessionTTL)
	}

	if s.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive")
	}

	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	if s.MaxSessions < 0 || s.MaxSessionsPerClient < 0 {
		return fmt.Errorf("session limits cannot be negative")
	}

	return nil
}
