package config

import "time"

// Config holds client and development server configuration.
type Config struct {
	LogLevel string         `mapstructure:"log_level" yaml:"log_level"`
	Realtime RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// RealtimeConfig configures the live chat connection.
type RealtimeConfig struct {
	URL                  string        `mapstructure:"url" yaml:"url"`
	Token                string        `mapstructure:"token" yaml:"token"`
	UserID               int64         `mapstructure:"user_id" yaml:"user_id"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay" yaml:"reconnect_base_delay"`
	TypingQuietPeriod    time.Duration `mapstructure:"typing_quiet_period" yaml:"typing_quiet_period"`
}

// APIConfig configures the REST API used for history.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	HistoryPageSize int           `mapstructure:"history_page_size" yaml:"history_page_size"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// ServerConfig configures the development chat server.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	MessagesPerMinute int           `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Realtime: RealtimeConfig{
			URL:                  "ws://localhost:8080/ws",
			DialTimeout:          10 * time.Second,
			ConnectTimeout:       15 * time.Second,
			MaxReconnectAttempts: 5,
			ReconnectBaseDelay:   time.Second,
			TypingQuietPeriod:    time.Second,
		},
		API: APIConfig{
			BaseURL:         "http://localhost:8080",
			HistoryPageSize: 20,
			RequestTimeout:  15 * time.Second,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			DatabasePath:      "huddle-dev.db",
			JWTIssuer:         "huddle-dev",
			JWTAudience:       "huddle",
			TokenTTL:          24 * time.Hour,
			MessagesPerMinute: 120,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
	}
}
