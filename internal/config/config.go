package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all client configuration
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Socket SocketConfig `mapstructure:"socket"`
	Chat   ChatConfig   `mapstructure:"chat"`
}

// APIConfig holds HTTP API configuration
type APIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SocketConfig holds real-time connection configuration
type SocketConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
}

// ChatConfig holds chat behavior configuration
type ChatConfig struct {
	PageSize       int `mapstructure:"page_size"`
	EventQueueSize int `mapstructure:"event_queue_size"`
}

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("carechat")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a config with all defaults applied, for use when no
// config file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with defaults
func (cfg *Config) ApplyDefaults() {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8080"
	}
	if cfg.API.DialTimeout == 0 {
		cfg.API.DialTimeout = 10 * time.Second
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = 30 * time.Second
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = 30 * time.Second
	}
	if cfg.Socket.URL == "" {
		cfg.Socket.URL = "ws://localhost:8080/ws"
	}
	if cfg.Socket.HandshakeTimeout == 0 {
		cfg.Socket.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Socket.WriteWait == 0 {
		cfg.Socket.WriteWait = 10 * time.Second
	}
	if cfg.Socket.PongWait == 0 {
		cfg.Socket.PongWait = 30 * time.Second
	}
	if cfg.Socket.PingPeriod == 0 {
		cfg.Socket.PingPeriod = 27 * time.Second
	}
	if cfg.Socket.MaxMessageSize == 0 {
		cfg.Socket.MaxMessageSize = 51200
	}
	if cfg.Socket.WriteChannelSize == 0 {
		cfg.Socket.WriteChannelSize = 256
	}
	if cfg.Socket.PollInterval == 0 {
		cfg.Socket.PollInterval = 5 * time.Second
	}
	if cfg.Chat.PageSize == 0 {
		cfg.Chat.PageSize = 30
	}
	if cfg.Chat.EventQueueSize == 0 {
		cfg.Chat.EventQueueSize = 128
	}
}
