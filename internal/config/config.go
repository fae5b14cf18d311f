// Package config manages relay server settings with file and environment
// sources layered over production defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all relay server settings.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Log       *LogConfig       `json:"log"`
}

// DatabaseConfig controls the SQLite store.
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig controls the relay's HTTP listener.
type HTTPConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// WebSocketConfig controls subscriber connections.
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns production-ready defaults: local SQLite file, port
// 8080, 30 second heartbeat.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./studysync.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json")
	}

	return nil
}

// LoadFromEnv overlays STUDYSYNC_* environment variables on the defaults.
// Malformed values are ignored and the default stands.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("STUDYSYNC_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("STUDYSYNC_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if timeout := os.Getenv("STUDYSYNC_HTTP_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("STUDYSYNC_HTTP_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}

	if path := os.Getenv("STUDYSYNC_DATABASE_PATH"); path != "" {
		config.Database.Path = path
	}
	if timeout := os.Getenv("STUDYSYNC_DATABASE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Database.Timeout = d
		}
	}

	if interval := os.Getenv("STUDYSYNC_WEBSOCKET_PING_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if timeout := os.Getenv("STUDYSYNC_WEBSOCKET_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("STUDYSYNC_WEBSOCKET_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}
	if size := os.Getenv("STUDYSYNC_WEBSOCKET_BUFFER_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			config.WebSocket.BufferSize = n
		}
	}

	if level := os.Getenv("STUDYSYNC_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if format := os.Getenv("STUDYSYNC_LOG_FORMAT"); format != "" {
		config.Log.Format = format
	}

	return config
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	HTTP *struct {
		Port         int    `json:"port"`
		Host         string `json:"host"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
	Log *struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"log"`
}

// LoadFromFile overlays a JSON config file on the defaults. Durations are
// written as strings ("30s", "1m").
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		if file.Database.Timeout != "" {
			d, err := time.ParseDuration(file.Database.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid database timeout: %w", err)
			}
			config.Database.Timeout = d
		}
	}

	if file.HTTP != nil {
		if file.HTTP.Port != 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.ReadTimeout != "" {
			d, err := time.ParseDuration(file.HTTP.ReadTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid HTTP read timeout: %w", err)
			}
			config.HTTP.ReadTimeout = d
		}
		if file.HTTP.WriteTimeout != "" {
			d, err := time.ParseDuration(file.HTTP.WriteTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid HTTP write timeout: %w", err)
			}
			config.HTTP.WriteTimeout = d
		}
	}

	if file.WebSocket != nil {
		if file.WebSocket.PingInterval != "" {
			d, err := time.ParseDuration(file.WebSocket.PingInterval)
			if err != nil {
				return nil, fmt.Errorf("invalid WebSocket ping interval: %w", err)
			}
			config.WebSocket.PingInterval = d
		}
		if file.WebSocket.ReadTimeout != "" {
			d, err := time.ParseDuration(file.WebSocket.ReadTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid WebSocket read timeout: %w", err)
			}
			config.WebSocket.ReadTimeout = d
		}
		if file.WebSocket.WriteTimeout != "" {
			d, err := time.ParseDuration(file.WebSocket.WriteTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid WebSocket write timeout: %w", err)
			}
			config.WebSocket.WriteTimeout = d
		}
		if file.WebSocket.BufferSize != 0 {
			config.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
	}

	if file.Log != nil {
		if file.Log.Level != "" {
			config.Log.Level = file.Log.Level
		}
		if file.Log.Format != "" {
			config.Log.Format = file.Log.Format
		}
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves the effective configuration. A file
// named by STUDYSYNC_CONFIG_FILE wins over plain environment variables,
// which win over defaults.
func LoadConfigWithPrecedence() (*Config, error) {
	if path := os.Getenv("STUDYSYNC_CONFIG_FILE"); path != "" {
		config, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
		return config, nil
	}

	config := LoadFromEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
