package models

import (
	"time"

	"whatsbot/internal/tracing"
)

// Config holds the application configuration
type Config struct {
	WhatsApp  WhatsAppConfig        `json:"whatsapp"`
	Database  DatabaseConfig        `json:"database"`
	Reconnect ReconnectConfig       `json:"reconnect"`
	Server    ServerConfig          `json:"server"`
	Tracing   tracing.TracingConfig `json:"tracing"`
	LogLevel  string                `json:"log_level"`
}

// WhatsAppConfig holds the adapter and device store settings
type WhatsAppConfig struct {
	StorePath        string `json:"store_path"`
	SessionName      string `json:"session_name"`
	EnableIncomplete bool   `json:"enable_incomplete"`
	PrintQR          bool   `json:"print_qr"`
	DialTimeoutSec   int    `json:"dial_timeout_sec"`
}

// DialTimeout returns the dial timeout as a duration
func (w WhatsAppConfig) DialTimeout() time.Duration {
	return time.Duration(w.DialTimeoutSec) * time.Second
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ReconnectConfig selects how the supervisor restarts a dropped session.
// Policy is "immediate" or "backoff"; the other fields only apply to backoff.
type ReconnectConfig struct {
	Policy           string  `json:"policy"`
	InitialBackoffMs int     `json:"initialBackoffMs"`
	MaxBackoffMs     int     `json:"maxBackoffMs"`
	Multiplier       float64 `json:"multiplier"`
	MaxAttempts      int     `json:"maxAttempts"`
}

// ServerConfig holds the status server settings. Port 0 disables it.
type ServerConfig struct {
	Port                int `json:"port"`
	ReadTimeoutSec      int `json:"read_timeout_sec"`
	WriteTimeoutSec     int `json:"write_timeout_sec"`
	IdleTimeoutSec      int `json:"idle_timeout_sec"`
	GracefulShutdownSec int `json:"graceful_shutdown_sec"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
