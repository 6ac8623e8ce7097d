package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"whatsbot/internal/constants"
	"whatsbot/internal/models"
	"whatsbot/internal/retry"
	"whatsbot/internal/security"
	"whatsbot/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	ErrMissingDBPath    = models.ConfigError{Message: "missing database path"}
	ErrMissingStorePath = models.ConfigError{Message: "missing WhatsApp device store path"}
	ErrSamePaths        = models.ConfigError{Message: "database path and WhatsApp device store path must differ"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.WhatsApp.SessionName == "" {
		c.WhatsApp.SessionName = constants.DefaultSessionName
	}
	if c.WhatsApp.StorePath == "" {
		c.WhatsApp.StorePath = constants.DefaultDeviceStorePath
	}
	if c.WhatsApp.DialTimeoutSec <= 0 {
		c.WhatsApp.DialTimeoutSec = constants.DefaultDialTimeoutSec
	}
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}

	if c.Reconnect.Policy == "" {
		c.Reconnect.Policy = constants.DefaultReconnectPolicy
	}
	if c.Reconnect.InitialBackoffMs <= 0 {
		c.Reconnect.InitialBackoffMs = constants.DefaultReconnectInitialMs
	}
	if c.Reconnect.MaxBackoffMs <= 0 {
		c.Reconnect.MaxBackoffMs = constants.DefaultReconnectMaxMs
	}
	if c.Reconnect.Multiplier <= 0 {
		c.Reconnect.Multiplier = constants.DefaultReconnectMultiplier
	}

	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.GracefulShutdownSec <= 0 {
		c.Server.GracefulShutdownSec = constants.DefaultGracefulShutdownSec
	}

	defaults := tracing.DefaultTracingConfig()
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.ServiceName
	}
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = defaults.ServiceVersion
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = defaults.Environment
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = defaults.OTLPEndpoint
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.SampleRate
	}
	if c.Tracing.ShutdownTimeoutSec == 0 {
		c.Tracing.ShutdownTimeoutSec = defaults.ShutdownTimeoutSec
	}

	if c.LogLevel == "" {
		c.LogLevel = logrus.InfoLevel.String()
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("WHATSBOT_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if path := os.Getenv("WHATSBOT_STORE_PATH"); path != "" {
		c.WhatsApp.StorePath = path
	}
	if raw := os.Getenv("WHATSBOT_ENABLE_INCOMPLETE"); raw != "" {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			c.WhatsApp.EnableIncomplete = enabled
		}
	}
	if level := os.Getenv("WHATSBOT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.WhatsApp.StorePath == "" {
		return ErrMissingStorePath
	}
	if err := security.ValidateFilePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}
	if err := security.ValidateFilePath(c.WhatsApp.StorePath); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid WhatsApp device store path: %v", err)}
	}
	// whatsmeow migrates its own schema into the store file
	if c.Database.Path == c.WhatsApp.StorePath {
		return ErrSamePaths
	}

	switch c.Reconnect.Policy {
	case "immediate", "backoff":
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown reconnect policy: %s", c.Reconnect.Policy)}
	}
	if c.Reconnect.MaxAttempts < 0 {
		return models.ConfigError{Message: "reconnect maxAttempts must not be negative"}
	}
	if c.Reconnect.MaxBackoffMs < c.Reconnect.InitialBackoffMs {
		return models.ConfigError{Message: "reconnect maxBackoffMs must not be below initialBackoffMs"}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port: %d", c.Server.Port)}
	}

	if err := c.Tracing.Validate(); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid tracing configuration: %v", err)}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log level: %s", c.LogLevel)}
	}
	return nil
}

// ReconnectBackoff converts the reconnect section into a backoff
// configuration. MaxAttempts 0 keeps retrying forever.
func ReconnectBackoff(c models.ReconnectConfig) retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialDelay: time.Duration(c.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(c.MaxBackoffMs) * time.Millisecond,
		Multiplier:   c.Multiplier,
		MaxAttempts:  c.MaxAttempts,
		Jitter:       true,
	}
}
