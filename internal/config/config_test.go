package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"whatsbot/internal/constants"
	"whatsbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	validConfig := `{
		"whatsapp": {
			"store_path": "/var/lib/whatsbot/device.db",
			"session_name": "support",
			"print_qr": true
		},
		"database": {
			"path": "/var/lib/whatsbot/auth.db"
		},
		"reconnect": {
			"policy": "backoff",
			"initialBackoffMs": 1000,
			"maxBackoffMs": 5000,
			"maxAttempts": 3
		},
		"server": {
			"port": 9000
		},
		"log_level": "debug"
	}`

	tests := []struct {
		name      string
		content   string
		setEnv    map[string]string
		wantError string
		validate  func(*testing.T, *models.Config)
	}{
		{
			name:    "valid config",
			content: validConfig,
			validate: func(t *testing.T, config *models.Config) {
				assert.Equal(t, "/var/lib/whatsbot/device.db", config.WhatsApp.StorePath)
				assert.Equal(t, "support", config.WhatsApp.SessionName)
				assert.True(t, config.WhatsApp.PrintQR)
				assert.False(t, config.WhatsApp.EnableIncomplete)
				assert.Equal(t, "/var/lib/whatsbot/auth.db", config.Database.Path)
				assert.Equal(t, "backoff", config.Reconnect.Policy)
				assert.Equal(t, 3, config.Reconnect.MaxAttempts)
				assert.Equal(t, constants.DefaultReconnectMultiplier, config.Reconnect.Multiplier)
				assert.Equal(t, 9000, config.Server.Port)
				assert.Equal(t, "debug", config.LogLevel)
			},
		},
		{
			name:    "empty config uses defaults",
			content: `{}`,
			validate: func(t *testing.T, config *models.Config) {
				assert.Equal(t, constants.DefaultSessionName, config.WhatsApp.SessionName)
				assert.Equal(t, constants.DefaultDeviceStorePath, config.WhatsApp.StorePath)
				assert.Equal(t, constants.DefaultDatabasePath, config.Database.Path)
				assert.Equal(t, "immediate", config.Reconnect.Policy)
				assert.Equal(t, 0, config.Server.Port)
				assert.Equal(t, "info", config.LogLevel)
				assert.Equal(t, "whatsbot", config.Tracing.ServiceName)
				assert.False(t, config.Tracing.Enabled)
			},
		},
		{
			name:    "environment overrides",
			content: validConfig,
			setEnv: map[string]string{
				"WHATSBOT_DB_PATH":           "/tmp/override-auth.db",
				"WHATSBOT_STORE_PATH":        "/tmp/override-device.db",
				"WHATSBOT_ENABLE_INCOMPLETE": "true",
				"WHATSBOT_LOG_LEVEL":         "warn",
			},
			validate: func(t *testing.T, config *models.Config) {
				assert.Equal(t, "/tmp/override-auth.db", config.Database.Path)
				assert.Equal(t, "/tmp/override-device.db", config.WhatsApp.StorePath)
				assert.True(t, config.WhatsApp.EnableIncomplete)
				assert.Equal(t, "warn", config.LogLevel)
			},
		},
		{
			name:    "unparsable incomplete flag is ignored",
			content: `{}`,
			setEnv:  map[string]string{"WHATSBOT_ENABLE_INCOMPLETE": "sure"},
			validate: func(t *testing.T, config *models.Config) {
				assert.False(t, config.WhatsApp.EnableIncomplete)
			},
		},
		{
			name:      "invalid json",
			content:   `{"whatsapp": `,
			wantError: "unexpected end of JSON input",
		},
		{
			name:      "unknown reconnect policy",
			content:   `{"reconnect": {"policy": "linear"}}`,
			wantError: "unknown reconnect policy: linear",
		},
		{
			name:      "negative max attempts",
			content:   `{"reconnect": {"maxAttempts": -1}}`,
			wantError: "maxAttempts must not be negative",
		},
		{
			name:      "backoff bounds inverted",
			content:   `{"reconnect": {"initialBackoffMs": 5000, "maxBackoffMs": 100}}`,
			wantError: "maxBackoffMs must not be below initialBackoffMs",
		},
		{
			name:      "shared store and database",
			content:   `{"whatsapp": {"store_path": "same.db"}, "database": {"path": "same.db"}}`,
			wantError: ErrSamePaths.Message,
		},
		{
			name:      "traversal in database path",
			content:   `{"database": {"path": "../../etc/auth.db"}}`,
			wantError: "invalid database path",
		},
		{
			name:      "invalid port",
			content:   `{"server": {"port": 70000}}`,
			wantError: "invalid server port: 70000",
		},
		{
			name:      "invalid log level",
			content:   `{"log_level": "loud"}`,
			wantError: "invalid log level: loud",
		},
		{
			name:      "invalid tracing",
			content:   `{"tracing": {"enabled": true, "sample_rate": 2}}`,
			wantError: "invalid tracing configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"WHATSBOT_DB_PATH", "WHATSBOT_STORE_PATH", "WHATSBOT_ENABLE_INCOMPLETE", "WHATSBOT_LOG_LEVEL"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.setEnv {
				t.Setenv(k, v)
			}

			config, err := LoadConfig(writeConfig(t, tt.content))
			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
				return
			}
			require.NoError(t, err)
			tt.validate(t, config)
		})
	}
}

func TestLoadConfig_PathErrors(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig("../../etc/config.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidateDefaults(t *testing.T) {
	config := &models.Config{}
	applyDefaults(config)
	require.NoError(t, validate(config))

	assert.Equal(t, constants.DefaultDialTimeoutSec, config.WhatsApp.DialTimeoutSec)
	assert.Equal(t, constants.DefaultReconnectInitialMs, config.Reconnect.InitialBackoffMs)
	assert.Equal(t, constants.DefaultReconnectMaxMs, config.Reconnect.MaxBackoffMs)
	assert.Equal(t, constants.DefaultServerReadTimeoutSec, config.Server.ReadTimeoutSec)
	assert.Equal(t, constants.DefaultGracefulShutdownSec, config.Server.GracefulShutdownSec)
	assert.Equal(t, 0.1, config.Tracing.SampleRate)
}

func TestReconnectBackoff(t *testing.T) {
	cfg := ReconnectBackoff(models.ReconnectConfig{
		Policy:           "backoff",
		InitialBackoffMs: 250,
		MaxBackoffMs:     4000,
		Multiplier:       1.5,
		MaxAttempts:      6,
	})

	assert.Equal(t, 250*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 4*time.Second, cfg.MaxDelay)
	assert.Equal(t, 1.5, cfg.Multiplier)
	assert.Equal(t, 6, cfg.MaxAttempts)
	assert.True(t, cfg.Jitter)
}
