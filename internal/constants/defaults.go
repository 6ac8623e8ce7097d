package constants

// Adapter defaults
const (
	AdapterName         = "WhatsApp Adapter"
	ChannelID           = "whatsapp"
	DefaultTextFormat   = "markdown"
	DefaultConversation = "default"
	DefaultSessionName  = "default"
)

// Session defaults
const (
	DefaultSessionEventBuffer  = 64
	DefaultDialTimeoutSec      = 30
	DefaultReconnectPolicy     = "immediate"
	DefaultReconnectInitialMs  = 500
	DefaultReconnectMaxMs      = 60000
	DefaultReconnectMultiplier = 2.0
)

// Storage defaults
const (
	DefaultDatabasePath          = "whatsbot.db"
	DefaultDeviceStorePath       = "whatsbot-device.db"
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
)

// Server defaults
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Privacy settings
const (
	DefaultPhoneMaskLength  = 4
	DefaultMessageIDVisible = 4
)

// Encryption settings
const (
	EncryptionSalt         = "whatsbot-auth-state-v1"
	EncryptionKeySize      = 32
	EncryptionNonceSize    = 12
	EncryptionIterations   = 100000
	MinEncryptionSecretLen = 32
)

// Persistence breaker settings
const (
	PersistBreakerMaxFailures = 5
	PersistBreakerCooldownSec = 30
	PersistTimeoutSec         = 10
)
