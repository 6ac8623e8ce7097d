package types

const (
	// GroupSuffix marks a group conversation JID.
	GroupSuffix = "@g.us"
	// UserSuffix marks an individual account JID.
	UserSuffix = "@s.whatsapp.net"
)

// ConnectionStatus is the state reported by a connection update.
type ConnectionStatus string

const (
	ConnectionConnecting ConnectionStatus = "connecting"
	ConnectionOpen       ConnectionStatus = "open"
	ConnectionClose      ConnectionStatus = "close"
)
