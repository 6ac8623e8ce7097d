package types

import (
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// MessageKey identifies a message within a conversation.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

// Message is one inbound message as delivered by the protocol client.
type Message struct {
	Key              MessageKey     `json:"key"`
	MessageTimestamp int64          `json:"messageTimestamp"`
	PushName         string         `json:"pushName,omitempty"`
	Message          *waE2E.Message `json:"message,omitempty"`
}

// IsGroup reports whether the message belongs to a group conversation.
func (m *Message) IsGroup() bool {
	return strings.HasSuffix(m.Key.RemoteJID, GroupSuffix)
}

// Text returns the plain text carried by simple or extended text messages,
// or "" for every other message shape.
func (m *Message) Text() string {
	if m.Message == nil {
		return ""
	}
	if text := m.Message.GetConversation(); text != "" {
		return text
	}
	return m.Message.GetExtendedTextMessage().GetText()
}

// Event is anything a Session delivers on its event channel.
type Event interface {
	eventName() string
}

// MessagesUpsert carries a batch of newly received messages.
type MessagesUpsert struct {
	Messages []Message
}

// ConnectionUpdate reports a change of connection state and/or a new login
// code. Connection is empty when only the QR code changed.
type ConnectionUpdate struct {
	Connection     ConnectionStatus
	QR             string
	LastDisconnect error
}

// CredsUpdate signals that the session mutated the stored credentials.
type CredsUpdate struct{}

func (*MessagesUpsert) eventName() string   { return "messages.upsert" }
func (*ConnectionUpdate) eventName() string { return "connection.update" }
func (*CredsUpdate) eventName() string      { return "creds.update" }

// EventName returns the stream name an event belongs to.
func EventName(e Event) string {
	return e.eventName()
}
