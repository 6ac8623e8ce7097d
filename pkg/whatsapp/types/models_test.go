package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestMessage_Text(t *testing.T) {
	tests := []struct {
		name     string
		message  *waE2E.Message
		expected string
	}{
		{
			name:     "nil payload",
			message:  nil,
			expected: "",
		},
		{
			name:     "conversation",
			message:  &waE2E.Message{Conversation: proto.String("hello")},
			expected: "hello",
		},
		{
			name: "extended text",
			message: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String("quoted reply"),
			}},
			expected: "quoted reply",
		},
		{
			name: "conversation wins over extended text",
			message: &waE2E.Message{
				Conversation:        proto.String("first"),
				ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("second")},
			},
			expected: "first",
		},
		{
			name: "image without caption extraction",
			message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
				Caption: proto.String("caption"),
			}},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Message{Message: tt.message}
			assert.Equal(t, tt.expected, m.Text())
		})
	}
}

func TestMessage_IsGroup(t *testing.T) {
	group := Message{Key: MessageKey{RemoteJID: "120363025246125486@g.us"}}
	direct := Message{Key: MessageKey{RemoteJID: "15551234567@s.whatsapp.net"}}

	assert.True(t, group.IsGroup())
	assert.False(t, direct.IsGroup())
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "messages.upsert", EventName(&MessagesUpsert{}))
	assert.Equal(t, "connection.update", EventName(&ConnectionUpdate{}))
	assert.Equal(t, "creds.update", EventName(&CredsUpdate{}))
}
