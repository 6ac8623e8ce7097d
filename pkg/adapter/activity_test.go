package adapter

import (
	"context"
	"testing"
	"time"

	"whatsbot/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func conversation(text string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(text)}
}

func TestNewActivity(t *testing.T) {
	tests := []struct {
		name             string
		msg              types.Message
		selfID           string
		expectedFrom     string
		expectedText     string
		expectedIsGroup  bool
		expectedRecipent string
	}{
		{
			name: "direct message",
			msg: types.Message{
				Key:              types.MessageKey{RemoteJID: "15550001111@s.whatsapp.net", ID: "ABC"},
				MessageTimestamp: 1700000000,
				PushName:         "Alice",
				Message:          conversation("hello"),
			},
			expectedFrom:     "15550001111@s.whatsapp.net",
			expectedText:     "hello",
			expectedRecipent: "15550001111@s.whatsapp.net",
		},
		{
			name: "group message uses participant",
			msg: types.Message{
				Key: types.MessageKey{
					RemoteJID:   "120363000000000000@g.us",
					ID:          "DEF",
					Participant: "15550002222@s.whatsapp.net",
				},
				MessageTimestamp: 1700000001,
				Message:          &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted reply")}},
			},
			expectedFrom:     "15550002222@s.whatsapp.net",
			expectedText:     "quoted reply",
			expectedIsGroup:  true,
			expectedRecipent: "120363000000000000@g.us",
		},
		{
			name: "own message uses self id",
			msg: types.Message{
				Key:     types.MessageKey{RemoteJID: "15550001111@s.whatsapp.net", ID: "GHI", FromMe: true},
				Message: conversation("from my phone"),
			},
			selfID:           "15559999999@s.whatsapp.net",
			expectedFrom:     "15559999999@s.whatsapp.net",
			expectedText:     "from my phone",
			expectedRecipent: "15550001111@s.whatsapp.net",
		},
		{
			name: "non-text message has empty text",
			msg: types.Message{
				Key:     types.MessageKey{RemoteJID: "15550001111@s.whatsapp.net", ID: "JKL"},
				Message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("a photo")}},
			},
			expectedFrom:     "15550001111@s.whatsapp.net",
			expectedRecipent: "15550001111@s.whatsapp.net",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activity := NewActivity(tt.msg, tt.selfID)

			assert.Equal(t, tt.msg.Key.ID, activity.ID)
			assert.Equal(t, ActivityTypeMessage, activity.Type)
			assert.Equal(t, "whatsapp", activity.ChannelID)
			assert.Equal(t, "markdown", activity.TextFormat)
			assert.Equal(t, tt.expectedText, activity.Text)
			assert.Equal(t, tt.expectedFrom, activity.From.ID)
			assert.Equal(t, tt.msg.PushName, activity.From.Name)
			assert.Equal(t, tt.expectedRecipent, activity.Recipient.ID)
			assert.Equal(t, tt.msg.Key.RemoteJID, activity.Conversation.ID)
			assert.Equal(t, tt.expectedIsGroup, activity.Conversation.IsGroup)
			assert.Equal(t, "default", activity.Conversation.ConversationType)
			assert.Equal(t, time.Unix(tt.msg.MessageTimestamp, 0).UTC(), activity.Timestamp)

			require.NotNil(t, activity.Value)
			assert.Equal(t, tt.msg.Key, activity.Value.Key)
		})
	}
}

func TestNewActivity_ValueIsACopy(t *testing.T) {
	msg := textMessage("ID1", "1@s.whatsapp.net", "hi")
	activity := NewActivity(msg, "")

	msg.Key.ID = "changed"
	assert.Equal(t, "ID1", activity.Value.Key.ID)
}

func TestActivity_Reference(t *testing.T) {
	activity := NewActivity(textMessage("ID1", "1@s.whatsapp.net", "hi"), "")

	ref := activity.Reference()
	assert.Equal(t, "ID1", ref.ActivityID)
	assert.Equal(t, activity.From, ref.User)
	assert.Equal(t, activity.Recipient, ref.Bot)
	assert.Equal(t, activity.Conversation, ref.Conversation)
	assert.Equal(t, "whatsapp", ref.ChannelID)
}

func TestTurnContext_SendActivities(t *testing.T) {
	a := newTestAdapter(t, &mockDialer{}, Options{})
	tc := NewTurnContext(a, NewActivity(textMessage("ID1", "1@s.whatsapp.net", "hi"), ""))

	assert.Same(t, a, tc.Adapter())

	responses, err := tc.SendActivities(context.Background(), &Activity{Text: "reply"})
	require.NoError(t, err)
	assert.NotNil(t, responses)
	assert.Empty(t, responses)
}
