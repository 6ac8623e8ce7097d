package adapter

import (
	"context"
	"time"

	"whatsbot/internal/constants"
	"whatsbot/pkg/whatsapp/types"
)

// ActivityType classifies an activity.
type ActivityType string

const ActivityTypeMessage ActivityType = "message"

// ChannelAccount identifies a participant.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConversationAccount identifies a conversation.
type ConversationAccount struct {
	ID               string `json:"id"`
	IsGroup          bool   `json:"isGroup"`
	Name             string `json:"name"`
	ConversationType string `json:"conversationType"`
}

// ConversationReference is enough to address a conversation later.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
}

// ResourceResponse identifies something created by an outbound call.
type ResourceResponse struct {
	ID string `json:"id"`
}

// Activity is the normalized form of one WhatsApp message.
type Activity struct {
	ID           string              `json:"id,omitempty"`
	Type         ActivityType        `json:"type"`
	Timestamp    time.Time           `json:"timestamp"`
	ChannelID    string              `json:"channelId"`
	Conversation ConversationAccount `json:"conversation"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Text         string              `json:"text"`
	TextFormat   string              `json:"textFormat"`
	Value        *types.Message      `json:"value,omitempty"`
}

// NewActivity maps a raw message. selfID is the paired account and stands
// in as the sender of messages we sent ourselves.
func NewActivity(msg types.Message, selfID string) *Activity {
	from := msg.Key.Participant
	if from == "" {
		from = msg.Key.RemoteJID
	}
	if msg.Key.FromMe {
		from = selfID
	}

	raw := msg
	return &Activity{
		ID:        msg.Key.ID,
		Type:      ActivityTypeMessage,
		Timestamp: time.Unix(msg.MessageTimestamp, 0).UTC(),
		ChannelID: constants.ChannelID,
		Conversation: ConversationAccount{
			ID:               msg.Key.RemoteJID,
			IsGroup:          msg.IsGroup(),
			ConversationType: constants.DefaultConversation,
		},
		From: ChannelAccount{
			ID:   from,
			Name: msg.PushName,
		},
		Recipient: ChannelAccount{
			ID: msg.Key.RemoteJID,
		},
		Text:       msg.Text(),
		TextFormat: constants.DefaultTextFormat,
		Value:      &raw,
	}
}

// Reference returns the conversation reference for replying to a.
func (a *Activity) Reference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
	}
}

// TurnContext carries one activity through middleware and the handler.
type TurnContext struct {
	adapter  *Adapter
	Activity *Activity
}

// NewTurnContext binds activity to adapter.
func NewTurnContext(adapter *Adapter, activity *Activity) *TurnContext {
	return &TurnContext{adapter: adapter, Activity: activity}
}

// Adapter returns the adapter that produced the turn.
func (tc *TurnContext) Adapter() *Adapter {
	return tc.adapter
}

// SendActivities sends replies through the adapter.
func (tc *TurnContext) SendActivities(ctx context.Context, activities ...*Activity) ([]ResourceResponse, error) {
	return tc.adapter.SendActivities(ctx, tc, activities)
}

// TurnHandler implements the bot's logic for one activity.
type TurnHandler func(ctx context.Context, tc *TurnContext) error

// Middleware runs around the turn handler; it must call next to continue.
type Middleware func(ctx context.Context, tc *TurnContext, next func(context.Context) error) error
