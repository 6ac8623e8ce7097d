package whatsapp

import (
	"errors"
	"fmt"
	"sync"

	"whatsbot/internal/constants"
	"whatsbot/pkg/auth"
	"whatsbot/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type meowSession struct {
	client *whatsmeow.Client
	store  *auth.Store
	logger *logrus.Logger
	events chan types.Event
	done   chan struct{}
	once   sync.Once
}

func newMeowSession(client *whatsmeow.Client, authStore *auth.Store, logger *logrus.Logger) *meowSession {
	return &meowSession{
		client: client,
		store:  authStore,
		logger: logger,
		events: make(chan types.Event, constants.DefaultSessionEventBuffer),
		done:   make(chan struct{}),
	}
}

func (s *meowSession) Events() <-chan types.Event {
	return s.events
}

// Close disconnects the client. Events raised afterwards are dropped.
func (s *meowSession) Close() {
	s.once.Do(func() {
		close(s.done)
		s.client.Disconnect()
	})
}

func (s *meowSession) emit(evt types.Event) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case <-s.done:
	case s.events <- evt:
	}
}

func (s *meowSession) handle(evt interface{}) {
	if pair, ok := evt.(*events.PairSuccess); ok {
		var account []byte
		if s.client != nil {
			account = s.encodeAccount(s.client.Store)
		}
		s.store.UpdateCreds(func(c *auth.Credentials) {
			c.Me = &auth.Contact{ID: pair.ID.String(), Name: pair.BusinessName}
			if !pair.LID.IsEmpty() {
				c.LID = pair.LID.String()
			}
			if account != nil {
				c.Account = account
			}
			c.Platform = pair.Platform
			c.Registered = true
		})
		s.logger.WithField("platform", pair.Platform).Info("WhatsApp device paired")
		s.emit(&types.CredsUpdate{})
		return
	}

	if out := translateEvent(evt); out != nil {
		s.emit(out)
	}
}

// encodeAccount serializes the signed device identity whatsmeow stored while
// pairing, so the device record can be rebuilt from the auth state alone.
func (s *meowSession) encodeAccount(device *store.Device) []byte {
	if device == nil || device.Account == nil {
		return nil
	}
	raw, err := proto.Marshal(device.Account)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode signed device identity")
		return nil
	}
	return raw
}

func (s *meowSession) forwardLoginCodes(codes <-chan whatsmeow.QRChannelItem) {
	for item := range codes {
		switch item.Event {
		case "code":
			s.emit(&types.ConnectionUpdate{QR: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			return
		case whatsmeow.QRChannelTimeout.Event:
			s.emit(&types.ConnectionUpdate{
				Connection:     types.ConnectionClose,
				LastDisconnect: types.NewDisconnectError(types.ReasonTimedOut, errors.New("login code expired")),
			})
			return
		default:
			if item.Error != nil {
				s.logger.WithError(item.Error).WithField("event", item.Event).Warn("Login code channel error")
			}
		}
	}
}

// translateEvent maps whatsmeow events onto the adapter's event streams.
// Events the adapter does not act on map to nil.
func translateEvent(evt interface{}) types.Event {
	switch v := evt.(type) {
	case *events.Message:
		return &types.MessagesUpsert{Messages: []types.Message{convertMessage(v)}}
	case *events.Connected:
		return &types.ConnectionUpdate{Connection: types.ConnectionOpen}
	case *events.Disconnected:
		return closed(types.ReasonConnectionClosed, nil)
	case *events.StreamReplaced:
		return closed(types.ReasonConnectionReplaced, nil)
	case *events.LoggedOut:
		return closed(types.ReasonLoggedOut, fmt.Errorf("logged out by server (reason %d)", int(v.Reason)))
	case *events.ConnectFailure:
		return closed(types.DisconnectReason(v.Reason), fmt.Errorf("connect failure (reason %d)", int(v.Reason)))
	// whatsmeow expects the disconnect after these and sends no Disconnected.
	case *events.TemporaryBan:
		return closed(types.ReasonTemporaryBan, fmt.Errorf("temporarily banned (code %d, expires in %s)", int(v.Code), v.Expire))
	case *events.ClientOutdated:
		return closed(types.ReasonClientOutdated, errors.New("client version rejected by server"))
	case *events.CATRefreshError:
		return closed(types.ReasonConnectionClosed, fmt.Errorf("failed to refresh client auth token: %w", v.Error))
	case *events.ManualLoginReconnect:
		return closed(types.ReasonRestartRequired, nil)
	}
	return nil
}

func closed(reason types.DisconnectReason, cause error) *types.ConnectionUpdate {
	return &types.ConnectionUpdate{
		Connection:     types.ConnectionClose,
		LastDisconnect: types.NewDisconnectError(reason, cause),
	}
}

func convertMessage(evt *events.Message) types.Message {
	key := types.MessageKey{
		RemoteJID: evt.Info.Chat.String(),
		FromMe:    evt.Info.IsFromMe,
		ID:        string(evt.Info.ID),
	}
	if evt.Info.IsGroup {
		key.Participant = evt.Info.Sender.String()
	}

	return types.Message{
		Key:              key,
		MessageTimestamp: evt.Info.Timestamp.Unix(),
		PushName:         evt.Info.PushName,
		Message:          evt.Message,
	}
}
