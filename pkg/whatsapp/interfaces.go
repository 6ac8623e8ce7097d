package whatsapp

import (
	"context"
	"errors"

	"whatsbot/pkg/auth"
	"whatsbot/pkg/whatsapp/types"
)

// ErrSessionEnded is the cause attached when a session's event channel
// closes without reporting why.
var ErrSessionEnded = errors.New("session event stream ended")

// Session is one live protocol connection. Events are delivered in order on
// a single channel, which an implementation may close when the session ends.
type Session interface {
	Events() <-chan types.Event
	Close()
}

// Dialer opens sessions authenticated with the store's current state.
type Dialer interface {
	Dial(ctx context.Context, store *auth.Store) (Session, error)
}
