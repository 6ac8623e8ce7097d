// Package adapter connects a WhatsApp Web session to a bot turn handler.
//
// The adapter owns the auth state for its session: it generates or adopts
// credentials at construction, hands them to every new protocol session,
// and writes every change back to its Options. It supervises the session,
// reconnecting on every close except an explicit logout, and turns each
// inbound message into an Activity for the handler.
package adapter

import (
	"context"
	"strings"
	"sync"

	"whatsbot/internal/constants"
	apperrors "whatsbot/internal/errors"
	"whatsbot/pkg/auth"
	"whatsbot/pkg/whatsapp"

	"github.com/sirupsen/logrus"
	watypes "go.mau.fi/whatsmeow/types"
)

var insecureWarning = strings.Join([]string{
	"****************************************************************************************",
	"* WARNING: Your bot is operating without recommended security mechanisms in place.     *",
	"* Initialize your adapter with an auth state saved from a paired WhatsApp device:      *",
	"*                                                                                      *",
	"* adapter.New(adapter.Options{Auth: savedState}, dialer, logger)                       *",
	"*                                                                                      *",
	"****************************************************************************************",
}, "\n")

var incompleteWarning = strings.Join([]string{
	"****************************************************************************************",
	"* WARNING: Your adapter may be running with an incomplete/unsafe configuration.        *",
	"* - Ensure all required configuration options are present                              *",
	"* - Disable the \"enableIncomplete\" option!                                             *",
	"****************************************************************************************",
}, "\n")

// Options configures an Adapter. Auth and QR are also written by the
// adapter: Auth after every state save, QR after every observed login code.
type Options struct {
	// Auth is a previously saved auth state.
	Auth *auth.State
	// QR is the last observed login code.
	QR string
	// EnableIncomplete allows starting without Auth.
	EnableIncomplete bool
	// OnSave is called after every state save, for callers that make the
	// state durable.
	OnSave func(*auth.State)
	// OnLoginCode is called with every new login code, for callers that
	// render it.
	OnLoginCode func(code string)
	// RestartPolicy defaults to ImmediatePolicy.
	RestartPolicy RestartPolicy
}

// Adapter bridges one WhatsApp session to a turn handler.
type Adapter struct {
	Name string

	dialer    whatsapp.Dialer
	store     *auth.Store
	logger    *logrus.Logger
	errLogger *apperrors.Logger

	mu         sync.Mutex
	opts       Options
	policy     RestartPolicy
	qr         string
	state      ConnState
	running    bool
	middleware []Middleware

	inflight sync.WaitGroup
}

// New validates opts and initializes the auth store. Without Auth it
// fails unless EnableIncomplete is set.
func New(opts Options, dialer whatsapp.Dialer, logger *logrus.Logger) (*Adapter, error) {
	if opts.Auth == nil {
		logger.Warn(insecureWarning)
		if !opts.EnableIncomplete {
			return nil, apperrors.New(apperrors.ErrCodeMissingConfig, "auth state is required unless enableIncomplete is set").
				WithContext("config_key", "auth").
				WithUserMessage("Configuration error")
		}
	}
	if opts.EnableIncomplete {
		logger.Warn(incompleteWarning)
	}

	policy := opts.RestartPolicy
	if policy == nil {
		policy = ImmediatePolicy{}
	}

	a := &Adapter{
		Name:      constants.AdapterName,
		dialer:    dialer,
		policy:    policy,
		logger:    logger,
		errLogger: &apperrors.Logger{Logger: logger},
		opts:      opts,
		qr:        opts.QR,
		state:     StateIdle,
	}

	store, err := auth.NewStore(a, logger)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuthState, "failed to initialize auth state")
	}
	a.store = store
	return a, nil
}

// Use appends middleware to the turn pipeline.
func (a *Adapter) Use(middleware ...Middleware) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middleware = append(a.middleware, middleware...)
	return a
}

// SetRestartPolicy replaces the restart policy. The running loop consults
// it from the next close on. A nil policy restores ImmediatePolicy.
func (a *Adapter) SetRestartPolicy(policy RestartPolicy) {
	if policy == nil {
		policy = ImmediatePolicy{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.policy = policy
}

func (a *Adapter) restartPolicy() RestartPolicy {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.policy
}

// Store returns the adapter's auth store.
func (a *Adapter) Store() *auth.Store {
	return a.store
}

// Options returns the adapter's current options.
func (a *Adapter) Options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts
}

// AuthState implements auth.Holder.
func (a *Adapter) AuthState() *auth.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts.Auth
}

// SetAuthState implements auth.Holder.
func (a *Adapter) SetAuthState(state *auth.State) {
	a.mu.Lock()
	a.opts.Auth = state
	onSave := a.opts.OnSave
	a.mu.Unlock()

	if onSave != nil {
		onSave(state)
	}
}

// GetLoginCode returns the most recent QR login code.
func (a *Adapter) GetLoginCode() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.qr == "" {
		return "", ErrNoLoginCode
	}
	return a.qr, nil
}

// GetInstallData is GetLoginCode under the name bot frameworks use for
// their install hook.
func (a *Adapter) GetInstallData() (string, error) {
	return a.GetLoginCode()
}

func (a *Adapter) setLoginCode(code string) {
	a.mu.Lock()
	a.qr = code
	a.opts.QR = code
	onLoginCode := a.opts.OnLoginCode
	a.mu.Unlock()

	if onLoginCode != nil {
		onLoginCode(code)
	}
}

func (a *Adapter) clearLoginCode() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.qr = ""
	a.opts.QR = ""
}

// selfID is the paired account's user JID, without the device part.
func (a *Adapter) selfID() string {
	creds := a.store.Creds()
	if creds.Me == nil || creds.Me.ID == "" {
		return ""
	}
	jid, err := watypes.ParseJID(creds.Me.ID)
	if err != nil {
		return creds.Me.ID
	}
	return jid.ToNonAD().String()
}

// SendActivities does not deliver anything yet.
func (a *Adapter) SendActivities(ctx context.Context, tc *TurnContext, activities []*Activity) ([]ResourceResponse, error) {
	return []ResourceResponse{}, nil
}

// UpdateActivity does not edit anything yet.
func (a *Adapter) UpdateActivity(ctx context.Context, tc *TurnContext, activity *Activity) error {
	return nil
}

// DeleteActivity does not delete anything yet.
func (a *Adapter) DeleteActivity(ctx context.Context, tc *TurnContext, ref ConversationReference) error {
	return nil
}

// ContinueConversation does not start proactive turns yet.
func (a *Adapter) ContinueConversation(ctx context.Context, ref ConversationReference, logic TurnHandler) error {
	return nil
}
