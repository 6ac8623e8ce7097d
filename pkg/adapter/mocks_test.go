package adapter

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"whatsbot/pkg/auth"
	"whatsbot/pkg/whatsapp"
	"whatsbot/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeSession is a session whose events are fed by the test.
type fakeSession struct {
	events chan types.Event
	closed chan struct{}
	once   sync.Once
}

func newFakeSession(preloaded ...types.Event) *fakeSession {
	s := &fakeSession{
		events: make(chan types.Event, 32),
		closed: make(chan struct{}),
	}
	for _, evt := range preloaded {
		s.events <- evt
	}
	return s
}

func (s *fakeSession) Events() <-chan types.Event {
	return s.events
}

func (s *fakeSession) Close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSession) send(evt types.Event) {
	s.events <- evt
}

type mockDialer struct {
	mock.Mock
}

func (m *mockDialer) Dial(ctx context.Context, store *auth.Store) (whatsapp.Session, error) {
	args := m.Called(ctx, store)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fakeSession), args.Error(1)
}

func (m *mockDialer) willDial(sessions ...*fakeSession) *mockDialer {
	for _, s := range sessions {
		m.On("Dial", mock.Anything, mock.Anything).Return(s, nil).Once()
	}
	return m
}

// recordingPolicy reconnects immediately and remembers every attempt number.
type recordingPolicy struct {
	mu       sync.Mutex
	attempts []int
}

func (p *recordingPolicy) Next(attempt int) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, attempt)
	return 0, true
}

func (p *recordingPolicy) recorded() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.attempts...)
}

// turnRecorder collects the activities seen by a handler.
type turnRecorder struct {
	mu         sync.Mutex
	activities []*Activity
}

func (r *turnRecorder) record(a *Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, a)
}

func (r *turnRecorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.activities))
	for _, a := range r.activities {
		ids = append(ids, a.ID)
	}
	return ids
}

func (r *turnRecorder) handler() TurnHandler {
	return func(ctx context.Context, tc *TurnContext) error {
		r.record(tc.Activity)
		return nil
	}
}

func testLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func newTestAdapter(t *testing.T, dialer whatsapp.Dialer, opts Options) *Adapter {
	t.Helper()
	if opts.Auth == nil {
		opts.EnableIncomplete = true
	}
	logger, _ := testLogger()
	a, err := New(opts, dialer, logger)
	require.NoError(t, err)
	return a
}

func openUpdate() *types.ConnectionUpdate {
	return &types.ConnectionUpdate{Connection: types.ConnectionOpen}
}

func closeUpdate(reason types.DisconnectReason) *types.ConnectionUpdate {
	return &types.ConnectionUpdate{
		Connection:     types.ConnectionClose,
		LastDisconnect: types.NewDisconnectError(reason, nil),
	}
}

func textMessage(id, remoteJID, text string) types.Message {
	msg := types.Message{
		Key:              types.MessageKey{RemoteJID: remoteJID, ID: id},
		MessageTimestamp: 1700000000,
	}
	msg.Message = conversation(text)
	return msg
}
