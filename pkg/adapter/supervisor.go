package adapter

import (
	"context"
	"fmt"
	"time"

	"whatsbot/internal/metrics"
	"whatsbot/internal/privacy"
	"whatsbot/internal/retry"
	"whatsbot/internal/tracing"
	"whatsbot/pkg/whatsapp"
	"whatsbot/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ConnState is the supervisor's view of the connection.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateTerminated
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// State returns the current connection state.
func (a *Adapter) State() ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) setState(s ConnState) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()

	metrics.SetGauge("connection_state", float64(s), nil, "Connection state: 0 idle, 1 connecting, 2 open, 3 terminated")
	if prev != s {
		a.logger.WithFields(logrus.Fields{
			"from": prev.String(),
			"to":   s.String(),
		}).Debug("Connection state changed")
	}
}

// CreateSession starts the supervisor in the background and waits for its
// first dial. It returns that dial's error and a channel that receives the
// supervisor's final error. A failed first dial is handled by the restart
// policy like any other close, so the loop may still be running.
func (a *Adapter) CreateSession(ctx context.Context, handler TurnHandler) (<-chan error, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := a.acquire(); err != nil {
		return nil, err
	}

	firstDial := make(chan error, 1)
	done := make(chan error, 1)
	go func() {
		defer a.release()
		done <- a.supervise(ctx, handler, firstDial)
	}()

	select {
	case err := <-firstDial:
		return done, err
	case err := <-done:
		result := make(chan error, 1)
		result <- err
		select {
		case dialErr := <-firstDial:
			return result, dialErr
		default:
			// The loop ended before dialing, only possible when ctx was done.
			return result, err
		}
	}
}

// Run supervises sessions until the device logs out, the restart policy
// gives up, or ctx is done.
func (a *Adapter) Run(ctx context.Context, handler TurnHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if err := a.acquire(); err != nil {
		return err
	}
	defer a.release()
	return a.supervise(ctx, handler, nil)
}

// Wait blocks until every dispatched turn has returned. Turns are added by
// the supervising loop, so Wait is only meaningful once Run has returned or
// the CreateSession done channel has yielded; calling it while the loop is
// still dispatching races with those additions.
func (a *Adapter) Wait() {
	a.inflight.Wait()
}

func (a *Adapter) acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrAlreadyRunning
	}
	a.running = true
	return nil
}

func (a *Adapter) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
}

// supervise is the single reconnect loop. Every restart decision is made
// here, so at most one session is ever live.
func (a *Adapter) supervise(ctx context.Context, handler TurnHandler, firstDial chan<- error) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			a.setState(StateIdle)
			return err
		}

		opened, closeErr := a.runSession(ctx, handler, firstDial)
		firstDial = nil

		if ctx.Err() != nil {
			a.setState(StateIdle)
			return ctx.Err()
		}

		reason := types.ReasonOf(closeErr)
		if !types.ShouldReconnect(closeErr) {
			a.setState(StateTerminated)
			a.logger.WithField("reason", reason.String()).Warn("WhatsApp session logged out, not reconnecting")
			return fmt.Errorf("%w: %v", ErrLoggedOut, closeErr)
		}

		if opened {
			failures = 0
		}
		failures++

		delay, ok := a.restartPolicy().Next(failures)
		if !ok {
			a.setState(StateTerminated)
			a.logger.WithField("attempts", failures-1).Error("Giving up on WhatsApp session")
			return fmt.Errorf("%w: %v", ErrRestartLimit, closeErr)
		}

		metrics.IncrementCounter("reconnects", map[string]string{"reason": reason.String()}, "Session reconnects by close reason")
		a.logger.WithFields(logrus.Fields{
			"reason":  reason.String(),
			"attempt": failures,
			"delay":   delay.String(),
		}).WithError(closeErr).Info("WhatsApp connection closed, reconnecting")

		a.setState(StateConnecting)
		if err := retry.Sleep(ctx, delay); err != nil {
			a.setState(StateIdle)
			return err
		}
	}
}

// runSession dials one session and consumes its events until it closes.
// It reports whether the connection ever opened and why it closed.
func (a *Adapter) runSession(ctx context.Context, handler TurnHandler, firstDial chan<- error) (bool, error) {
	a.setState(StateConnecting)
	metrics.IncrementCounter("sessions_dialed", nil, "Protocol sessions dialed")

	session, err := a.dialer.Dial(ctx, a.store)
	if firstDial != nil {
		firstDial <- err
	}
	if err != nil {
		a.errLogger.LogWarn(err, "Failed to dial WhatsApp session")
		return false, err
	}
	defer session.Close()

	opened := false
	for {
		select {
		case <-ctx.Done():
			return opened, ctx.Err()
		case evt, ok := <-session.Events():
			if !ok {
				return opened, types.NewDisconnectError(types.ReasonConnectionLost, whatsapp.ErrSessionEnded)
			}
			switch e := evt.(type) {
			case *types.MessagesUpsert:
				a.dispatchBatch(ctx, handler, e.Messages)
			case *types.CredsUpdate:
				a.store.SaveState()
			case *types.ConnectionUpdate:
				if e.QR != "" {
					a.setLoginCode(e.QR)
					a.logger.Info("Received WhatsApp login code")
				}
				switch e.Connection {
				case types.ConnectionOpen:
					opened = true
					a.clearLoginCode()
					a.setState(StateOpen)
					a.logger.Info("WhatsApp connection open")
				case types.ConnectionClose:
					return opened, e.LastDisconnect
				}
			}
		}
	}
}

// dispatchBatch starts one turn per message, in batch order, without
// waiting for any of them.
func (a *Adapter) dispatchBatch(ctx context.Context, handler TurnHandler, messages []types.Message) {
	self := a.selfID()

	a.mu.Lock()
	chain := make([]Middleware, len(a.middleware))
	copy(chain, a.middleware)
	a.mu.Unlock()

	for _, msg := range messages {
		activity := NewActivity(msg, self)
		a.inflight.Add(1)
		go func() {
			defer a.inflight.Done()
			a.runTurn(ctx, chain, handler, activity)
		}()
	}
}

func (a *Adapter) runTurn(ctx context.Context, chain []Middleware, handler TurnHandler, activity *Activity) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "whatsapp.dispatch",
		attribute.String("message.id", privacy.MaskMessageID(activity.ID)),
		attribute.Bool("conversation.group", activity.Conversation.IsGroup),
	)
	defer span.End()

	err := a.invoke(ctx, chain, handler, NewTurnContext(a, activity))

	metrics.RecordTimer("turn_duration", time.Since(start), nil, "Turn handler latency")
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter("handler_failures", nil, "Turns that returned an error or panicked")
		a.errLogger.LogError(err, "Turn handler failed", logrus.Fields{
			"message_id":   privacy.MaskMessageID(activity.ID),
			"conversation": privacy.MaskJID(activity.Conversation.ID),
			"from":         privacy.MaskJID(activity.From.ID),
		})
		return
	}
	metrics.IncrementCounter("messages_dispatched", nil, "Turns completed")
}

// invoke runs the middleware chain around handler, turning a panic anywhere
// in it into an error.
func (a *Adapter) invoke(ctx context.Context, chain []Middleware, handler TurnHandler, tc *TurnContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn panicked: %v", r)
		}
	}()

	var next func(i int) func(context.Context) error
	next = func(i int) func(context.Context) error {
		return func(ctx context.Context) error {
			if i == len(chain) {
				return handler(ctx, tc)
			}
			return chain[i](ctx, tc, next(i+1))
		}
	}
	return next(0)(ctx)
}
