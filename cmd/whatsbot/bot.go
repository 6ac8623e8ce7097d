package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"whatsbot/internal/privacy"
	"whatsbot/internal/tracing"
	"whatsbot/pkg/adapter"

	"github.com/mdp/qrterminal/v3"
	"github.com/sirupsen/logrus"
)

// echoHandler replies to every text message with the same text.
func echoHandler(logger *logrus.Logger) adapter.TurnHandler {
	return func(ctx context.Context, tc *adapter.TurnContext) error {
		activity := tc.Activity
		if activity.Text == "" {
			logger.WithField("request_id", tracing.GetRequestID(ctx)).Debug("Ignoring message without text")
			return nil
		}

		reply := &adapter.Activity{
			Type:         adapter.ActivityTypeMessage,
			ChannelID:    activity.ChannelID,
			Conversation: activity.Conversation,
			From:         activity.Recipient,
			Recipient:    activity.From,
			Text:         activity.Text,
			TextFormat:   activity.TextFormat,
		}
		if _, err := tc.SendActivities(ctx, reply); err != nil {
			return fmt.Errorf("failed to send echo: %w", err)
		}
		return nil
	}
}

// requestIDMiddleware tags every turn with a request id for log correlation.
func requestIDMiddleware(ctx context.Context, tc *adapter.TurnContext, next func(context.Context) error) error {
	return next(tracing.WithRequestID(ctx, tracing.GenerateRequestID()))
}

// skipOwnMessages stops turns for messages sent from the paired account.
func skipOwnMessages(ctx context.Context, tc *adapter.TurnContext, next func(context.Context) error) error {
	if tc.Activity.Value != nil && tc.Activity.Value.Key.FromMe {
		return nil
	}
	return next(ctx)
}

// loggingMiddleware logs every turn. Identifiers are masked unless verbose.
func loggingMiddleware(logger *logrus.Logger, verbose bool) adapter.Middleware {
	mask := func(fields logrus.Fields) logrus.Fields {
		if verbose {
			return fields
		}
		return logrus.Fields(privacy.MaskSensitiveFields(fields))
	}

	return func(ctx context.Context, tc *adapter.TurnContext, next func(context.Context) error) error {
		start := time.Now()
		fields := mask(logrus.Fields{
			"message_id":   tc.Activity.ID,
			"conversation": tc.Activity.Conversation.ID,
			"from":         tc.Activity.From.ID,
			"request_id":   tracing.GetRequestID(ctx),
			"trace_id":     tracing.TraceID(ctx),
		})
		logger.WithFields(fields).Debug("Turn started")

		err := next(ctx)

		entry := logger.WithFields(fields).WithField("duration_ms", time.Since(start).Milliseconds())
		if err != nil {
			entry.WithError(err).Warn("Turn failed")
			return err
		}
		entry.Info("Turn completed")
		return nil
	}
}

// loginCodePrinter renders each login code as a terminal QR code.
func loginCodePrinter(w io.Writer) func(string) {
	return func(code string) {
		fmt.Fprintln(w, "Scan this QR code with WhatsApp:")
		fmt.Fprintln(w, "  Settings → Linked Devices → Link a Device")
		qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
		fmt.Fprintln(w)
	}
}
