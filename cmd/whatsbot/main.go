package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsbot/internal/config"
	"whatsbot/internal/constants"
	"whatsbot/internal/database"
	apperrors "whatsbot/internal/errors"
	"whatsbot/internal/models"
	"whatsbot/internal/privacy"
	"whatsbot/internal/retry"
	"whatsbot/internal/tracing"
	"whatsbot/pkg/adapter"
	"whatsbot/pkg/auth"
	"whatsbot/pkg/circuitbreaker"
	"whatsbot/pkg/whatsapp"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("WhatsBot %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	errLogger := &apperrors.Logger{Logger: logger}

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting WhatsBot")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg.LogLevel, *verbose)
	if *verbose {
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	}

	sessionName := cfg.WhatsApp.SessionName
	sessionLogger := logger.WithField("session", privacy.MaskSessionName(sessionName))

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	saved, err := db.LoadAuthState(ctx, sessionName)
	if err != nil {
		return fmt.Errorf("failed to load auth state: %w", err)
	}
	if saved != nil {
		sessionLogger.Info("Loaded saved auth state")
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.WhatsApp.DialTimeout())
	dialer, err := whatsapp.NewMeowDialer(dialCtx, cfg.WhatsApp.StorePath, logger)
	cancelDial()
	if err != nil {
		return fmt.Errorf("failed to open device store: %w", err)
	}

	policy, err := adapter.NewRestartPolicy(cfg.Reconnect.Policy, config.ReconnectBackoff(cfg.Reconnect))
	if err != nil {
		return fmt.Errorf("invalid reconnect policy: %w", err)
	}

	opts := adapter.Options{
		Auth:             saved,
		EnableIncomplete: cfg.WhatsApp.EnableIncomplete,
		RestartPolicy:    policy,
		OnSave:           persistAuthState(db, sessionName, newPersistBreaker(logger), errLogger),
	}
	if cfg.WhatsApp.PrintQR {
		opts.OnLoginCode = loginCodePrinter(os.Stdout)
	}

	bot, err := adapter.New(opts, dialer, logger)
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}
	bot.Use(requestIDMiddleware, skipOwnMessages, loggingMiddleware(logger, *verbose))

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(newCfg *models.Config) {
		configureLogLevel(logger, newCfg.LogLevel, *verbose)

		newPolicy, err := adapter.NewRestartPolicy(newCfg.Reconnect.Policy, config.ReconnectBackoff(newCfg.Reconnect))
		if err != nil {
			logger.WithError(err).Warn("Ignoring invalid reconnect policy")
			return
		}
		bot.SetRestartPolicy(newPolicy)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	var server *Server
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	if cfg.Server.Port > 0 {
		server = NewServer(cfg.Server, sessionName, bot, logger)
		go func() {
			if err := server.Start(); err != nil {
				serverErrCh <- fmt.Errorf("server error: %w", err)
			}
		}()
	}

	done, err := bot.CreateSession(ctx, echoHandler(logger))
	if done == nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if err != nil {
		errLogger.LogWarn(err, "First WhatsApp dial failed, the restart policy decides what follows")
	}

	var sessionErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		sessionErr = <-done
	case sessionErr = <-done:
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	switch {
	case errors.Is(sessionErr, adapter.ErrLoggedOut):
		sessionLogger.Warn("Device logged out, discarding saved auth state")
		if err := db.DeleteAuthState(context.Background(), sessionName); err != nil {
			errLogger.LogError(err, "Failed to delete auth state")
		}
	case errors.Is(sessionErr, adapter.ErrRestartLimit):
		errLogger.LogError(sessionErr, "WhatsApp session stopped reconnecting")
	case sessionErr != nil && !errors.Is(sessionErr, context.Canceled):
		errLogger.LogError(sessionErr, "WhatsApp session ended")
	}

	bot.Wait()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.GracefulShutdownSec)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
		logger.Info("Server shutdown completed")
	}

	if errors.Is(sessionErr, adapter.ErrRestartLimit) {
		return sessionErr
	}
	return nil
}

// openDatabase opens the auth state database, retrying while it is locked
// or otherwise briefly unavailable.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	var db *database.Database
	err := backoff.RetryWithPredicate(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	}, apperrors.IsRetryable)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

func newPersistBreaker(logger *logrus.Logger) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New("auth-state-store", constants.PersistBreakerMaxFailures,
		time.Duration(constants.PersistBreakerCooldownSec)*time.Second, logger)
}

// persistAuthState writes every saved state to the database. Failures are
// logged, the live state stays authoritative. Each save is a full snapshot,
// so writes skipped while the breaker is open are caught up by the next one.
func persistAuthState(db *database.Database, sessionName string, breaker *circuitbreaker.CircuitBreaker, errLogger *apperrors.Logger) func(*auth.State) {
	return func(state *auth.State) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.PersistTimeoutSec)*time.Second)
		defer cancel()

		err := breaker.Execute(ctx, func(ctx context.Context) error {
			return db.SaveAuthState(ctx, sessionName, state)
		})
		fields := logrus.Fields{"session": privacy.MaskSessionName(sessionName)}
		switch {
		case err == nil:
		case circuitbreaker.IsCircuitBreakerError(err):
			errLogger.LogWarn(err, "Skipping auth state write while the store is failing", fields)
		default:
			errLogger.LogError(err, "Failed to persist auth state", fields)
		}
	}
}

// configureLogLevel applies the configured level. Debug output carries
// unmasked identifiers, so it needs --verbose.
func configureLogLevel(logger *logrus.Logger, name string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}

	level, err := logrus.ParseLevel(name)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", name)
		level = logrus.InfoLevel
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
