package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	apperrors "whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/internal/migrations"
	"whatsbot/internal/security"
	"whatsbot/pkg/auth"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// AuthStateSummary describes a stored session without its key material.
type AuthStateSummary struct {
	SessionName string
	PairedJID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(dbPath string) (*Database, error) {
	// Validate database path to prevent directory traversal
	if err := security.EnsureParentDir(dbPath); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to create database file")
	}
	if err := file.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to close database file")
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		return nil, closeOnError(db, apperrors.WrapRetryable(err, apperrors.ErrCodeDatabaseConnection, "failed to ping database"))
	}

	if _, err := migrations.Apply(context.Background(), db); err != nil {
		return nil, closeOnError(db, apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to initialize schema"))
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		return nil, closeOnError(db, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "failed to initialize encryptor"))
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func closeOnError(db *sql.DB, err *apperrors.AppError) error {
	if closeErr := db.Close(); closeErr != nil {
		return err.WithContext("close_error", closeErr.Error())
	}
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SaveAuthState writes the state of a session, replacing any earlier copy.
func (d *Database) SaveAuthState(ctx context.Context, sessionName string, state *auth.State) error {
	if state == nil {
		return apperrors.New(apperrors.ErrCodeAuthState, "auth state is nil")
	}

	creds, keys, err := state.MarshalParts()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeAuthState, "failed to serialize auth state")
	}

	encryptedCreds, err := d.encryptor.EncryptIfEnabled(string(creds))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeAuthState, "failed to encrypt credentials")
	}
	encryptedKeys, err := d.encryptor.EncryptIfEnabled(string(keys))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeAuthState, "failed to encrypt keys")
	}

	err = retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertAuthStateQuery, sessionName, encryptedCreds, encryptedKeys, state.PairedID())
		return err
	}, "save auth state")
	if err != nil {
		return apperrors.NewDatabaseError("save auth state", err).WithContext("session_name", sessionName)
	}

	metrics.IncrementCounter("auth_state_persisted", map[string]string{"session": sessionName}, "Auth states written to the database")
	return nil
}

// LoadAuthState returns the stored state of a session, or nil when the
// session has never been saved.
func (d *Database) LoadAuthState(ctx context.Context, sessionName string) (*auth.State, error) {
	var encryptedCreds, encryptedKeys string
	err := retryableDBOperation(ctx, func() error {
		return d.db.QueryRowContext(ctx, SelectAuthStateQuery, sessionName).Scan(&encryptedCreds, &encryptedKeys)
	}, "load auth state")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load auth state", err).WithContext("session_name", sessionName)
	}

	creds, err := d.encryptor.DecryptIfEnabled(encryptedCreds)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuthState, "failed to decrypt credentials")
	}
	keys, err := d.encryptor.DecryptIfEnabled(encryptedKeys)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuthState, "failed to decrypt keys")
	}

	state, err := auth.UnmarshalState([]byte(creds), []byte(keys))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuthState, "stored auth state is corrupt").
			WithContext("session_name", sessionName)
	}
	return state, nil
}

// DeleteAuthState removes a session's stored state. Deleting a session that
// was never saved is not an error.
func (d *Database) DeleteAuthState(ctx context.Context, sessionName string) error {
	err := retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, DeleteAuthStateQuery, sessionName)
		return err
	}, "delete auth state")
	if err != nil {
		return apperrors.NewDatabaseError("delete auth state", err).WithContext("session_name", sessionName)
	}
	return nil
}

// ListAuthStates summarizes every stored session.
func (d *Database) ListAuthStates(ctx context.Context) ([]AuthStateSummary, error) {
	rows, err := d.db.QueryContext(ctx, SelectAuthStateSummariesQuery)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list auth states", err)
	}
	defer rows.Close()

	var summaries []AuthStateSummary
	for rows.Next() {
		var s AuthStateSummary
		if err := rows.Scan(&s.SessionName, &s.PairedJID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan auth state", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list auth states", err)
	}
	return summaries, nil
}

// DB exposes the underlying handle for schema tooling.
func (d *Database) DB() *sql.DB {
	return d.db
}
