package main

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"whatsbot/internal/database"
	"whatsbot/internal/migrations"
	"whatsbot/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintStatus(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, printStatus(ctx, &out, db))
	assert.Contains(t, out.String(), "001 auth_states")
	assert.Contains(t, out.String(), "pending")
	assert.NotContains(t, out.String(), "applied")

	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, printStatus(ctx, &out, db))
	assert.NotContains(t, out.String(), "pending")
	assert.Contains(t, out.String(), "002 auth_states_paired_jid")
}

func TestPrintSessions(t *testing.T) {
	store, err := database.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, printSessions(ctx, &out, store))
	assert.Equal(t, "No stored sessions\n", out.String())

	creds, err := auth.NewCredentials()
	require.NoError(t, err)
	creds.Me = &auth.Contact{ID: "15551234567:2@s.whatsapp.net"}
	require.NoError(t, store.SaveAuthState(ctx, "default", &auth.State{Creds: creds, Keys: auth.Keys{}}))

	unpaired, err := auth.NewCredentials()
	require.NoError(t, err)
	require.NoError(t, store.SaveAuthState(ctx, "spare", &auth.State{Creds: unpaired, Keys: auth.Keys{}}))

	out.Reset()
	require.NoError(t, printSessions(ctx, &out, store))
	assert.Contains(t, out.String(), "*******4567:2@s.whatsapp.net")
	assert.NotContains(t, out.String(), "15551234567")
	assert.Contains(t, out.String(), "(unpaired)")
}
