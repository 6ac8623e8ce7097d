package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAll(t *testing.T) {
	migrations, err := All()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "auth_states", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS auth_states")

	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "auth_states_paired_jid", migrations[1].Name)
}

func TestParse(t *testing.T) {
	tests := []struct {
		filename string
		version  int
		name     string
		wantErr  bool
	}{
		{"001_auth_states.sql", 1, "auth_states", false},
		{"010_add_index.sql", 10, "add_index", false},
		{"auth_states.sql", 0, "", true},
		{"000_zero.sql", 0, "", true},
		{"abc_name.sql", 0, "", true},
		{"001_.sql", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m, err := parse(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, m.Version)
			assert.Equal(t, tt.name, m.Name)
		})
	}
}

func TestApply(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	applied, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)

	_, err = db.Exec("INSERT INTO auth_states (session_name, creds, keys, paired_jid) VALUES ('default', '{}', '{}', '')")
	assert.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestApply_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := Apply(ctx, db)
	require.NoError(t, err)

	applied, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestPending(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	statuses, err := Pending(ctx, db)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.False(t, s.Applied, "migration %d", s.Version)
	}

	_, err = Apply(ctx, db)
	require.NoError(t, err)

	statuses, err = Pending(ctx, db)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %d", s.Version)
	}
}

func TestApply_CancelledContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Apply(ctx, db)
	assert.Error(t, err)
}
