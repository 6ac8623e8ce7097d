package database

// Auth state queries
const (
	UpsertAuthStateQuery = `
		INSERT INTO auth_states (session_name, creds, keys, paired_jid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_name) DO UPDATE SET
			creds = excluded.creds,
			keys = excluded.keys,
			paired_jid = excluded.paired_jid
	`

	SelectAuthStateQuery = `
		SELECT creds, keys
		FROM auth_states
		WHERE session_name = ?
	`

	DeleteAuthStateQuery = `
		DELETE FROM auth_states
		WHERE session_name = ?
	`

	SelectAuthStateSummariesQuery = `
		SELECT session_name, paired_jid, created_at, updated_at
		FROM auth_states
		ORDER BY session_name
	`
)
