package db

// createTable creates the session_events table if it doesn't exist
func (j *PostgresJournal) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS session_events (
		id VARCHAR(26) PRIMARY KEY,
		session_id VARCHAR(36) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		revision BIGINT NOT NULL,
		origin TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		bytes INTEGER NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_session_events_created_at ON session_events(created_at);
	`

	_, err := j.db.Exec(query)
	return err
}
