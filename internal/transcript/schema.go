package transcript

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the transcript table when it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS docent_transcript (
			id BIGSERIAL PRIMARY KEY,
			conversation_id UUID NOT NULL,
			speaker TEXT NOT NULL CHECK (speaker IN ('user', 'assistant')),
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS docent_transcript_conversation_idx
			ON docent_transcript (conversation_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure transcript schema: %w", err)
		}
	}
	return nil
}
