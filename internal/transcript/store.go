package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Speaker identifies the author of a transcript entry.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Entry is one append-only transcript record. Entries for a conversation are
// totally ordered by append time and never edited or removed.
type Entry struct {
	ID             string
	ConversationID string
	Speaker        string
	Content        string
	CreatedAt      time.Time
}

// Store persists conversation transcripts in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendUser appends a user message to the conversation.
func (s *Store) AppendUser(ctx context.Context, conversationID, content string) error {
	return s.append(ctx, conversationID, SpeakerUser, content)
}

// AppendAssistant appends an assistant message to the conversation.
func (s *Store) AppendAssistant(ctx context.Context, conversationID, content string) error {
	return s.append(ctx, conversationID, SpeakerAssistant, content)
}

func (s *Store) append(ctx context.Context, conversationID, speaker, content string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO docent_transcript (conversation_id, speaker, content)
		 VALUES ($1, $2, $3)`,
		conversationID,
		speaker,
		content,
	)
	if err != nil {
		return fmt.Errorf("append %s message: %w", speaker, err)
	}
	return nil
}

// History returns the full ordered transcript for a conversation. A
// conversation with no prior entries yields an empty history, not an error.
func (s *Store) History(ctx context.Context, conversationID string) ([]Entry, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, conversation_id, speaker, content, created_at
		 FROM docent_transcript
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.ID,
			&entry.ConversationID,
			&entry.Speaker,
			&entry.Content,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get history rows: %w", err)
	}
	return entries, nil
}

// RenderHistory returns the conversation as prompt-ready text, one
// "speaker: content" line per entry.
func (s *Store) RenderHistory(ctx context.Context, conversationID string) (string, error) {
	entries, err := s.History(ctx, conversationID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, entry := range entries {
		b.WriteString(entry.Speaker)
		b.WriteString(": ")
		b.WriteString(entry.Content)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
