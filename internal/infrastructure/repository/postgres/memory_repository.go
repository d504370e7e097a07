package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type MemoryRepository struct {
	db *sql.DB
}

func NewMemoryRepository(db *sql.DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

func (r *MemoryRepository) GetMemory(ctx context.Context, conversationID string) (*domain.MemoryRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT conversation_id, turn_count, COALESCE(last_message_id, ''), window_turns, created_at, updated_at
FROM memory_records
WHERE conversation_id = $1
`, conversationID)

	var record domain.MemoryRecord
	var windowRaw []byte
	if err := row.Scan(
		&record.ConversationID,
		&record.TurnCount,
		&record.LastMessageID,
		&windowRaw,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get memory record: %w", err)
	}
	if err := json.Unmarshal(windowRaw, &record.Window); err != nil {
		return nil, fmt.Errorf("unmarshal memory window: %w", err)
	}
	return &record, nil
}

func (r *MemoryRepository) UpsertMemory(ctx context.Context, record *domain.MemoryRecord) error {
	window := record.Window
	if window == nil {
		window = []domain.MemoryTurn{}
	}
	windowJSON, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("marshal memory window: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO memory_records (conversation_id, turn_count, last_message_id, window_turns, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (conversation_id) DO UPDATE
SET turn_count = EXCLUDED.turn_count,
	last_message_id = EXCLUDED.last_message_id,
	window_turns = EXCLUDED.window_turns,
	updated_at = EXCLUDED.updated_at
`, record.ConversationID, record.TurnCount, nullableString(record.LastMessageID), windowJSON, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert memory record: %w", err)
	}
	return nil
}
