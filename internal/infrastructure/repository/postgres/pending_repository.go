package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

// PendingRepository stores the pending-interaction slot on the conversation row. The
// kind and id are denormalized so the single-slot rule is enforced in the UPDATE.
type PendingRepository struct {
	db *sql.DB
}

func NewPendingRepository(db *sql.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

func (r *PendingRepository) GetPending(ctx context.Context, conversationID string) (*domain.PendingInteraction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT pending FROM conversations WHERE id = $1`, conversationID)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get pending", fmt.Errorf("conversation %s", conversationID))
		}
		return nil, fmt.Errorf("get pending: %w", err)
	}
	return decodePending(raw)
}

func (r *PendingRepository) SavePending(ctx context.Context, conversationID string, pending domain.PendingInteraction) error {
	if err := pending.Validate(); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "save pending", err)
	}
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE conversations
SET pending_kind = $2, pending_id = $3, pending = $4, updated_at = $5
WHERE id = $1 AND (pending_kind IS NULL OR pending_kind = $2)
`, conversationID, string(pending.Kind), pending.ID(), raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save pending: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save pending rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var storedKind sql.NullString
	row := r.db.QueryRowContext(ctx, `SELECT pending_kind FROM conversations WHERE id = $1`, conversationID)
	if err := row.Scan(&storedKind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "save pending", fmt.Errorf("conversation %s", conversationID))
		}
		return fmt.Errorf("save pending lookup: %w", err)
	}
	return domain.WrapError(domain.ErrPendingConflict, "save pending",
		fmt.Errorf("conversation %s holds %s", conversationID, storedKind.String))
}

func (r *PendingRepository) ClearPending(ctx context.Context, conversationID string, kind domain.PendingKind, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE conversations
SET pending_kind = NULL, pending_id = NULL, pending = NULL, updated_at = $4
WHERE id = $1 AND pending_kind = $2 AND pending_id = $3
`, conversationID, string(kind), id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear pending: %w", err)
	}
	return requireAffected(result, domain.ErrPendingNotFound, "clear pending", id)
}

func decodePending(raw []byte) (*domain.PendingInteraction, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var pending domain.PendingInteraction
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("unmarshal pending: %w", err)
	}
	if err := pending.Validate(); err != nil {
		return nil, fmt.Errorf("stored pending interaction: %w", err)
	}
	return &pending, nil
}
