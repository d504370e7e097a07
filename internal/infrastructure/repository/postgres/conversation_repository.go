package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const selectConversation = `
SELECT id, tenant_id, user_id, status, current_user_turn, pending, last_activity_at, created_at, updated_at
FROM conversations
WHERE id = $1
`

func (r *ConversationRepository) EnsureConversation(ctx context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversations (id, tenant_id, user_id, status, current_user_turn, last_activity_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0, $5, $5, $5)
ON CONFLICT (id) DO NOTHING
`, conversationID, tenantID, userID, string(domain.ConversationOpen), now)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation insert: %w", err)
	}

	conv, err := scanConversation(r.db.QueryRowContext(ctx, selectConversation, conversationID))
	if err != nil {
		return nil, fmt.Errorf("ensure conversation select: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepository) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRowContext(ctx, selectConversation, conversationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get conversation", fmt.Errorf("conversation %s", conversationID))
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepository) CloseConversation(ctx context.Context, conversationID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE conversations
SET status = $2, updated_at = $3
WHERE id = $1
`, conversationID, string(domain.ConversationClosed), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	return requireAffected(result, domain.ErrNotFound, "close conversation", conversationID)
}

func (r *ConversationRepository) NextUserTurn(ctx context.Context, conversationID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE conversations
SET current_user_turn = current_user_turn + 1, last_activity_at = $2, updated_at = $2
WHERE id = $1
RETURNING current_user_turn
`, conversationID, time.Now().UTC())

	var currentTurn int
	if err := row.Scan(&currentTurn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.WrapError(domain.ErrNotFound, "next user turn", fmt.Errorf("conversation %s", conversationID))
		}
		return 0, fmt.Errorf("next user turn: %w", err)
	}
	return currentTurn, nil
}

// AppendMessages inserts all messages of a turn in one transaction.
func (r *ConversationRepository) AppendMessages(ctx context.Context, messages ...domain.ConversationMessage) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, message := range messages {
		if message.CreatedAt.IsZero() {
			message.CreatedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO conversation_messages (id, conversation_id, role, kind, content, draft_id, user_turn, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, message.ID, message.ConversationID, message.Role, nullableString(message.Kind), message.Content,
			nullableString(message.DraftID), message.UserTurn, message.CreatedAt)
		if err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

// ListMessages returns the latest limit messages in chronological order.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.ConversationMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, conversation_id, role, COALESCE(kind, ''), content, COALESCE(draft_id, ''), user_turn, created_at
FROM conversation_messages
WHERE conversation_id = $1
ORDER BY user_turn DESC, created_at DESC
LIMIT $2
`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationMessage, 0, limit)
	for rows.Next() {
		var msg domain.ConversationMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Kind,
			&msg.Content,
			&msg.DraftID,
			&msg.UserTurn,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanConversation(row *sql.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var status string
	var pendingRaw []byte
	if err := row.Scan(
		&conv.ID,
		&conv.TenantID,
		&conv.UserID,
		&status,
		&conv.CurrentUserTurn,
		&pendingRaw,
		&conv.LastActivityAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	conv.Status = domain.ConversationStatus(status)
	pending, err := decodePending(pendingRaw)
	if err != nil {
		return nil, err
	}
	conv.Pending = pending
	return &conv, nil
}

func requireAffected(result sql.Result, kind error, op, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(kind, op, fmt.Errorf("no row for %s", id))
	}
	return nil
}
