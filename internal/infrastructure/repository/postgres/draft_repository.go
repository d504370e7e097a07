package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type DraftRepository struct {
	db *sql.DB
}

func NewDraftRepository(db *sql.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

const draftColumns = `id, tenant_id, user_id, conversation_id, action_type, input, payload, citations, confidence,
needs_review, status, COALESCE(idempotency_key, ''), COALESCE(approved_by, ''), approved_at,
COALESCE(rejected_by, ''), COALESCE(rejection_reason, ''), created_at, updated_at`

func (r *DraftRepository) CreateDraft(ctx context.Context, draft *domain.ActionDraft) error {
	inputJSON, err := marshalObject(draft.Input)
	if err != nil {
		return fmt.Errorf("marshal draft input: %w", err)
	}
	payloadJSON, err := marshalObject(draft.Payload)
	if err != nil {
		return fmt.Errorf("marshal draft payload: %w", err)
	}
	citations := draft.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal draft citations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO action_drafts (
	id, tenant_id, user_id, conversation_id, action_type, input, payload, citations, confidence,
	needs_review, status, idempotency_key, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`, draft.ID, draft.TenantID, draft.UserID, draft.ConversationID, string(draft.ActionType),
		inputJSON, payloadJSON, citationsJSON, draft.Confidence, draft.NeedsReview,
		string(draft.Status), nullableString(draft.IdempotencyKey), draft.CreatedAt, draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

func (r *DraftRepository) GetDraft(ctx context.Context, id string) (*domain.ActionDraft, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM action_drafts WHERE id = $1`, id)
	draft, err := scanDraft(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get draft", fmt.Errorf("draft %s", id))
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return draft, nil
}

// UpdateDraftStatus writes the review fields only while the stored status equals from.
func (r *DraftRepository) UpdateDraftStatus(ctx context.Context, draft *domain.ActionDraft, from domain.DraftStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE action_drafts
SET status = $3, approved_by = $4, approved_at = $5, rejected_by = $6, rejection_reason = $7, updated_at = $8
WHERE id = $1 AND status = $2
`, draft.ID, string(from), string(draft.Status), nullableString(draft.ApprovedBy), nullableTime(draft.ApprovedAt),
		nullableString(draft.RejectedBy), nullableString(draft.RejectionReason), draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update draft status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update draft rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	row := r.db.QueryRowContext(ctx, `SELECT status FROM action_drafts WHERE id = $1`, draft.ID)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrNotFound, "update draft status", fmt.Errorf("draft %s", draft.ID))
		}
		return fmt.Errorf("update draft status lookup: %w", err)
	}
	return domain.WrapError(domain.ErrDraftState, "update draft status",
		fmt.Errorf("draft %s is %s, expected %s", draft.ID, current, from))
}

func (r *DraftRepository) ListDrafts(ctx context.Context, filter domain.DraftFilter) ([]domain.ActionDraft, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if filter.Status == "" {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+draftColumns+`
FROM action_drafts
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2
`, filter.TenantID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+draftColumns+`
FROM action_drafts
WHERE tenant_id = $1 AND status = $2
ORDER BY created_at DESC
LIMIT $3
`, filter.TenantID, string(filter.Status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ActionDraft, 0)
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		out = append(out, *draft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*domain.ActionDraft, error) {
	var draft domain.ActionDraft
	var actionType, status string
	var inputRaw, payloadRaw, citationsRaw []byte
	var approvedAt sql.NullTime
	if err := row.Scan(
		&draft.ID,
		&draft.TenantID,
		&draft.UserID,
		&draft.ConversationID,
		&actionType,
		&inputRaw,
		&payloadRaw,
		&citationsRaw,
		&draft.Confidence,
		&draft.NeedsReview,
		&status,
		&draft.IdempotencyKey,
		&draft.ApprovedBy,
		&approvedAt,
		&draft.RejectedBy,
		&draft.RejectionReason,
		&draft.CreatedAt,
		&draft.UpdatedAt,
	); err != nil {
		return nil, err
	}
	draft.ActionType = domain.ActionType(actionType)
	draft.Status = domain.DraftStatus(status)
	if approvedAt.Valid {
		at := approvedAt.Time.UTC()
		draft.ApprovedAt = &at
	}
	if err := unmarshalIfPresent(inputRaw, &draft.Input); err != nil {
		return nil, fmt.Errorf("unmarshal draft input: %w", err)
	}
	if err := unmarshalIfPresent(payloadRaw, &draft.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal draft payload: %w", err)
	}
	if err := unmarshalIfPresent(citationsRaw, &draft.Citations); err != nil {
		return nil, fmt.Errorf("unmarshal draft citations: %w", err)
	}
	return &draft, nil
}

func marshalObject(v map[string]any) ([]byte, error) {
	if v == nil {
		v = map[string]any{}
	}
	return json.Marshal(v)
}

func unmarshalIfPresent(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

