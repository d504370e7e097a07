package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/core/ports"
)

const (
	defaultDraftListLimit = 100
	maxDraftListLimit     = 1000
)

// DraftReviewUseCase is the human side of the draft lifecycle.
type DraftReviewUseCase struct {
	drafts   ports.DraftStore
	events   ports.DraftEventPublisher
	exporter ports.DraftExporter
	now      func() time.Time
}

func NewDraftReviewUseCase(drafts ports.DraftStore, events ports.DraftEventPublisher, exporter ports.DraftExporter) *DraftReviewUseCase {
	return &DraftReviewUseCase{
		drafts:   drafts,
		events:   events,
		exporter: exporter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *DraftReviewUseCase) Get(ctx context.Context, tenantID, draftID string) (*domain.ActionDraft, error) {
	draft, err := uc.drafts.GetDraft(ctx, strings.TrimSpace(draftID))
	if err != nil {
		return nil, err
	}
	if draft.TenantID != strings.TrimSpace(tenantID) {
		return nil, domain.WrapError(domain.ErrNotFound, "get draft", fmt.Errorf("draft %s not found", draftID))
	}
	return draft, nil
}

func (uc *DraftReviewUseCase) List(ctx context.Context, filter domain.DraftFilter) ([]domain.ActionDraft, error) {
	filter, err := normalizeDraftFilter(filter)
	if err != nil {
		return nil, err
	}
	drafts, err := uc.drafts.ListDrafts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	return drafts, nil
}

// Approve moves a drafted draft to approved. Unsafe action types require the reviewer to
// acknowledge the impact.
func (uc *DraftReviewUseCase) Approve(ctx context.Context, tenantID, draftID, approver string, acknowledged bool) (*domain.ActionDraft, error) {
	const op = "approve draft"
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("approver is required"))
	}
	draft, err := uc.Get(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != domain.DraftStatusDrafted {
		return nil, domain.WrapError(domain.ErrDraftState, op, fmt.Errorf("draft %s is %s", draft.ID, draft.Status))
	}
	if IsUnsafeAction(draft.ActionType) && !acknowledged {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("%s requires an explicit acknowledgement", draft.ActionType))
	}

	now := uc.now()
	draft.Status = domain.DraftStatusApproved
	draft.ApprovedBy = approver
	draft.ApprovedAt = &now
	draft.UpdatedAt = now
	if err := uc.drafts.UpdateDraftStatus(ctx, draft, domain.DraftStatusDrafted); err != nil {
		return nil, fmt.Errorf("update draft status: %w", err)
	}
	uc.publish(ctx, draft, domain.DraftEventApproved, approver)
	return draft, nil
}

func (uc *DraftReviewUseCase) Reject(ctx context.Context, tenantID, draftID, reviewer, reason string) (*domain.ActionDraft, error) {
	const op = "reject draft"
	reviewer, reason = strings.TrimSpace(reviewer), strings.TrimSpace(reason)
	if reviewer == "" || reason == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("reviewer and reason are required"))
	}
	draft, err := uc.Get(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != domain.DraftStatusDrafted {
		return nil, domain.WrapError(domain.ErrDraftState, op, fmt.Errorf("draft %s is %s", draft.ID, draft.Status))
	}

	draft.Status = domain.DraftStatusRejected
	draft.RejectedBy = reviewer
	draft.RejectionReason = reason
	draft.UpdatedAt = uc.now()
	if err := uc.drafts.UpdateDraftStatus(ctx, draft, domain.DraftStatusDrafted); err != nil {
		return nil, fmt.Errorf("update draft status: %w", err)
	}
	uc.publish(ctx, draft, domain.DraftEventRejected, reviewer)
	return draft, nil
}

// Export writes the tenant's drafts matching filter as a spreadsheet.
func (uc *DraftReviewUseCase) Export(ctx context.Context, filter domain.DraftFilter, w io.Writer) error {
	if filter.Limit <= 0 {
		filter.Limit = maxDraftListLimit
	}
	drafts, err := uc.List(ctx, filter)
	if err != nil {
		return err
	}
	if err := uc.exporter.ExportDrafts(w, drafts); err != nil {
		return fmt.Errorf("export drafts: %w", err)
	}
	return nil
}

// TODO: write draft events through an outbox table so approvals survive a broker outage.
func (uc *DraftReviewUseCase) publish(ctx context.Context, draft *domain.ActionDraft, eventType domain.DraftEventType, actor string) {
	if uc.events == nil {
		return
	}
	err := uc.events.PublishDraftEvent(ctx, domain.DraftEvent{
		Type:       eventType,
		DraftID:    draft.ID,
		TenantID:   draft.TenantID,
		ActionType: draft.ActionType,
		Actor:      actor,
		OccurredAt: draft.UpdatedAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "draft_event_publish_failed",
			"event", string(eventType),
			"draft_id", draft.ID,
			"error", err.Error(),
		)
	}
}

func normalizeDraftFilter(filter domain.DraftFilter) (domain.DraftFilter, error) {
	filter.TenantID = strings.TrimSpace(filter.TenantID)
	if filter.TenantID == "" {
		return filter, domain.WrapError(domain.ErrInvalidInput, "list drafts", fmt.Errorf("tenant_id is required"))
	}
	switch filter.Status {
	case "", domain.DraftStatusDrafted, domain.DraftStatusApproved, domain.DraftStatusRejected:
	default:
		return filter, domain.WrapError(domain.ErrInvalidInput, "list drafts", fmt.Errorf("unsupported status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultDraftListLimit
	}
	if filter.Limit > maxDraftListLimit {
		filter.Limit = maxDraftListLimit
	}
	return filter, nil
}
