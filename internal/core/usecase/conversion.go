package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/core/ports"
)

// DraftConversionUseCase hands approved drafts to the converter collaborator.
type DraftConversionUseCase struct {
	drafts    ports.DraftStore
	converter ports.DraftConverter
}

func NewDraftConversionUseCase(drafts ports.DraftStore, converter ports.DraftConverter) *DraftConversionUseCase {
	return &DraftConversionUseCase{drafts: drafts, converter: converter}
}

func (uc *DraftConversionUseCase) ProcessApproved(ctx context.Context, event domain.DraftEvent) error {
	if event.Type != domain.DraftEventApproved {
		return nil
	}
	draft, err := uc.drafts.GetDraft(ctx, event.DraftID)
	if err != nil {
		return fmt.Errorf("load approved draft: %w", err)
	}
	if draft.TenantID != event.TenantID {
		return domain.WrapError(domain.ErrInvalidInput, "process approved draft",
			fmt.Errorf("event tenant %s does not own draft %s", event.TenantID, draft.ID))
	}
	if draft.Status != domain.DraftStatusApproved {
		slog.WarnContext(ctx, "draft_conversion_skipped", "draft_id", draft.ID, "status", string(draft.Status))
		return nil
	}

	ref, err := uc.converter.Convert(ctx, *draft, draft.ApprovedBy)
	if err != nil {
		return fmt.Errorf("convert draft %s: %w", draft.ID, err)
	}
	slog.InfoContext(ctx, "draft_converted",
		"draft_id", draft.ID,
		"action_type", string(draft.ActionType),
		"record_ref", ref,
	)
	return nil
}
