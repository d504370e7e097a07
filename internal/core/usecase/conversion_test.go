package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type fakeConverter struct {
	converted []string
	approvers []string
	err       error
}

func (f *fakeConverter) Convert(_ context.Context, draft domain.ActionDraft, approver string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.converted = append(f.converted, draft.ID)
	f.approvers = append(f.approvers, approver)
	return "rec-" + draft.ID, nil
}

func TestProcessApprovedConvertsApprovedDraft(t *testing.T) {
	store := newFakeDraftStore()
	converter := &fakeConverter{}
	review := NewDraftReviewUseCase(store, &fakePublisher{}, &fakeExporter{})
	uc := NewDraftConversionUseCase(store, converter)
	seedDraft(store, "d1", domain.ActionCreateRFQ)
	if _, err := review.Approve(context.Background(), "tenant-1", "d1", "alice", false); err != nil {
		t.Fatalf("approve: %v", err)
	}

	err := uc.ProcessApproved(context.Background(), domain.DraftEvent{Type: domain.DraftEventApproved, DraftID: "d1", TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(converter.converted) != 1 || converter.approvers[0] != "alice" {
		t.Fatalf("unexpected conversions: %+v", converter)
	}
}

func TestProcessApprovedSkipsOtherEventsAndStates(t *testing.T) {
	store := newFakeDraftStore()
	converter := &fakeConverter{}
	uc := NewDraftConversionUseCase(store, converter)
	seedDraft(store, "d1", domain.ActionCreateRFQ)

	if err := uc.ProcessApproved(context.Background(), domain.DraftEvent{Type: domain.DraftEventCreated, DraftID: "d1", TenantID: "tenant-1"}); err != nil {
		t.Fatalf("created event: %v", err)
	}
	if err := uc.ProcessApproved(context.Background(), domain.DraftEvent{Type: domain.DraftEventApproved, DraftID: "d1", TenantID: "tenant-1"}); err != nil {
		t.Fatalf("drafted draft: %v", err)
	}
	if len(converter.converted) != 0 {
		t.Fatalf("only approved drafts may be converted")
	}
	if err := uc.ProcessApproved(context.Background(), domain.DraftEvent{Type: domain.DraftEventApproved, DraftID: "d1", TenantID: "tenant-9"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected tenant mismatch error, got %v", err)
	}
}

func TestProcessApprovedReturnsConverterError(t *testing.T) {
	store := newFakeDraftStore()
	uc := NewDraftConversionUseCase(store, &fakeConverter{err: errors.New("erp down")})
	seedDraft(store, "d1", domain.ActionCreateRFQ)
	draft := store.drafts["d1"]
	draft.Status = domain.DraftStatusApproved
	store.drafts["d1"] = draft

	if err := uc.ProcessApproved(context.Background(), domain.DraftEvent{Type: domain.DraftEventApproved, DraftID: "d1", TenantID: "tenant-1"}); err == nil {
		t.Fatalf("expected converter error")
	}
}
