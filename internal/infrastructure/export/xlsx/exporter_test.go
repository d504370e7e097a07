package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

func TestExportDraftsWritesHeaderAndRows(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	drafts := []domain.ActionDraft{
		{
			ID:             "d-1",
			ConversationID: "conv-1",
			UserID:         "user-1",
			ActionType:     domain.ActionCreateRFQ,
			Status:         domain.DraftStatusDrafted,
			Payload:        map[string]any{"title": "Test RFQ"},
			Confidence:     0.9,
			CreatedAt:      created,
		},
		{
			ID:          "d-2",
			ActionType:  domain.ActionApproveInvoicePayment,
			Status:      domain.DraftStatusApproved,
			NeedsReview: true,
			ApprovedBy:  "reviewer-1",
			ApprovedAt:  &created,
			CreatedAt:   created,
		},
	}

	var buf bytes.Buffer
	if err := NewExporter().ExportDrafts(&buf, drafts); err != nil {
		t.Fatalf("ExportDrafts() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Draft ID" || rows[1][0] != "d-1" || rows[1][1] != "create_rfq" {
		t.Fatalf("unexpected rows: %v", rows[:2])
	}
	if rows[1][11] != `{"title":"Test RFQ"}` {
		t.Fatalf("unexpected payload cell: %q", rows[1][11])
	}
	if rows[2][8] != "reviewer-1" || rows[2][9] != "2026-03-04T05:06:07Z" {
		t.Fatalf("unexpected approval cells: %v", rows[2])
	}
}

func TestExportDraftsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewExporter().ExportDrafts(&buf, nil); err != nil {
		t.Fatalf("ExportDrafts() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a workbook even without drafts")
	}
}
