package xlsx

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

const sheetName = "Drafts"

var header = []any{
	"Draft ID", "Action", "Status", "Needs review", "Confidence", "Conversation",
	"Requested by", "Created at", "Approved by", "Approved at", "Rejection reason", "Payload",
}

// Exporter renders drafts as a single-sheet workbook for offline review.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ExportDrafts(w io.Writer, drafts []domain.ActionDraft) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 20); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	for i, draft := range drafts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := draftRow(draft)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write draft %s: %w", draft.ID, err)
		}
	}

	if len(drafts) > 0 {
		if err := f.AutoFilter(sheetName, fmt.Sprintf("A1:%s%d", lastCol, len(drafts)+1), nil); err != nil {
			return fmt.Errorf("set auto filter: %w", err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func draftRow(draft domain.ActionDraft) []any {
	payload, err := json.Marshal(draft.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	approvedAt := ""
	if draft.ApprovedAt != nil {
		approvedAt = draft.ApprovedAt.UTC().Format(time.RFC3339)
	}
	return []any{
		draft.ID,
		string(draft.ActionType),
		string(draft.Status),
		draft.NeedsReview,
		draft.Confidence,
		draft.ConversationID,
		draft.UserID,
		draft.CreatedAt.UTC().Format(time.RFC3339),
		draft.ApprovedBy,
		approvedAt,
		draft.RejectionReason,
		string(payload),
	}
}
