package domain

import "time"

type ActionType string

const (
	ActionCreateRFQ               ActionType = "create_rfq"
	ActionCreatePurchaseOrder     ActionType = "create_purchase_order"
	ActionUpdateInvoice           ActionType = "update_invoice"
	ActionMatchReceipt            ActionType = "match_receipt"
	ActionApproveInvoicePayment   ActionType = "approve_invoice_payment"
	ActionReleaseScheduledPayment ActionType = "release_scheduled_payment"
	ActionIssuePurchaseOrder      ActionType = "issue_purchase_order"
)

type DraftStatus string

const (
	DraftStatusDrafted  DraftStatus = "drafted"
	DraftStatusApproved DraftStatus = "approved"
	DraftStatusRejected DraftStatus = "rejected"
)

type Citation struct {
	Source  string `json:"source"`
	Ref     string `json:"ref,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type ActionDraft struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	UserID          string         `json:"user_id"`
	ConversationID  string         `json:"conversation_id"`
	ActionType      ActionType     `json:"action_type"`
	Input           map[string]any `json:"input"`
	Payload         map[string]any `json:"payload"`
	Citations       []Citation     `json:"citations,omitempty"`
	Confidence      float64        `json:"confidence"`
	NeedsReview     bool           `json:"needs_review"`
	Status          DraftStatus    `json:"status"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
	ApprovedBy      string         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectedBy      string         `json:"rejected_by,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DraftProposal is what the drafting collaborator returns for an action.
type DraftProposal struct {
	Payload     map[string]any `json:"payload"`
	Citations   []Citation     `json:"citations,omitempty"`
	Confidence  float64        `json:"confidence"`
	NeedsReview bool           `json:"needs_review"`
}

type DraftRequest struct {
	TenantID       string         `json:"tenant_id"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	ActionType     ActionType     `json:"action_type"`
	Args           map[string]any `json:"args"`
	IdempotencyKey string         `json:"-"`
}

type DraftFilter struct {
	TenantID string
	Status   DraftStatus
	Limit    int
}

// SafetyVerdict is the classifier result for a proposed action.
type SafetyVerdict struct {
	ActionType      ActionType `json:"action_type"`
	Safe            bool       `json:"safe"`
	Impact          string     `json:"impact,omitempty"`
	Acknowledgement string     `json:"acknowledgement,omitempty"`
}

type DraftEventType string

const (
	DraftEventCreated  DraftEventType = "draft.created"
	DraftEventApproved DraftEventType = "draft.approved"
	DraftEventRejected DraftEventType = "draft.rejected"
)

type DraftEvent struct {
	Type       DraftEventType `json:"type"`
	DraftID    string         `json:"draft_id"`
	TenantID   string         `json:"tenant_id"`
	ActionType ActionType     `json:"action_type"`
	Actor      string         `json:"actor,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
