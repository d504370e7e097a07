package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

func TestClassifyActionSafeTypes(t *testing.T) {
	for _, actionType := range []domain.ActionType{
		domain.ActionCreateRFQ,
		domain.ActionCreatePurchaseOrder,
		domain.ActionUpdateInvoice,
		domain.ActionMatchReceipt,
	} {
		verdict := ClassifyAction(actionType, map[string]any{"amount": 10.0, "currency": "USD"})
		if !verdict.Safe || verdict.Impact != "" || verdict.Acknowledgement != "" {
			t.Fatalf("expected %s to be safe, got %+v", actionType, verdict)
		}
	}
}

func TestClassifyActionImpactText(t *testing.T) {
	verdict := ClassifyAction(domain.ActionApproveInvoicePayment, map[string]any{
		"invoice_number": "INV-42",
		"vendor":         "Acme",
		"amount":         "1999.9",
		"currency":       "eur",
	})
	if verdict.Safe {
		t.Fatalf("expected unsafe verdict")
	}
	want := "Approving this invoice authorizes a payment for invoice INV-42 to Acme of 1999.90 EUR."
	if verdict.Impact != want {
		t.Fatalf("unexpected impact:\n got %q\nwant %q", verdict.Impact, want)
	}
}

func TestClassifyActionWithoutAmount(t *testing.T) {
	verdict := ClassifyAction(domain.ActionIssuePurchaseOrder, map[string]any{"po_number": "PO-7"})
	if verdict.Safe {
		t.Fatalf("expected unsafe verdict")
	}
	if strings.Contains(verdict.Impact, " of ") {
		t.Fatalf("impact must not invent an amount: %q", verdict.Impact)
	}
	if !strings.Contains(verdict.Acknowledgement, "purchase commitment") {
		t.Fatalf("unexpected acknowledgement %q", verdict.Acknowledgement)
	}
}

func TestClassifyActionCurrencyWithoutAmount(t *testing.T) {
	verdict := ClassifyAction(domain.ActionReleaseScheduledPayment, map[string]any{
		"payment_id": "PAY-9",
		"currency":   "usd",
	})
	want := "Releasing this scheduled payment sends funds for payment PAY-9 in USD."
	if verdict.Impact != want {
		t.Fatalf("unexpected impact:\n got %q\nwant %q", verdict.Impact, want)
	}
}
