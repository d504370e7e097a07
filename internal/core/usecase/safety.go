package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type riskCategory string

const (
	riskPayment            riskCategory = "payment"
	riskPurchaseCommitment riskCategory = "purchase commitment"
)

var unsafeActions = map[domain.ActionType]riskCategory{
	domain.ActionApproveInvoicePayment:   riskPayment,
	domain.ActionReleaseScheduledPayment: riskPayment,
	domain.ActionIssuePurchaseOrder:      riskPurchaseCommitment,
}

// ClassifyAction decides whether a proposed action can be shown as a plain draft or
// needs an explicit confirmation. Only the fixed unsafe set is ever unsafe.
func ClassifyAction(actionType domain.ActionType, payload map[string]any) domain.SafetyVerdict {
	category, unsafe := unsafeActions[actionType]
	if !unsafe {
		return domain.SafetyVerdict{ActionType: actionType, Safe: true}
	}
	return domain.SafetyVerdict{
		ActionType:      actionType,
		Safe:            false,
		Impact:          describeImpact(actionType, payload),
		Acknowledgement: acknowledgementFor(category),
	}
}

// IsUnsafeAction reports whether actionType belongs to the unsafe set.
func IsUnsafeAction(actionType domain.ActionType) bool {
	_, unsafe := unsafeActions[actionType]
	return unsafe
}

func describeImpact(actionType domain.ActionType, payload map[string]any) string {
	var b strings.Builder
	switch actionType {
	case domain.ActionApproveInvoicePayment:
		b.WriteString("Approving this invoice authorizes a payment")
		if ref := firstString(payload, "invoice_number", "invoice_id"); ref != "" {
			b.WriteString(" for invoice " + ref)
		}
	case domain.ActionReleaseScheduledPayment:
		b.WriteString("Releasing this scheduled payment sends funds")
		if ref := firstString(payload, "payment_id", "payment_reference"); ref != "" {
			b.WriteString(" for payment " + ref)
		}
	case domain.ActionIssuePurchaseOrder:
		b.WriteString("Issuing this purchase order commits the company to buy")
		if ref := firstString(payload, "po_number", "purchase_order_id"); ref != "" {
			b.WriteString(" under purchase order " + ref)
		}
	default:
		b.WriteString("This action cannot be undone")
	}
	if party := firstString(payload, "vendor", "supplier", "payee"); party != "" {
		b.WriteString(" to " + party)
	}
	currency := strings.ToUpper(firstString(payload, "currency", "currency_code"))
	amount, hasAmount := firstAmount(payload, "amount", "total_amount", "total")
	switch {
	case hasAmount && currency != "":
		b.WriteString(" of " + amount + " " + currency)
	case hasAmount:
		b.WriteString(" of " + amount)
	case currency != "":
		b.WriteString(" in " + currency)
	}
	b.WriteString(".")
	return b.String()
}

func acknowledgementFor(category riskCategory) string {
	switch category {
	case riskPayment:
		return "I understand this payment cannot be reversed once it is executed."
	case riskPurchaseCommitment:
		return "I understand this creates a binding purchase commitment with the supplier."
	default:
		return "I understand this action cannot be undone."
	}
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(stringInput(payload, key, "")); value != "" {
			return value
		}
	}
	return ""
}

func firstAmount(payload map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case float64:
			return strconv.FormatFloat(typed, 'f', 2, 64), true
		case int:
			return strconv.FormatFloat(float64(typed), 'f', 2, 64), true
		case int64:
			return strconv.FormatFloat(float64(typed), 'f', 2, 64), true
		case string:
			trimmed := strings.TrimSpace(typed)
			if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
				return strconv.FormatFloat(parsed, 'f', 2, 64), true
			}
			if trimmed != "" {
				return trimmed, true
			}
		default:
			return fmt.Sprint(typed), true
		}
	}
	return "", false
}
