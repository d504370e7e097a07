package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

// ToolSpec maps a planner tool name onto the drafting vocabulary.
type ToolSpec struct {
	Name      string
	Action    domain.ActionType
	Label     string
	Required  []string
	Questions map[string]string
}

var toolCatalog = map[string]ToolSpec{
	"draft_rfq": {
		Name:     "draft_rfq",
		Action:   domain.ActionCreateRFQ,
		Label:    "RFQ",
		Required: []string{"rfq_title"},
		Questions: map[string]string{
			"rfq_title": "What should be the title of the RFQ?",
		},
	},
	"draft_purchase_order": {
		Name:     "draft_purchase_order",
		Action:   domain.ActionCreatePurchaseOrder,
		Label:    "purchase order",
		Required: []string{"supplier"},
		Questions: map[string]string{
			"supplier": "Which supplier should the purchase order go to?",
		},
	},
	"update_invoice": {
		Name:     "update_invoice",
		Action:   domain.ActionUpdateInvoice,
		Label:    "invoice update",
		Required: []string{"invoice_id"},
		Questions: map[string]string{
			"invoice_id": "Which invoice should be updated?",
		},
	},
	"match_receipt": {
		Name:     "match_receipt",
		Action:   domain.ActionMatchReceipt,
		Label:    "receipt match",
		Required: []string{"receipt_id", "invoice_id"},
		Questions: map[string]string{
			"receipt_id": "Which receipt should be matched?",
			"invoice_id": "Which invoice should the receipt be matched to?",
		},
	},
	"approve_invoice": {
		Name:     "approve_invoice",
		Action:   domain.ActionApproveInvoicePayment,
		Label:    "invoice payment approval",
		Required: []string{"invoice_id"},
		Questions: map[string]string{
			"invoice_id": "Which invoice should be approved for payment?",
		},
	},
	"release_payment": {
		Name:     "release_payment",
		Action:   domain.ActionReleaseScheduledPayment,
		Label:    "scheduled payment release",
		Required: []string{"payment_id"},
		Questions: map[string]string{
			"payment_id": "Which scheduled payment should be released?",
		},
	},
	"issue_purchase_order": {
		Name:     "issue_purchase_order",
		Action:   domain.ActionIssuePurchaseOrder,
		Label:    "purchase order issue",
		Required: []string{"purchase_order_id"},
		Questions: map[string]string{
			"purchase_order_id": "Which purchase order should be issued?",
		},
	},
}

// LookupTool resolves a planner tool name. Names are matched case-insensitively.
func LookupTool(name string) (ToolSpec, bool) {
	spec, ok := toolCatalog[strings.ToLower(strings.TrimSpace(name))]
	return spec, ok
}

// Tools returns the catalog sorted by name, for prompt construction.
func Tools() []ToolSpec {
	out := make([]ToolSpec, 0, len(toolCatalog))
	for _, spec := range toolCatalog {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MissingArgs lists required arguments that are absent or blank, in declaration order.
func (s ToolSpec) MissingArgs(args map[string]any) []string {
	missing := make([]string, 0, len(s.Required))
	for _, name := range s.Required {
		if isBlankArg(args, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Question builds the clarifying question for the given missing arguments.
func (s ToolSpec) Question(missing []string) string {
	questions := make([]string, 0, len(missing))
	for _, name := range missing {
		if q, ok := s.Questions[name]; ok {
			questions = append(questions, q)
			continue
		}
		questions = append(questions, fmt.Sprintf("What should be the %s of the %s?", humanizeArg(name), s.Label))
	}
	return strings.Join(questions, " ")
}

func knownAction(actionType domain.ActionType) bool {
	for _, spec := range toolCatalog {
		if spec.Action == actionType {
			return true
		}
	}
	return false
}

func isBlankArg(args map[string]any, name string) bool {
	value, ok := args[name]
	if !ok || value == nil {
		return true
	}
	if s, isString := value.(string); isString {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func humanizeArg(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "_", " ")
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
