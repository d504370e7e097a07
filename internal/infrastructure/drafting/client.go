package drafting

import (
	"context"
	"fmt"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/httpjson"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/resilience"
)

// Client calls the drafting collaborator. Requests carry the turn's idempotency key so a
// replayed turn resolves to the same draft on the collaborator side; the call itself is
// never retried here.
type Client struct {
	http *httpjson.Client
}

func New(baseURL string, opts ...httpjson.Option) *Client {
	return &Client{http: httpjson.New(resilience.CollaboratorDrafting, baseURL, opts...)}
}

type draftActionRequest struct {
	TenantID       string            `json:"tenant_id"`
	UserID         string            `json:"user_id"`
	ConversationID string            `json:"conversation_id"`
	ActionType     domain.ActionType `json:"action_type"`
	Args           map[string]any    `json:"args"`
}

func (c *Client) DraftAction(ctx context.Context, req domain.DraftRequest) (domain.DraftProposal, error) {
	if req.ActionType == "" {
		return domain.DraftProposal{}, domain.WrapError(domain.ErrInvalidInput, "draft action", fmt.Errorf("action type is required"))
	}
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	var proposal domain.DraftProposal
	err := c.http.Post(ctx, httpjson.Request{
		Operation: "draft_action",
		Path:      "/v1/drafts",
		Body: draftActionRequest{
			TenantID:       req.TenantID,
			UserID:         req.UserID,
			ConversationID: req.ConversationID,
			ActionType:     req.ActionType,
			Args:           req.Args,
		},
		Headers: headers,
	}, &proposal)
	if err != nil {
		return domain.DraftProposal{}, err
	}
	if proposal.Payload == nil {
		return domain.DraftProposal{}, domain.WrapError(domain.ErrUpstream, "draft action", fmt.Errorf("collaborator returned no payload"))
	}
	if proposal.Confidence < 0 || proposal.Confidence > 1 {
		return domain.DraftProposal{}, domain.WrapError(domain.ErrUpstream, "draft action",
			fmt.Errorf("confidence %v out of range", proposal.Confidence))
	}
	return proposal, nil
}
