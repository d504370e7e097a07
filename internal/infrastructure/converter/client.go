package converter

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/httpjson"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/resilience"
)

// Client hands approved drafts to the system of record. The draft id is the idempotency
// key, so redelivered approval events are safe to retry.
type Client struct {
	http *httpjson.Client
}

func New(baseURL string, opts ...httpjson.Option) *Client {
	return &Client{http: httpjson.New(resilience.CollaboratorConverter, baseURL, opts...)}
}

type convertRequest struct {
	Draft    domain.ActionDraft `json:"draft"`
	Approver string             `json:"approver"`
}

type convertResponse struct {
	RecordID string `json:"record_id"`
}

func (c *Client) Convert(ctx context.Context, draft domain.ActionDraft, approver string) (string, error) {
	var resp convertResponse
	err := c.http.Post(ctx, httpjson.Request{
		Operation: "convert",
		Path:      "/v1/conversions",
		Body:      convertRequest{Draft: draft, Approver: approver},
		Headers:   map[string]string{"Idempotency-Key": "draft:" + draft.ID},
	}, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.RecordID) == "" {
		return "", domain.WrapError(domain.ErrUpstream, "convert draft", fmt.Errorf("converter returned no record id for %s", draft.ID))
	}
	return resp.RecordID, nil
}
