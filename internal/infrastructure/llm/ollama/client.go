package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/action-orchestrator/internal/core/contract"
	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/httpjson"
	"github.com/kirillkom/action-orchestrator/internal/infrastructure/resilience"
)

type Client struct {
	http  *httpjson.Client
	model string
}

func New(baseURL, model string, opts ...httpjson.Option) *Client {
	return &Client{
		http:  httpjson.New(resilience.CollaboratorOllama, baseURL, opts...),
		model: model,
	}
}

// ToolHint describes one tool to the planner model.
type ToolHint struct {
	Name     string
	Label    string
	Required []string
}

type Planner struct {
	client *Client
	tools  []ToolHint
}

func NewPlanner(client *Client, tools []ToolHint) *Planner {
	return &Planner{client: client, tools: tools}
}

func (p *Planner) Plan(ctx context.Context, req domain.PlannerRequest) (domain.PlannerDecision, error) {
	raw, err := p.client.generateJSON(ctx, "plan", buildPlannerPrompt(p.tools, req))
	if err != nil {
		return domain.PlannerDecision{}, err
	}
	return contract.ParsePlannerDecision(raw)
}

type Responder struct {
	client         *Client
	workspaceTools []string
}

func NewResponder(client *Client, workspaceTools []string) *Responder {
	return &Responder{client: client, workspaceTools: workspaceTools}
}

func (r *Responder) Respond(ctx context.Context, req domain.ResponderRequest) (domain.ResponderReply, error) {
	prompt, err := buildResponderPrompt(r.workspaceTools, req)
	if err != nil {
		return domain.ResponderReply{}, fmt.Errorf("build responder prompt: %w", err)
	}
	raw, err := r.client.generateJSON(ctx, "respond", prompt)
	if err != nil {
		return domain.ResponderReply{}, err
	}
	return contract.ParseResponderReply(raw)
}

func (c *Client) generateJSON(ctx context.Context, operation, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0,
		},
	}
	var response struct {
		Response string `json:"response"`
	}
	err := c.http.Post(ctx, httpjson.Request{
		Operation: operation,
		Path:      "/api/generate",
		Body:      reqBody,
	}, &response)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
