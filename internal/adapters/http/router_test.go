package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/action-orchestrator/internal/config"
	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/observability/metrics"
)

type fakeTurnHandler struct {
	lastReq domain.TurnRequest
	result  *domain.TurnResult
	err     error
}

func (f *fakeTurnHandler) HandleMessage(_ context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.TurnResult{
		Route: "planner",
		Envelope: domain.ResponseEnvelope{
			Type:           domain.EnvelopeMessage,
			ConversationID: req.ConversationID,
			Message:        "ok",
		},
	}, nil
}

type fakeConversationService struct {
	conv       *domain.Conversation
	err        error
	closedID   string
	historyLim int
}

func (f *fakeConversationService) Open(_ context.Context, tenantID, userID, conversationID string) (*domain.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if conversationID == "" {
		conversationID = "generated"
	}
	return &domain.Conversation{ID: conversationID, TenantID: tenantID, UserID: userID, Status: domain.ConversationOpen}, nil
}

func (f *fakeConversationService) Get(context.Context, string, string, string) (*domain.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conv, nil
}

func (f *fakeConversationService) Close(_ context.Context, _, _, conversationID string) error {
	f.closedID = conversationID
	return f.err
}

func (f *fakeConversationService) History(_ context.Context, _, _, conversationID string, limit int) ([]domain.ConversationMessage, error) {
	f.historyLim = limit
	if f.err != nil {
		return nil, f.err
	}
	return []domain.ConversationMessage{{ID: "m1", ConversationID: conversationID, Role: domain.RoleUser, Content: "hi"}}, nil
}

type fakeDraftReviewService struct {
	drafts       map[string]*domain.ActionDraft
	lastFilter   domain.DraftFilter
	lastApprover string
	lastAck      bool
	approveErr   error
}

func (f *fakeDraftReviewService) Get(_ context.Context, tenantID, draftID string) (*domain.ActionDraft, error) {
	d, ok := f.drafts[draftID]
	if !ok || d.TenantID != tenantID {
		return nil, domain.WrapError(domain.ErrNotFound, "get draft", fmt.Errorf("draft %s not found", draftID))
	}
	return d, nil
}

func (f *fakeDraftReviewService) List(_ context.Context, filter domain.DraftFilter) ([]domain.ActionDraft, error) {
	f.lastFilter = filter
	return nil, nil
}

func (f *fakeDraftReviewService) Approve(ctx context.Context, tenantID, draftID, approver string, acknowledged bool) (*domain.ActionDraft, error) {
	f.lastApprover = approver
	f.lastAck = acknowledged
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	d, err := f.Get(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DraftStatusApproved
	d.ApprovedBy = approver
	return d, nil
}

func (f *fakeDraftReviewService) Reject(ctx context.Context, tenantID, draftID, reviewer, reason string) (*domain.ActionDraft, error) {
	d, err := f.Get(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DraftStatusRejected
	d.RejectedBy = reviewer
	d.RejectionReason = reason
	return d, nil
}

func (f *fakeDraftReviewService) Export(_ context.Context, filter domain.DraftFilter, w io.Writer) error {
	f.lastFilter = filter
	_, err := w.Write([]byte("xlsx-bytes"))
	return err
}

type testDeps struct {
	turns         *fakeTurnHandler
	conversations *fakeConversationService
	drafts        *fakeDraftReviewService
}

func newTestDeps() *testDeps {
	return &testDeps{
		turns:         &fakeTurnHandler{},
		conversations: &fakeConversationService{},
		drafts: &fakeDraftReviewService{drafts: map[string]*domain.ActionDraft{
			"d1": {ID: "d1", TenantID: "t1", ActionType: domain.ActionCreateRFQ, Status: domain.DraftStatusDrafted},
		}},
	}
}

func newTestHandlerWithDeps(cfg config.Config, deps *testDeps) http.Handler {
	return NewRouter(deps.turns, deps.conversations, deps.drafts, metrics.NewHTTPServerMetrics("test"), cfg).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestHandlerWithDeps(cfg, newTestDeps())
}

func newIdentifiedRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(tenantIDHeader, "t1")
	req.Header.Set(userIDHeader, "u1")
	return req
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestPostMessageReturnsEnvelope(t *testing.T) {
	deps := newTestDeps()
	handler := newTestHandlerWithDeps(config.Config{}, deps)

	req := newIdentifiedRequest(http.MethodPost, "/v1/conversations/c1/messages", map[string]any{
		"text":    "Call it Test RFQ",
		"context": map[string]any{"clarification": map[string]any{"id": "clr_1"}},
	})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	if body["type"] != string(domain.EnvelopeMessage) {
		t.Fatalf("unexpected envelope type: %v", body["type"])
	}
	if deps.turns.lastReq.ConversationID != "c1" || deps.turns.lastReq.TenantID != "t1" || deps.turns.lastReq.UserID != "u1" {
		t.Fatalf("identity not forwarded: %+v", deps.turns.lastReq)
	}
	if deps.turns.lastReq.Context.Clarification == nil || deps.turns.lastReq.Context.Clarification.ID != "clr_1" {
		t.Fatalf("context not forwarded: %+v", deps.turns.lastReq.Context)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestPostMessageWithoutIdentityReturns400(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages", strings.NewReader(`{"text":"hi"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["code"] != "invalid_input" {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
}

func TestPostMessageMapsClosedConversationTo409(t *testing.T) {
	deps := newTestDeps()
	deps.turns.err = domain.WrapError(domain.ErrConversationClosed, "handle message", fmt.Errorf("conversation c1 is closed"))
	handler := newTestHandlerWithDeps(config.Config{}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodPost, "/v1/conversations/c1/messages", map[string]any{"text": "hi"}))

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["code"] != "conversation_closed" {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
}

func TestPostMessageRejectsMalformedJSON(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/c1/messages", strings.NewReader("{"))
	req.Header.Set(tenantIDHeader, "t1")
	req.Header.Set(userIDHeader, "u1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestOpenConversationWithoutBody(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodPost, "/v1/conversations", nil))

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if body := decodeBody(t, res); body["id"] != "generated" {
		t.Fatalf("unexpected conversation id: %v", body["id"])
	}
}

func TestGetConversationOwnedByAnotherUserReturns403(t *testing.T) {
	deps := newTestDeps()
	deps.conversations.err = domain.WrapError(domain.ErrUnauthorized, "get conversation", fmt.Errorf("conversation c1 belongs to another user"))
	handler := newTestHandlerWithDeps(config.Config{}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodGet, "/v1/conversations/c1", nil))

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestListMessagesBindsLimit(t *testing.T) {
	deps := newTestDeps()
	handler := newTestHandlerWithDeps(config.Config{}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodGet, "/v1/conversations/c1/messages?limit=25", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if deps.conversations.historyLim != 25 {
		t.Fatalf("expected limit 25, got %d", deps.conversations.historyLim)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodGet, "/v1/conversations/c1/messages?limit=many", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed limit, got %d", res.Code)
	}
}

func TestCloseConversation(t *testing.T) {
	deps := newTestDeps()
	handler := newTestHandlerWithDeps(config.Config{}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodPost, "/v1/conversations/c9/close", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if deps.conversations.closedID != "c9" {
		t.Fatalf("expected c9 closed, got %q", deps.conversations.closedID)
	}
}

func TestApproveDraftDefaultsApproverToCaller(t *testing.T) {
	deps := newTestDeps()
	handler := newTestHandlerWithDeps(config.Config{}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodPost, "/v1/drafts/d1/approve", map[string]any{"acknowledged": true}))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if deps.drafts.lastApprover != "u1" || !deps.drafts.lastAck {
		t.Fatalf("unexpected approve args: approver=%q ack=%v", deps.drafts.lastApprover, deps.drafts.lastAck)
	}
	if body := decodeBody(t, res); body["status"] != string(domain.DraftStatusApproved) {
		t.Fatalf("unexpected status: %v", body["status"])
	}
}

func TestApproveDraftStateConflictReturns409(t *testing.T) {
	deps := newTestDeps()
	deps.drafts.approveErr = domain.WrapError(domain.ErrDraftState, "approve draft", fmt.Errorf("draft d1 is approved"))
	handler := newTestHandlerWithDeps(config.Config{}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodPost, "/v1/drafts/d1/approve", map[string]any{"approver": "boss"}))

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestGetDraftOfAnotherTenantReturns404(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := newIdentifiedRequest(http.MethodGet, "/v1/drafts/d1", nil)
	req.Header.Set(tenantIDHeader, "t2")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestRejectDraft(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodPost, "/v1/drafts/d1/reject", map[string]any{"reason": "wrong vendor"}))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["rejected_by"] != "u1" || body["rejection_reason"] != "wrong vendor" {
		t.Fatalf("unexpected rejection: %v", body)
	}
}

func TestExportDraftsWritesSpreadsheet(t *testing.T) {
	deps := newTestDeps()
	handler := newTestHandlerWithDeps(config.Config{}, deps)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodGet, "/v1/drafts/export?status=drafted", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != xlsxContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if res.Body.String() != "xlsx-bytes" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
	if deps.drafts.lastFilter.TenantID != "t1" || deps.drafts.lastFilter.Status != domain.DraftStatusDrafted {
		t.Fatalf("unexpected filter: %+v", deps.drafts.lastFilter)
	}
}

func TestAPIKeyRequiredOnV1Routes(t *testing.T) {
	handler := newTestHandler(config.Config{APIKey: "secret"})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newIdentifiedRequest(http.MethodGet, "/v1/drafts", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	req := newIdentifiedRequest(http.MethodGet, "/v1/drafts", nil)
	req.Header.Set("Authorization", "Bearer secret")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected healthz to bypass auth, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		kind error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnknownTool, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrPendingConflict, http.StatusConflict},
		{domain.ErrPendingNotFound, http.StatusConflict},
		{domain.ErrUpstream, http.StatusBadGateway},
		{domain.ErrTemporary, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := domain.WrapError(tc.kind, "op", fmt.Errorf("cause"))
		if got := mapErrorToHTTPStatus(err); got != tc.want {
			t.Fatalf("kind %v: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}
