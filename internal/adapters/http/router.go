package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/action-orchestrator/internal/config"
	"github.com/kirillkom/action-orchestrator/internal/core/domain"
	"github.com/kirillkom/action-orchestrator/internal/core/ports"
	"github.com/kirillkom/action-orchestrator/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

type Router struct {
	turns         ports.TurnHandler
	conversations ports.ConversationService
	drafts        ports.DraftReviewService
	metrics       *metrics.HTTPServerMetrics
	cfg           config.Config
}

func NewRouter(
	turns ports.TurnHandler,
	conversations ports.ConversationService,
	drafts ports.DraftReviewService,
	httpMetrics *metrics.HTTPServerMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		turns:         turns,
		conversations: conversations,
		drafts:        drafts,
		metrics:       httpMetrics,
		cfg:           cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", rt.metrics.Handler())

	mux.HandleFunc("POST /v1/conversations", rt.openConversation)
	mux.HandleFunc("GET /v1/conversations/{conversation_id}", rt.getConversation)
	mux.HandleFunc("POST /v1/conversations/{conversation_id}/messages", rt.postMessage)
	mux.HandleFunc("GET /v1/conversations/{conversation_id}/messages", rt.listMessages)
	mux.HandleFunc("POST /v1/conversations/{conversation_id}/close", rt.closeConversation)

	mux.HandleFunc("GET /v1/drafts", rt.listDrafts)
	mux.HandleFunc("GET /v1/drafts/export", rt.exportDrafts)
	mux.HandleFunc("GET /v1/drafts/{draft_id}", rt.getDraft)
	mux.HandleFunc("POST /v1/drafts/{draft_id}/approve", rt.approveDraft)
	mux.HandleFunc("POST /v1/drafts/{draft_id}/reject", rt.rejectDraft)

	var handler http.Handler = mux
	handler = authMiddleware(handler, rt.cfg.APIKey)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rt.metrics.Middleware(handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type identity struct {
	TenantID string
	UserID   string
}

func identityFromRequest(r *http.Request) (identity, error) {
	id := identity{
		TenantID: strings.TrimSpace(r.Header.Get(tenantIDHeader)),
		UserID:   strings.TrimSpace(r.Header.Get(userIDHeader)),
	}
	if id.TenantID == "" || id.UserID == "" {
		return identity{}, domain.WrapError(
			domain.ErrInvalidInput,
			"identify caller",
			fmt.Errorf("%s and %s headers are required", tenantIDHeader, userIDHeader),
		)
	}
	return id, nil
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
