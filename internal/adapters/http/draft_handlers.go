package httpadapter

import (
	"bytes"
	"net/http"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type approveDraftRequest struct {
	Approver     string `json:"approver"`
	Acknowledged bool   `json:"acknowledged"`
}

type rejectDraftRequest struct {
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason"`
}

func draftFilterFromRequest(r *http.Request, tenantID string) (domain.DraftFilter, error) {
	status, err := bindQueryString(r, "status")
	if err != nil {
		return domain.DraftFilter{}, err
	}
	limit, err := bindQueryInt(r, "limit")
	if err != nil {
		return domain.DraftFilter{}, err
	}
	return domain.DraftFilter{TenantID: tenantID, Status: domain.DraftStatus(status), Limit: limit}, nil
}

func (rt *Router) listDrafts(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := draftFilterFromRequest(r, caller.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	drafts, err := rt.drafts.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if drafts == nil {
		drafts = []domain.ActionDraft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

func (rt *Router) exportDrafts(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := draftFilterFromRequest(r, caller.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Buffered so a failed export can still produce a JSON error.
	var buf bytes.Buffer
	if err := rt.drafts.Export(r.Context(), filter, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="drafts.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) getDraft(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	draftID, err := bindPathString(r, "draft_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	draft, err := rt.drafts.Get(r.Context(), caller.TenantID, draftID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (rt *Router) approveDraft(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	draftID, err := bindPathString(r, "draft_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req approveDraftRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Approver == "" {
		req.Approver = caller.UserID
	}
	draft, err := rt.drafts.Approve(r.Context(), caller.TenantID, draftID, req.Approver, req.Acknowledged)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.metrics.RecordDraftReview("approved", draft.ActionType)
	writeJSON(w, http.StatusOK, draft)
}

func (rt *Router) rejectDraft(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	draftID, err := bindPathString(r, "draft_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rejectDraftRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Reviewer == "" {
		req.Reviewer = caller.UserID
	}
	draft, err := rt.drafts.Reject(r.Context(), caller.TenantID, draftID, req.Reviewer, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.metrics.RecordDraftReview("rejected", draft.ActionType)
	writeJSON(w, http.StatusOK, draft)
}
