package httpadapter

import (
	"net/http"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

type openConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type postMessageRequest struct {
	Text    string             `json:"text"`
	Context domain.TurnContext `json:"context"`
}

func (rt *Router) openConversation(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req openConversationRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	conv, err := rt.conversations.Open(r.Context(), caller.TenantID, caller.UserID, req.ConversationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (rt *Router) getConversation(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	conversationID, err := bindPathString(r, "conversation_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	conv, err := rt.conversations.Get(r.Context(), caller.TenantID, caller.UserID, conversationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// postMessage answers with the envelope. Error envelopes are still 200: the turn was
// recorded and the conversation can continue.
func (rt *Router) postMessage(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	conversationID, err := bindPathString(r, "conversation_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req postMessageRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := rt.turns.HandleMessage(r.Context(), domain.TurnRequest{
		TenantID:       caller.TenantID,
		UserID:         caller.UserID,
		ConversationID: conversationID,
		Text:           req.Text,
		Context:        req.Context,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.metrics.RecordTurn(result)
	writeJSON(w, http.StatusOK, result.Envelope)
}

func (rt *Router) listMessages(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	conversationID, err := bindPathString(r, "conversation_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := bindQueryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	messages, err := rt.conversations.History(r.Context(), caller.TenantID, caller.UserID, conversationID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []domain.ConversationMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (rt *Router) closeConversation(w http.ResponseWriter, r *http.Request) {
	caller, err := identityFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	conversationID, err := bindPathString(r, "conversation_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.conversations.Close(r.Context(), caller.TenantID, caller.UserID, conversationID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"conversation_id": conversationID, "status": string(domain.ConversationClosed)})
}
