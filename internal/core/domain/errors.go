package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemporary          = errors.New("temporary failure")
	ErrUpstream           = errors.New("upstream failure")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrConversationClosed = errors.New("conversation closed")
	ErrPendingNotFound    = errors.New("pending interaction not found")
	// ErrPendingConflict guards the single pending slot: an interruption of one kind
	// must never overwrite an interruption of the other kind.
	ErrPendingConflict = errors.New("pending interaction conflict")
	ErrDraftState      = errors.New("draft state conflict")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCode is the stable, client-facing name of an error kind.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrPendingNotFound):
		return "pending_not_found"
	case IsKind(err, ErrPendingConflict):
		return "pending_conflict"
	case IsKind(err, ErrConversationClosed):
		return "conversation_closed"
	case IsKind(err, ErrUnknownTool):
		return "unknown_tool"
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrNotFound):
		return "not_found"
	case IsKind(err, ErrUnauthorized):
		return "unauthorized"
	case IsKind(err, ErrDraftState):
		return "draft_state"
	case IsKind(err, ErrTemporary):
		return "temporary"
	case IsKind(err, ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}
