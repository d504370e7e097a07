package domain

import "time"

type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

type Conversation struct {
	ID              string              `json:"id"`
	TenantID        string              `json:"tenant_id"`
	UserID          string              `json:"user_id"`
	Status          ConversationStatus  `json:"status"`
	CurrentUserTurn int                 `json:"current_user_turn"`
	Pending         *PendingInteraction `json:"pending,omitempty"`
	LastActivityAt  time.Time           `json:"last_activity_at"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// OwnedBy reports whether the conversation belongs to the given tenant and user.
func (c *Conversation) OwnedBy(tenantID, userID string) bool {
	return c != nil && c.TenantID == tenantID && c.UserID == userID
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one append-only entry of a turn. Kind carries the envelope
// type of assistant messages so history can be replayed by clients.
type ConversationMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Kind           string    `json:"kind,omitempty"`
	Content        string    `json:"content"`
	DraftID        string    `json:"draft_id,omitempty"`
	UserTurn       int       `json:"user_turn"`
	CreatedAt      time.Time `json:"created_at"`
}
