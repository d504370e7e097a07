package domain

import "time"

// DefaultMemoryWindow is the number of most recent turns injected into downstream calls,
// counting the in-flight user message.
const DefaultMemoryWindow = 3

type MemoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type MemoryRecord struct {
	ConversationID string       `json:"conversation_id"`
	TurnCount      int          `json:"turn_count"`
	LastMessageID  string       `json:"last_message_id,omitempty"`
	Window         []MemoryTurn `json:"window"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Fold appends turns to the record and trims the window to size, oldest first.
// The record's turn count grows by the number of folded turns.
func (r *MemoryRecord) Fold(size int, lastMessageID string, turns ...MemoryTurn) {
	if size <= 0 {
		size = DefaultMemoryWindow
	}
	for _, turn := range turns {
		r.Window = append(r.Window, turn)
		r.TurnCount++
	}
	r.Window = TrimWindow(r.Window, size)
	if lastMessageID != "" {
		r.LastMessageID = lastMessageID
	}
}

// TrimWindow returns the most recent size turns in chronological order.
func TrimWindow(turns []MemoryTurn, size int) []MemoryTurn {
	if size <= 0 || len(turns) <= size {
		return append([]MemoryTurn(nil), turns...)
	}
	return append([]MemoryTurn(nil), turns[len(turns)-size:]...)
}
