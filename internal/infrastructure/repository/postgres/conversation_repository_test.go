package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/action-orchestrator/internal/core/domain"
)

var conversationColumns = []string{
	"id", "tenant_id", "user_id", "status", "current_user_turn", "pending", "last_activity_at", "created_at", "updated_at",
}

func TestConversationRepositoryEnsureConversationDecodesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewConversationRepository(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pending := domain.NewClarificationInteraction(domain.PendingClarification{
		ID:          "clar-1",
		Tool:        "draft_rfq",
		MissingArgs: []string{"rfq_title"},
		Question:    "What should be the title of the RFQ?",
	}, now)
	pendingJSON, _ := json.Marshal(pending)

	mock.ExpectExec("INSERT INTO conversations").
		WithArgs("conv-1", "tenant-1", "user-1", "open", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM conversations").
		WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows(conversationColumns).
			AddRow("conv-1", "tenant-1", "user-1", "open", 2, pendingJSON, now, now, now))

	conv, err := repo.EnsureConversation(context.Background(), "tenant-1", "user-1", "conv-1")
	if err != nil {
		t.Fatalf("EnsureConversation() error = %v", err)
	}
	if conv.CurrentUserTurn != 2 || conv.Status != domain.ConversationOpen {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if conv.Pending == nil || conv.Pending.ID() != "clar-1" {
		t.Fatalf("expected pending clarification, got %+v", conv.Pending)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConversationRepositoryGetConversationNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewConversationRepository(db)
	mock.ExpectQuery("FROM conversations").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err = repo.GetConversation(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConversationRepositoryCloseConversationNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewConversationRepository(db)
	mock.ExpectExec("UPDATE conversations").
		WithArgs("conv-9", "closed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.CloseConversation(context.Background(), "conv-9"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConversationRepositoryNextUserTurn(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewConversationRepository(db)
	mock.ExpectQuery("SET current_user_turn = current_user_turn \\+ 1").
		WithArgs("conv-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"current_user_turn"}).AddRow(5))

	turn, err := repo.NextUserTurn(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("NextUserTurn() error = %v", err)
	}
	if turn != 5 {
		t.Fatalf("expected turn 5, got %d", turn)
	}
}

func TestConversationRepositoryAppendMessagesUsesTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewConversationRepository(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversation_messages").
		WithArgs("m-1", "conv-1", "user", nil, "Create an RFQ", nil, 1, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conversation_messages").
		WithArgs("m-2", "conv-1", "assistant", "draft_action", "Drafted", "d-1", 1, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.AppendMessages(context.Background(),
		domain.ConversationMessage{ID: "m-1", ConversationID: "conv-1", Role: domain.RoleUser, Content: "Create an RFQ", UserTurn: 1, CreatedAt: now},
		domain.ConversationMessage{ID: "m-2", ConversationID: "conv-1", Role: domain.RoleAssistant, Kind: "draft_action", Content: "Drafted", DraftID: "d-1", UserTurn: 1, CreatedAt: now},
	)
	if err != nil {
		t.Fatalf("AppendMessages() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConversationRepositoryListMessagesReturnsChronologicalOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewConversationRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "kind", "content", "draft_id", "user_turn", "created_at"}).
		AddRow("m-3", "conv-1", "assistant", "message", "third", "", 2, now).
		AddRow("m-2", "conv-1", "user", "", "second", "", 2, now.Add(-time.Second)).
		AddRow("m-1", "conv-1", "assistant", "message", "first", "", 1, now.Add(-2*time.Second))
	mock.ExpectQuery("FROM conversation_messages").WithArgs("conv-1", 3).WillReturnRows(rows)

	messages, err := repo.ListMessages(context.Background(), "conv-1", 3)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].ID != "m-1" || messages[2].ID != "m-3" {
		t.Fatalf("expected chronological order, got %s..%s", messages[0].ID, messages[2].ID)
	}
}
