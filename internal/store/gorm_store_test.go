package store

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
)

func TestUpsertTranslation_InsertThenUpdate(t *testing.T) {
	s := NewTestGormStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversationIfAbsent(ctx, "conv-1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	senderID := "alice"
	msg := &model.Message{ConversationID: conv.ID, SenderID: &senderID, OriginalLanguage: "en"}
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	inserted, err := s.UpsertTranslation(ctx, &model.Translation{
		MessageID:         msg.ID,
		TargetLanguage:    "es",
		TranslatedContent: "hola",
		TranslationModel:  "nmt",
		TaskID:            "task-1",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first upsert to insert")
	}

	inserted, err = s.UpsertTranslation(ctx, &model.Translation{
		MessageID:         msg.ID,
		TargetLanguage:    "es",
		TranslatedContent: "hola de nuevo",
		TranslationModel:  "nmt",
		TaskID:            "task-2",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted {
		t.Fatalf("expected second upsert to update, not insert")
	}

	got, err := s.GetTranslation(ctx, msg.ID, "es")
	if err != nil {
		t.Fatalf("get translation: %v", err)
	}
	if got.TranslatedContent != "hola de nuevo" {
		t.Fatalf("expected updated text, got %q", got.TranslatedContent)
	}

	all, err := s.ListTranslations(ctx, msg.ID)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one translation row, got %d", len(all))
	}
}

func TestFindMessage_NotFound(t *testing.T) {
	s := NewTestGormStore(t)
	_, err := s.FindMessage(context.Background(), uuid.New())
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertMember_Idempotent(t *testing.T) {
	s := NewTestGormStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversationIfAbsent(ctx, "conv-2")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	member := &model.ConversationMember{ConversationID: conv.ID, ParticipantID: "bob", SystemLanguage: "en", IsActive: true}
	if err := s.UpsertMember(ctx, member); err != nil {
		t.Fatalf("first upsert member: %v", err)
	}

	member2 := &model.ConversationMember{ConversationID: conv.ID, ParticipantID: "bob", SystemLanguage: "fr", IsActive: true}
	if err := s.UpsertMember(ctx, member2); err != nil {
		t.Fatalf("second upsert member: %v", err)
	}

	members, err := s.ListActiveMembers(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list active members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected exactly one member row, got %d", len(members))
	}
	if members[0].SystemLanguage != "fr" {
		t.Fatalf("expected language updated to fr, got %s", members[0].SystemLanguage)
	}
}

func TestIncrementUserTranslationsUsed(t *testing.T) {
	s := NewTestGormStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.IncrementUserTranslationsUsed(ctx, "alice"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	var stat model.UserTranslationStat
	if err := s.db.WithContext(ctx).Where("user_id = ?", "alice").First(&stat).Error; err != nil {
		t.Fatalf("read stat: %v", err)
	}
	if stat.TranslationsUsed != 3 {
		t.Fatalf("expected 3 translations used, got %d", stat.TranslationsUsed)
	}
}

func TestCreateConversationIfAbsent_Idempotent(t *testing.T) {
	s := NewTestGormStore(t)
	ctx := context.Background()

	a, err := s.CreateConversationIfAbsent(ctx, "dup-key")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	b, err := s.CreateConversationIfAbsent(ctx, "dup-key")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected same conversation id, got %s and %s", a.ID, b.ID)
	}
}
