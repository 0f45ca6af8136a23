package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
	"github.com/krafton-translate/message-translation-orchestrator/internal/consent"
	"github.com/krafton-translate/message-translation-orchestrator/internal/events"
	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
	"github.com/krafton-translate/message-translation-orchestrator/internal/stats"
	"github.com/krafton-translate/message-translation-orchestrator/internal/store"
)

// waitUntil polls cond until it returns true or the timeout passes,
// needed because resolveAndDispatchTranslation runs on its own goroutine
// off the handleNewMessage response path.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.GormStore, *bus.MemoryBus) {
	t.Helper()
	st := store.NewTestGormStore(t)
	memBus := bus.NewMemoryBus()
	o := New(st, memBus, consent.NewStaticConsent(true), events.NewChannelEmitter(16), stats.New(), Config{
		UploadsRoot: t.TempDir(),
		Audio: model.AudioConfig{
			ValidSampleRates: []uint32{8000, 16000, 24000, 44100, 48000},
			MaxChannels:      2,
			ValidBitDepths:   []uint16{16, 24, 32},
		},
	})
	if err := o.Start(); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	t.Cleanup(o.Stop)
	return o, st, memBus
}

func seedConversation(t *testing.T, o *Orchestrator, st *store.GormStore, key string, members map[string]string) *model.Conversation {
	t.Helper()
	ctx := context.Background()
	conv, err := st.CreateConversationIfAbsent(ctx, key)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for participant, lang := range members {
		if err := st.UpsertMember(ctx, &model.ConversationMember{
			ConversationID: conv.ID,
			ParticipantID:  participant,
			SystemLanguage: lang,
			IsActive:       true,
		}); err != nil {
			t.Fatalf("seed member %s: %v", participant, err)
		}
	}
	return conv
}

func TestHandleNewMessage_SimpleFanout(t *testing.T) {
	o, st, memBus := newTestOrchestrator(t)
	ctx := context.Background()

	conv := seedConversation(t, o, st, "conv-simple", map[string]string{
		"alice": "en",
		"bob":   "fr",
		"carol": "de",
	})

	sender := "alice"
	result, err := o.handleNewMessage(ctx, NewMessageInput{
		ConversationKey:  conv.Key,
		SenderID:         &sender,
		Content:          "Hello",
		OriginalLanguage: "en",
		EncryptionMode:   model.EncryptionNone,
	})
	if err != nil {
		t.Fatalf("handleNewMessage: %v", err)
	}
	if result.Status != statusMessageSaved {
		t.Fatalf("expected status %q, got %q", statusMessageSaved, result.Status)
	}

	waitUntil(t, 2*time.Second, func() bool { return len(memBus.Translations) > 0 })
	if len(memBus.Translations) != 1 {
		t.Fatalf("expected exactly one bus request, got %d", len(memBus.Translations))
	}
	req := memBus.Translations[0]
	if len(req.TargetLanguages) != 2 {
		t.Fatalf("expected 2 target languages (fr, de), got %v", req.TargetLanguages)
	}
	for _, lang := range req.TargetLanguages {
		if lang == "en" {
			t.Fatalf("source language must be filtered from targets, got %v", req.TargetLanguages)
		}
	}
}

func TestHandleNewMessage_E2EESkipsBus(t *testing.T) {
	o, st, memBus := newTestOrchestrator(t)
	ctx := context.Background()

	conv := seedConversation(t, o, st, "conv-e2ee", map[string]string{"alice": "en", "bob": "fr"})
	sender := "alice"

	result, err := o.handleNewMessage(ctx, NewMessageInput{
		ConversationKey:  conv.Key,
		SenderID:         &sender,
		Content:          "secret",
		OriginalLanguage: "en",
		EncryptionMode:   model.EncryptionE2EE,
	})
	if err != nil {
		t.Fatalf("handleNewMessage: %v", err)
	}
	if result.Status != statusE2EESkipped {
		t.Fatalf("expected status %q, got %q", statusE2EESkipped, result.Status)
	}

	time.Sleep(50 * time.Millisecond)
	if len(memBus.Translations) != 0 {
		t.Fatalf("expected zero bus requests for e2ee message, got %d", len(memBus.Translations))
	}

	rows, err := st.ListTranslations(ctx, result.MessageID)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected zero translation rows for e2ee message, got %d", len(rows))
	}
}

func TestHandleTranslationCompleted_Idempotent(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()

	conv := seedConversation(t, o, st, "conv-dedup", map[string]string{"alice": "en"})
	sender := "alice"
	msg := &model.Message{ConversationID: conv.ID, SenderID: &sender, OriginalLanguage: "en", Content: "hi"}
	if err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	ev := bus.CompletionEvent{
		Kind:   bus.KindTranslationCompleted,
		TaskID: "task-dedup",
		Translation: &bus.TranslationResult{
			MessageID:       msg.ID.String(),
			SourceLanguage:  "en",
			TargetLanguage:  "fr",
			TranslatedText:  "salut",
			TranslatorModel: "nmt",
			ConfidenceScore: 0.9,
		},
	}

	o.handleCompletionEvent(ev)
	o.handleCompletionEvent(ev)

	rows, err := st.ListTranslations(ctx, msg.ID)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one translation row after duplicate delivery, got %d", len(rows))
	}
}

func TestHandleTranslationError_PoolFullCounter(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	o.handleCompletionEvent(bus.CompletionEvent{
		Kind:      bus.KindTranslationError,
		TaskID:    "t1",
		MessageID: "m1",
		Error:     poolFullError,
	})

	snap := o.Stats.Snapshot()
	if snap.Errors != 1 {
		t.Fatalf("expected errors=1, got %d", snap.Errors)
	}
	if snap.PoolFullRejections != 1 {
		t.Fatalf("expected poolFullRejections=1, got %d", snap.PoolFullRejections)
	}
}

func TestProcessedTaskSet_FIFOBound(t *testing.T) {
	s := NewProcessedTaskSet(3)
	s.Seen("t1", "fr")
	s.Seen("t2", "fr")
	s.Seen("t3", "fr")
	s.Seen("t4", "fr") // evicts t1

	if s.Len() != 3 {
		t.Fatalf("expected bounded length 3, got %d", s.Len())
	}
	// Probe t2 before t1: Seen marks a miss as processed, so probing the
	// evicted t1 first would itself evict t2.
	if !s.Seen("t2", "fr") {
		t.Fatalf("expected t2 to still be tracked as seen")
	}
	if s.Seen("t1", "fr") {
		t.Fatalf("expected t1 to have been evicted, found as already seen")
	}
}

func TestHandleTranslationCompleted_ServerEncryptedRoundTripsViaGetTranslation(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()

	conv := seedConversation(t, o, st, "conv-encrypted", map[string]string{"alice": "en"})
	sender := "alice"
	msg := &model.Message{
		ConversationID:   conv.ID,
		SenderID:         &sender,
		OriginalLanguage: "en",
		Content:          "hi",
		EncryptionMode:   model.EncryptionServer,
	}
	if err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	o.handleCompletionEvent(bus.CompletionEvent{
		Kind:   bus.KindTranslationCompleted,
		TaskID: "task-encrypted",
		Translation: &bus.TranslationResult{
			MessageID:       msg.ID.String(),
			SourceLanguage:  "en",
			TargetLanguage:  "fr",
			TranslatedText:  "salut",
			TranslatorModel: "nmt",
			ConfidenceScore: 0.9,
		},
	})

	rows, err := st.ListTranslations(ctx, msg.ID)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one translation row, got %d", len(rows))
	}
	if !rows[0].IsEncrypted || rows[0].KeyID == nil || *rows[0].KeyID == "" {
		t.Fatalf("expected encrypted row with a keyId, got %+v", rows[0])
	}
	if rows[0].TranslatedContent == "salut" {
		t.Fatalf("expected stored content to be ciphertext, not plaintext")
	}

	got, err := o.GetTranslation(ctx, msg.ID, "fr")
	if err != nil {
		t.Fatalf("get translation: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a decrypted translation, got nil")
	}
	if got.TranslatedContent != "salut" {
		t.Fatalf("expected getTranslation to return plaintext %q, got %q", "salut", got.TranslatedContent)
	}
}

func TestGetTranslation_TamperedAuthTagReturnsNil(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()

	conv := seedConversation(t, o, st, "conv-tampered", map[string]string{"alice": "en"})
	sender := "alice"
	msg := &model.Message{
		ConversationID:   conv.ID,
		SenderID:         &sender,
		OriginalLanguage: "en",
		Content:          "hi",
		EncryptionMode:   model.EncryptionServer,
	}
	if err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	o.handleCompletionEvent(bus.CompletionEvent{
		Kind:   bus.KindTranslationCompleted,
		TaskID: "task-tampered",
		Translation: &bus.TranslationResult{
			MessageID:       msg.ID.String(),
			SourceLanguage:  "en",
			TargetLanguage:  "fr",
			TranslatedText:  "salut",
			TranslatorModel: "nmt",
			ConfidenceScore: 0.9,
		},
	})

	stored, err := st.GetTranslation(ctx, msg.ID, "fr")
	if err != nil {
		t.Fatalf("get translation from store: %v", err)
	}
	tamperedTag := (*stored.AuthTag)[:len(*stored.AuthTag)-2] + "AA"
	stored.AuthTag = &tamperedTag
	if _, err := st.UpsertTranslation(ctx, stored); err != nil {
		t.Fatalf("save tampered translation: %v", err)
	}

	got, err := o.GetTranslation(ctx, msg.ID, "fr")
	if err != nil {
		t.Fatalf("expected nil result rather than an error for a tampered auth tag, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil translation for a tampered auth tag, got %+v", got)
	}
}

func TestResolveAndDispatchTranslation_RetranslationReplacesExisting(t *testing.T) {
	o, st, memBus := newTestOrchestrator(t)
	ctx := context.Background()

	conv := seedConversation(t, o, st, "conv-retranslate", map[string]string{"alice": "en", "bob": "fr"})
	sender := "alice"
	msg := &model.Message{ConversationID: conv.ID, SenderID: &sender, OriginalLanguage: "en", Content: "hi"}
	if err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if _, err := st.UpsertTranslation(ctx, &model.Translation{
		MessageID:         msg.ID,
		TargetLanguage:    "es",
		TranslatedContent: "stale",
		TaskID:            "stale-task",
	}); err != nil {
		t.Fatalf("seed stale translation: %v", err)
	}

	target := "es"
	result, err := o.handleNewMessage(ctx, NewMessageInput{
		ID:               msg.ID,
		ConversationKey:  conv.Key,
		SenderID:         &sender,
		Content:          msg.Content,
		OriginalLanguage: "en",
		EncryptionMode:   model.EncryptionNone,
		TargetLanguage:   &target,
	})
	if err != nil {
		t.Fatalf("handleNewMessage: %v", err)
	}
	if result.Status != statusRetranslationQueued {
		t.Fatalf("expected status %q, got %q", statusRetranslationQueued, result.Status)
	}

	waitUntil(t, 2*time.Second, func() bool { return len(memBus.Translations) > 0 })

	rows, err := st.ListTranslations(ctx, msg.ID)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected the stale translation deleted ahead of dispatch, found %d rows", len(rows))
	}

	req := memBus.Translations[0]
	if len(req.TargetLanguages) != 1 || req.TargetLanguages[0] != "es" {
		t.Fatalf("expected a single dispatched target %q, got %v", "es", req.TargetLanguages)
	}
}

func TestResolveConversationLanguages_UnionsAnonymousParticipants(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	ctx := context.Background()

	conv := seedConversation(t, o, st, "conv-anon", map[string]string{"alice": "en"})
	if err := st.UpsertAnonymousParticipant(ctx, &model.AnonymousParticipant{
		ConversationID: conv.ID,
		ParticipantID:  "guest-1",
		Language:       "ko",
		IsActive:       true,
	}); err != nil {
		t.Fatalf("seed anonymous participant: %v", err)
	}

	targets, err := o.resolveTargetLanguages(ctx, conv.ID, "en", nil)
	if err != nil {
		t.Fatalf("resolve target languages: %v", err)
	}

	foundKo := false
	for _, lang := range targets {
		if lang == "ko" {
			foundKo = true
		}
	}
	if !foundKo {
		t.Fatalf("expected anonymous participant's language %q among resolved targets, got %v", "ko", targets)
	}
}

func TestSynthesizeConversationKey(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := SynthesizeConversationKey("Team Standup!!", at)
	want := "mshy_team-standup-20260102030405"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

