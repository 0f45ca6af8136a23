package orchestrator

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
	"github.com/krafton-translate/message-translation-orchestrator/internal/store"
)

func newStoreForEncryptionTest(t *testing.T) *store.GormStore {
	t.Helper()
	return store.NewTestGormStore(t)
}

func seedBareConversation(t *testing.T, st *store.GormStore) uuid.UUID {
	t.Helper()
	conv, err := st.CreateConversationIfAbsent(context.Background(), "conv-crypto")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv.ID
}

func seedAttachment(t *testing.T, o *Orchestrator, conv *model.Conversation, sender string) *model.Attachment {
	t.Helper()
	ctx := context.Background()

	msg := &model.Message{ConversationID: conv.ID, SenderID: &sender, OriginalLanguage: "en", Content: "voice message"}
	if err := o.Store.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	att := &model.Attachment{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		FileName:       "clip.wav",
		FileURL:        "attachments/source/clip.wav",
		MimeType:       "audio/wav",
	}
	if err := o.Store.InsertAttachment(ctx, att); err != nil {
		t.Fatalf("insert attachment: %v", err)
	}
	return att
}

func TestAudioPipeline_TwoPhaseOrdering(t *testing.T) {
	o, st, _ := newTestOrchestrator(t)
	conv := seedConversation(t, o, st, "conv-audio", map[string]string{"alice": "en"})
	att := seedAttachment(t, o, conv, "alice")
	ctx := context.Background()

	o.handleCompletionEvent(bus.CompletionEvent{
		Kind:         bus.KindTranscriptionReady,
		TaskID:       "audio-task-1",
		MessageID:    att.MessageID.String(),
		AttachmentID: att.ID.String(),
		Transcription: &bus.TranscriptionResult{
			Text:     "bonjour",
			Language: "fr",
			Source:   "whisper",
		},
	})

	loaded, err := o.GetAttachmentWithTranscription(ctx, att.ID)
	if err != nil {
		t.Fatalf("get attachment with transcription: %v", err)
	}
	if loaded.Transcription == nil || loaded.Transcription.Text != "bonjour" {
		t.Fatalf("expected transcription persisted after transcriptionReady, got %+v", loaded.Transcription)
	}

	o.handleCompletionEvent(bus.CompletionEvent{
		Kind:         bus.KindAudioTranslationsProgressive,
		TaskID:       "audio-task-1",
		MessageID:    att.MessageID.String(),
		AttachmentID: att.ID.String(),
		AudioResults: []bus.TranslatedAudioResult{{
			Language:       "en",
			TranslatedText: "hello",
			Audio:          []byte("fake-audio-bytes"),
			Format:         "mp3",
		}},
	})

	translations, err := o.Store.ListAttachmentTranslations(ctx, att.ID)
	if err != nil {
		t.Fatalf("list attachment translations: %v", err)
	}
	if len(translations) != 1 || translations[0].TargetLanguage != "en" {
		t.Fatalf("expected one translated-audio row for en, got %+v", translations)
	}

	wantPath := filepath.Join(o.uploadsRoot, "attachments", "translated", att.ID.String()+"_en.mp3")
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("expected translated audio file at %s: %v", wantPath, err)
	}
	if translations[0].URL != "/api/v1/attachments/file/translated/"+att.ID.String()+"_en.mp3" {
		t.Fatalf("unexpected translated audio url: %s", translations[0].URL)
	}
}

func TestEncryptionHelper_RoundTripAndTamperDetection(t *testing.T) {
	st := newStoreForEncryptionTest(t)
	helper := NewEncryptionHelper(st)
	ctx := context.Background()

	convID := seedBareConversation(t, st)

	enc, err := helper.EncryptTranslation(ctx, convID, "hello world")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	plaintext, err := helper.DecryptTranslation(ctx, enc.CiphertextB64, enc.KeyID, enc.IVB64, enc.AuthTagB64)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plaintext != "hello world" {
		t.Fatalf("expected round-trip plaintext, got %q", plaintext)
	}

	tamperedTag := enc.AuthTagB64[:len(enc.AuthTagB64)-2] + "AA"
	if _, err := helper.DecryptTranslation(ctx, enc.CiphertextB64, enc.KeyID, enc.IVB64, tamperedTag); err == nil {
		t.Fatalf("expected decryption to fail with a tampered auth tag")
	}
}

func audioBytesWithHeader(sampleRate uint32, channels, bitsPerSample uint16, payload []byte) []byte {
	header := make([]byte, model.MetadataHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], sampleRate)
	binary.LittleEndian.PutUint16(header[4:6], channels)
	binary.LittleEndian.PutUint16(header[6:8], bitsPerSample)
	return append(header, payload...)
}

func TestProcessAudioAttachment_RejectsUnsupportedFormat(t *testing.T) {
	o, st, memBus := newTestOrchestrator(t)
	conv := seedConversation(t, o, st, "conv-audio-format", map[string]string{"alice": "en"})
	att := seedAttachment(t, o, conv, "alice")
	ctx := context.Background()

	taskID, err := o.ProcessAudioAttachment(ctx, ProcessAudioAttachmentInput{
		MessageID:      att.MessageID,
		AttachmentID:   att.ID,
		ConversationID: conv.ID,
		SenderID:       "alice",
		SourceLanguage: "en",
		AudioBytes:     audioBytesWithHeader(11025, 1, 16, []byte("samples")),
	})
	if err != nil {
		t.Fatalf("process audio attachment: %v", err)
	}
	if taskID != "" {
		t.Fatalf("expected empty taskID for unsupported sample rate, got %q", taskID)
	}
	if len(memBus.AudioJobs) != 0 {
		t.Fatalf("expected no audio job dispatched, got %d", len(memBus.AudioJobs))
	}
}

func TestProcessAudioAttachment_AcceptsSupportedFormat(t *testing.T) {
	o, st, memBus := newTestOrchestrator(t)
	conv := seedConversation(t, o, st, "conv-audio-format-ok", map[string]string{"alice": "en"})
	att := seedAttachment(t, o, conv, "alice")
	ctx := context.Background()

	taskID, err := o.ProcessAudioAttachment(ctx, ProcessAudioAttachmentInput{
		MessageID:         att.MessageID,
		AttachmentID:      att.ID,
		ConversationID:    conv.ID,
		SenderID:          "alice",
		SourceLanguage:    "en",
		TranscriptionOnly: true,
		AudioBytes:        audioBytesWithHeader(16000, 1, 16, []byte("samples")),
	})
	if err != nil {
		t.Fatalf("process audio attachment: %v", err)
	}
	if taskID == "" {
		t.Fatalf("expected a dispatched taskID for a supported format")
	}
	if len(memBus.AudioJobs) != 1 {
		t.Fatalf("expected one audio job dispatched, got %d", len(memBus.AudioJobs))
	}
}
