package orchestrator

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
	"github.com/krafton-translate/message-translation-orchestrator/internal/events"
	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
)

// poolFullError is the exact bus error string spec §4.2/§7 singles out
// for the dedicated poolFullRejections counter.
const poolFullError = "translation pool full"

// handleCompletionEvent is the single bus subscription entry point,
// dispatching by CompletionKind to the phase-specific handler. Each
// handler runs in the bus's delivery goroutine; none of them block on
// anything but Store/EncryptionHelper calls.
func (o *Orchestrator) handleCompletionEvent(ev bus.CompletionEvent) {
	ctx := context.Background()
	switch ev.Kind {
	case bus.KindTranslationCompleted:
		o.handleTranslationCompleted(ctx, ev)
	case bus.KindTranslationError:
		o.handleTranslationError(ev)
	case bus.KindTranscriptionReady, bus.KindTranscriptionCompleted:
		o.handleTranscriptionReady(ctx, ev)
	case bus.KindAudioTranslationReady:
		o.handleAudioTranslationEvent(ctx, ev, events.KindAudioTranslationReady, true)
	case bus.KindAudioTranslationsProgressive:
		o.handleAudioTranslationEvent(ctx, ev, events.KindAudioTranslationsProgressive, false)
	case bus.KindAudioTranslationsCompleted:
		o.handleAudioTranslationEvent(ctx, ev, events.KindAudioTranslationsCompleted, true)
	case bus.KindAudioProcessCompleted:
		o.handleAudioProcessCompleted(ctx, ev)
	case bus.KindAudioProcessError, bus.KindTranscriptionError:
		o.handleAudioProcessError(ev)
	case bus.KindVoiceTranslationCompleted:
		o.handleVoiceTranslationCompleted(ctx, ev)
	case bus.KindVoiceTranslationFailed:
		o.handleVoiceTranslationFailed(ev)
	default:
		log.Printf("[Orchestrator] unrecognized completion kind %q", ev.Kind)
	}
}

// handleTranslationCompleted implements spec §4.2 steps 1-6.
func (o *Orchestrator) handleTranslationCompleted(ctx context.Context, ev bus.CompletionEvent) {
	if ev.Translation == nil {
		log.Printf("[Orchestrator] translationCompleted event missing result, task %s", ev.TaskID)
		return
	}
	result := ev.Translation

	// 1. Dedup.
	if o.processedTasks.Seen(ev.TaskID, result.TargetLanguage) {
		return
	}

	messageID, err := uuid.Parse(result.MessageID)
	if err != nil {
		log.Printf("[Orchestrator] translationCompleted with invalid messageId %q: %v", result.MessageID, err)
		o.Stats.IncErrors()
		return
	}

	// 2. Encryption decision.
	shouldEncrypt, conversationID, err := o.Encryption.ShouldEncryptTranslation(ctx, messageID)
	if err != nil {
		log.Printf("[Orchestrator] shouldEncryptTranslation for message %s: %v", messageID, err)
		o.Stats.IncErrors()
		return
	}

	translation := &model.Translation{
		MessageID:         messageID,
		TargetLanguage:    result.TargetLanguage,
		TranslatedContent: result.TranslatedText,
		TranslationModel:  result.TranslatorModel,
		ConfidenceScore:   result.ConfidenceScore,
		TaskID:            ev.TaskID,
	}

	if shouldEncrypt {
		enc, err := o.Encryption.EncryptTranslation(ctx, conversationID, result.TranslatedText)
		if err != nil {
			log.Printf("[Orchestrator] encrypt translation for message %s: %v", messageID, err)
			o.Stats.IncErrors()
			return
		}
		translation.IsEncrypted = true
		translation.TranslatedContent = enc.CiphertextB64
		translation.KeyID = &enc.KeyID
		translation.IV = &enc.IVB64
		translation.AuthTag = &enc.AuthTagB64
	}

	// 3. Upsert (legacy-duplicate collapse and unique-constraint fallback
	// live inside GormStore.UpsertTranslation, per spec §4.2 step 3 / §7).
	if _, err := o.Store.UpsertTranslation(ctx, translation); err != nil {
		log.Printf("[Orchestrator] upsert translation for message %s/%s: %v", messageID, result.TargetLanguage, err)
		o.Stats.IncErrors()
		return
	}

	// 4. Cache the plaintext result.
	msg, err := o.Store.FindMessage(ctx, messageID)
	if err == nil {
		o.translationCache.Set(messageID.String(), result.SourceLanguage, result.TargetLanguage, result.TranslatedText)

		// 5. User stats.
		if msg.SenderID != nil {
			if err := o.Store.IncrementUserTranslationsUsed(ctx, *msg.SenderID); err != nil {
				log.Printf("[Orchestrator] increment user translations used for %s: %v", *msg.SenderID, err)
			}
		}
	}

	o.Stats.IncTranslationsReceived(result.ProcessingTime)

	// 6. Emit.
	o.Emitter.Emit(events.Event{
		Kind:           events.KindTranslationReady,
		TaskID:         ev.TaskID,
		MessageID:      result.MessageID,
		ConversationID: conversationID.String(),
		TargetLanguage: result.TargetLanguage,
		TranslationID:  translation.ID.String(),
		Result:         result,
	})
}

// handleTranslationError implements spec §4.2's error path.
func (o *Orchestrator) handleTranslationError(ev bus.CompletionEvent) {
	o.Stats.IncErrors()
	if ev.Error == poolFullError {
		o.Stats.IncPoolFullRejections()
	}
	log.Printf("[Orchestrator] translationError task=%s message=%s: %s", ev.TaskID, ev.MessageID, ev.Error)
}
