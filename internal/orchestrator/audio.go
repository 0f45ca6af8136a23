package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
	"github.com/krafton-translate/message-translation-orchestrator/internal/events"
	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
	"github.com/krafton-translate/message-translation-orchestrator/internal/store"
)

// ProcessAudioAttachmentInput is processAudioAttachment's input
// descriptor (spec §4.3).
type ProcessAudioAttachmentInput struct {
	MessageID          uuid.UUID
	AttachmentID       uuid.UUID
	ConversationID     uuid.UUID
	SenderID           string
	AudioPath          string
	AudioBytes         []byte
	AudioDurationMs    int
	MobileTranscription string
	GenerateVoiceClone bool
	ModelType          string
	UserLanguage       string
	SourceLanguage     string
	TranscriptionOnly  bool // forces targetLanguages=[] regardless of consent/resolution
}

// ProcessAudioAttachment implements spec §4.3's public operation: consent
// gate, target-language resolution with fallback, voice-profile loading,
// and dispatch as a multipart-binary audio job. Returns an empty taskID
// when the consent gate aborts the pipeline outright.
func (o *Orchestrator) ProcessAudioAttachment(ctx context.Context, in ProcessAudioAttachmentInput) (taskID string, err error) {
	statusBypass := o.bypassVoiceConsent
	var st struct {
		canTranscribe, canTranslate, canGenerateAudio, canClone bool
	}
	if statusBypass {
		st.canTranscribe, st.canTranslate, st.canGenerateAudio, st.canClone = true, true, true, true
	} else {
		consentStatus, cErr := o.Consent.GetConsentStatus(in.SenderID)
		if cErr != nil {
			log.Printf("[Orchestrator] consent lookup for %s: %v", in.SenderID, cErr)
			o.Stats.IncErrors()
			return "", nil
		}
		st.canTranscribe = consentStatus.CanTranscribeAudio
		st.canTranslate = consentStatus.CanTranslateAudio
		st.canGenerateAudio = consentStatus.CanGenerateTranslatedAudio
		st.canClone = consentStatus.CanUseVoiceCloning
	}

	if !st.canTranscribe {
		o.Stats.IncConsentDenials()
		return "", nil
	}
	if !st.canTranslate {
		log.Printf("[Orchestrator] sender %s lacks translate-audio consent, continuing; the worker may refuse translation", in.SenderID)
	}

	targetLanguages := []string{}
	if st.canGenerateAudio && !in.TranscriptionOnly {
		resolved, rErr := o.resolveTargetLanguages(ctx, in.ConversationID, in.SourceLanguage, nil)
		if rErr != nil {
			log.Printf("[Orchestrator] resolve audio target languages: %v", rErr)
			o.Stats.IncErrors()
			return "", nil
		}
		if len(resolved) == 0 {
			resolved = fallbackTargetLanguages
		}
		targetLanguages = resolved
	}

	if len(in.AudioBytes) >= model.MetadataHeaderSize {
		header, hErr := model.ParseMetadata(in.AudioBytes[:model.MetadataHeaderSize])
		if hErr == nil {
			if vErr := header.Validate(&o.audioConfig); vErr != nil {
				log.Printf("[Orchestrator] reject audio attachment %s: %v", in.AttachmentID, vErr)
				o.Stats.IncErrors()
				return "", nil
			}
		}
	}

	generateVoiceClone := in.GenerateVoiceClone && st.canClone

	var voiceEmbeddingB64, chatterboxB64 string
	profile, pErr := o.Store.LoadVoiceProfile(ctx, in.SenderID)
	if pErr == nil {
		voiceEmbeddingB64 = profile.EmbeddingB64
		if profile.ChatterboxConditionalsB64 != nil {
			chatterboxB64 = *profile.ChatterboxConditionalsB64
		}
	} else if pErr != store.ErrNotFound {
		log.Printf("[Orchestrator] load voice profile for %s: %v", in.SenderID, pErr)
	}

	dispatched, err := o.Bus.RequestAudioJob(ctx, bus.AudioJobRequest{
		MessageID:                 in.MessageID.String(),
		AttachmentID:              in.AttachmentID.String(),
		ConversationID:            in.ConversationID.String(),
		SenderID:                  in.SenderID,
		SourceLanguage:            in.SourceLanguage,
		TargetLanguages:           targetLanguages,
		Audio:                     in.AudioBytes,
		GenerateVoiceClone:        generateVoiceClone,
		VoiceEmbeddingB64:         voiceEmbeddingB64,
		ChatterboxConditionalsB64: chatterboxB64,
	})
	if err != nil {
		log.Printf("[Orchestrator] dispatch audio job for attachment %s: %v", in.AttachmentID, err)
		o.Stats.IncErrors()
		return "", nil
	}
	o.Stats.IncRequestsSent()
	o.Stats.IncAudioJobsStarted()

	if err := o.Store.RecordPendingTask(ctx, &model.PendingTask{
		TaskID:         dispatched,
		MessageID:      uuidPtr(in.MessageID),
		AttachmentID:   uuidPtr(in.AttachmentID),
		ConversationID: uuidPtr(in.ConversationID),
		UserID:         &in.SenderID,
	}); err != nil {
		log.Printf("[Orchestrator] record pending task %s: %v", dispatched, err)
	}

	return dispatched, nil
}

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

// handleTranscriptionReady is phase one of the two-phase audio completion
// model (spec §4.3): persists the transcription and emits it immediately
// so the client can display text before translation/TTS finish.
func (o *Orchestrator) handleTranscriptionReady(ctx context.Context, ev bus.CompletionEvent) {
	if ev.Transcription == nil {
		log.Printf("[Orchestrator] transcriptionReady event missing result, task %s", ev.TaskID)
		return
	}
	attachmentID, err := uuid.Parse(ev.AttachmentID)
	if err != nil {
		log.Printf("[Orchestrator] transcriptionReady with invalid attachmentId %q: %v", ev.AttachmentID, err)
		return
	}

	t := ev.Transcription
	rec := &model.TranscriptionRecord{
		AttachmentID:          attachmentID,
		Text:                  t.Text,
		Language:              t.Language,
		Confidence:            t.Confidence,
		Source:                t.Source,
		SpeakerCount:          t.SpeakerCount,
		SenderVoiceIdentified: t.SenderVoiceIdentified,
		DurationMs:            t.DurationMs,
		TaskID:                ev.TaskID,
	}
	if t.SegmentsJSON != "" {
		rec.SegmentsJSON = &t.SegmentsJSON
	}
	if t.PrimarySpeakerID != "" {
		rec.PrimarySpeakerID = &t.PrimarySpeakerID
	}
	if t.SenderSpeakerID != "" {
		rec.SenderSpeakerID = &t.SenderSpeakerID
	}
	if t.SpeakerAnalysisJSON != "" {
		rec.SpeakerAnalysisJSON = &t.SpeakerAnalysisJSON
	}

	if err := o.Store.UpdateAttachmentTranscription(ctx, rec); err != nil {
		log.Printf("[Orchestrator] persist transcription for attachment %s: %v", attachmentID, err)
		o.Stats.IncErrors()
		return
	}

	o.Emitter.Emit(events.Event{
		Kind:         events.KindTranscriptionReady,
		TaskID:       ev.TaskID,
		MessageID:    ev.MessageID,
		AttachmentID: ev.AttachmentID,
		Result:       t,
		Metadata:     map[string]interface{}{"phase": "transcription"},
	})
}

// handleAudioTranslationEvent is phase two of the two-phase audio
// completion model, shared by the single-target terminal event and both
// multi-target variants; isFinal distinguishes the final per-language
// event of a multi-target task from progressive ones.
func (o *Orchestrator) handleAudioTranslationEvent(ctx context.Context, ev bus.CompletionEvent, kind events.Kind, isFinal bool) {
	if len(ev.AudioResults) == 0 {
		log.Printf("[Orchestrator] %s event missing audio result, task %s", ev.Kind, ev.TaskID)
		return
	}
	attachmentID, err := uuid.Parse(ev.AttachmentID)
	if err != nil {
		log.Printf("[Orchestrator] %s with invalid attachmentId %q: %v", ev.Kind, ev.AttachmentID, err)
		return
	}

	for _, result := range ev.AudioResults {
		rec, err := o.persistTranslatedAudio(ctx, attachmentID, ev.TaskID, result)
		if err != nil {
			log.Printf("[Orchestrator] persist translated audio %s/%s: %v", attachmentID, result.Language, err)
			o.Stats.IncErrors()
			continue
		}

		o.Emitter.Emit(events.Event{
			Kind:           kind,
			TaskID:         ev.TaskID,
			MessageID:      ev.MessageID,
			AttachmentID:   ev.AttachmentID,
			TargetLanguage: result.Language,
			Result:         rec,
			IsFinal:        isFinal,
		})
	}
	if isFinal {
		o.Stats.IncAudioJobsCompleted()
		_ = o.Store.DeletePendingTask(ctx, ev.TaskID)
	}
}

// persistTranslatedAudio decodes a per-language audio result (preferring
// the binary payload, falling back to base64 per spec §9), writes it
// under the uploads root, and upserts the attachment's translated-audio
// record.
func (o *Orchestrator) persistTranslatedAudio(ctx context.Context, attachmentID uuid.UUID, taskID string, result bus.TranslatedAudioResult) (*model.TranslatedAudioRecord, error) {
	audioBytes := result.Audio
	if len(audioBytes) == 0 && result.AudioB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(result.AudioB64)
		if err != nil {
			return nil, fmt.Errorf("decode base64 audio fallback: %w", err)
		}
		audioBytes = decoded
	}

	format := result.Format
	if format == "" {
		format = "mp3"
	}
	filename := fmt.Sprintf("%s_%s.%s", attachmentID.String(), result.Language, format)
	storagePath := filepath.Join(o.uploadsRoot, "attachments", "translated", filename)

	if len(audioBytes) > 0 {
		if err := os.MkdirAll(filepath.Dir(storagePath), 0o755); err != nil {
			return nil, fmt.Errorf("create translated-audio directory: %w", err)
		}
		if err := os.WriteFile(storagePath, audioBytes, 0o644); err != nil {
			return nil, fmt.Errorf("write translated audio file: %w", err)
		}
	}

	rec := &model.TranslatedAudioRecord{
		AttachmentID:   attachmentID,
		TargetLanguage: result.Language,
		TranslatedText: result.TranslatedText,
		StoragePath:    storagePath,
		URL:            fmt.Sprintf("/api/v1/attachments/file/translated/%s", filename),
		DurationMs:     result.DurationMs,
		Format:         format,
		VoiceCloned:    result.VoiceCloned,
		VoiceQuality:   result.VoiceQuality,
		TTSModel:       result.TTSModel,
		TaskID:         taskID,
	}
	if result.SegmentsJSON != "" {
		rec.SegmentsJSON = &result.SegmentsJSON
	}

	if _, err := o.Store.UpdateAttachmentTranslations(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// handleAudioProcessCompleted implements spec §4.3's legacy one-shot
// event: transcription plus every translated audio plus an optional new
// voice profile, all bundled into one completion.
func (o *Orchestrator) handleAudioProcessCompleted(ctx context.Context, ev bus.CompletionEvent) {
	if ev.Transcription != nil {
		o.handleTranscriptionReady(ctx, bus.CompletionEvent{
			Kind:         bus.KindTranscriptionReady,
			TaskID:       ev.TaskID,
			MessageID:    ev.MessageID,
			AttachmentID: ev.AttachmentID,
			Transcription: ev.Transcription,
		})
	}

	attachmentID, err := uuid.Parse(ev.AttachmentID)
	if err != nil {
		log.Printf("[Orchestrator] audioProcessCompleted with invalid attachmentId %q: %v", ev.AttachmentID, err)
		return
	}

	var saved []*model.TranslatedAudioRecord
	for _, result := range ev.AudioResults {
		rec, err := o.persistTranslatedAudio(ctx, attachmentID, ev.TaskID, result)
		if err != nil {
			log.Printf("[Orchestrator] persist legacy translated audio %s/%s: %v", attachmentID, result.Language, err)
			o.Stats.IncErrors()
			continue
		}
		saved = append(saved, rec)
	}

	if ev.NewVoiceProfile != nil && ev.UserID != "" {
		if err := o.upsertVoiceProfile(ctx, ev.UserID, ev.NewVoiceProfile); err != nil {
			log.Printf("[Orchestrator] upsert voice profile for %s: %v", ev.UserID, err)
		}
	}

	o.Stats.IncAudioJobsCompleted()
	o.Emitter.Emit(events.Event{
		Kind:         events.KindAudioTranslationReady,
		TaskID:       ev.TaskID,
		MessageID:    ev.MessageID,
		AttachmentID: ev.AttachmentID,
		Result:       saved,
		IsFinal:      true,
	})
}

// upsertVoiceProfile merges a freshly-built voice profile into the
// sender's stored one, bumping Version monotonically (spec §3's "version
// monotonically increases across replacements"). A profile that carries
// no Chatterbox conditionals keeps the stored ones.
func (o *Orchestrator) upsertVoiceProfile(ctx context.Context, userID string, np *bus.NewVoiceProfile) error {
	version := 1
	var prevConditionals *string
	if existing, err := o.Store.LoadVoiceProfile(ctx, userID); err == nil {
		version = existing.Version + 1
		prevConditionals = existing.ChatterboxConditionalsB64
	} else if err != store.ErrNotFound {
		return err
	}

	vp := &model.VoiceProfile{
		UserID:          userID,
		ProfileID:       np.ProfileID,
		EmbeddingB64:    np.EmbeddingB64,
		QualityScore:    np.QualityScore,
		AudioCount:      np.AudioCount,
		TotalDurationMs: np.TotalDurationMs,
		Version:         version,
	}
	if np.Fingerprint != "" {
		vp.Fingerprint = &np.Fingerprint
	}
	if np.VoiceCharacteristicsJSON != "" {
		vp.VoiceCharacteristicsJSON = &np.VoiceCharacteristicsJSON
	}
	if np.ChatterboxConditionalsB64 != "" {
		vp.ChatterboxConditionalsB64 = &np.ChatterboxConditionalsB64
	} else {
		vp.ChatterboxConditionalsB64 = prevConditionals
	}
	if np.ReferenceAudioID != "" {
		vp.ReferenceAudioID = &np.ReferenceAudioID
	}
	if np.ReferenceAudioURL != "" {
		vp.ReferenceAudioURL = &np.ReferenceAudioURL
	}
	return o.Store.UpsertVoiceProfile(ctx, vp)
}

// handleAudioProcessError covers audioProcessError/transcriptionError.
func (o *Orchestrator) handleAudioProcessError(ev bus.CompletionEvent) {
	o.Stats.IncErrors()
	log.Printf("[Orchestrator] audio pipeline error task=%s attachment=%s: %s", ev.TaskID, ev.AttachmentID, ev.Error)
	o.Emitter.Emit(events.Event{
		Kind:         events.KindTranscriptionError,
		TaskID:       ev.TaskID,
		MessageID:    ev.MessageID,
		AttachmentID: ev.AttachmentID,
		Err:          ev.Error,
	})
}

// handleVoiceTranslationCompleted implements spec §4.3's standalone
// voice job path: reconcile jobId against a recorded PendingTask, and if
// found treat it as an attachment completion; otherwise emit a standalone
// job-completed event for the caller.
func (o *Orchestrator) handleVoiceTranslationCompleted(ctx context.Context, ev bus.CompletionEvent) {
	pending, err := o.Store.FindPendingTask(ctx, ev.JobID)
	if err == nil && pending.AttachmentID != nil {
		ev.AttachmentID = pending.AttachmentID.String()
		if pending.MessageID != nil {
			ev.MessageID = pending.MessageID.String()
		}
		o.handleAudioProcessCompleted(ctx, ev)
		return
	}

	o.Emitter.Emit(events.Event{
		Kind:     events.KindVoiceTranslationJobCompleted,
		JobID:    ev.JobID,
		Result:   ev.AudioResults,
		Metadata: map[string]interface{}{"userId": ev.UserID},
	})
}

// handleVoiceTranslationFailed emits a standalone job-failed event.
func (o *Orchestrator) handleVoiceTranslationFailed(ev bus.CompletionEvent) {
	o.Stats.IncErrors()
	o.Emitter.Emit(events.Event{
		Kind:  events.KindVoiceTranslationJobFailed,
		JobID: ev.JobID,
		Err:   ev.Error,
	})
}

// AttachmentWithTranscription is getAttachmentWithTranscription's legacy-
// shaped response (spec §4.3).
type AttachmentWithTranscription struct {
	Attachment       *model.Attachment
	Transcription    *model.TranscriptionRecord
	TranslatedAudios []model.TranslatedAudioRecord
}

// GetAttachmentWithTranscription implements the read path spec §4.3 names.
func (o *Orchestrator) GetAttachmentWithTranscription(ctx context.Context, attachmentID uuid.UUID) (*AttachmentWithTranscription, error) {
	att, err := o.Store.FindAttachment(ctx, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: find attachment: %w", err)
	}
	transcription, err := o.Store.GetAttachmentTranscription(ctx, attachmentID)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("orchestrator: get attachment transcription: %w", err)
	}
	translations, err := o.Store.ListAttachmentTranslations(ctx, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list attachment translations: %w", err)
	}
	return &AttachmentWithTranscription{Attachment: att, Transcription: transcription, TranslatedAudios: translations}, nil
}

// RetransmitResult is the response shape for transcribeAttachment /
// translateAttachment (spec §4.3): the dispatched taskId plus a summary
// of the attachment that was resolved.
type RetransmitResult struct {
	TaskID     string
	Attachment *model.Attachment
}

// TranscribeAttachment re-dispatches transcription only for an existing
// audio attachment (spec §4.3's retransmit path).
func (o *Orchestrator) TranscribeAttachment(ctx context.Context, attachmentID uuid.UUID, senderID string) (*RetransmitResult, error) {
	return o.retransmit(ctx, attachmentID, senderID, true)
}

// TranslateAttachment re-dispatches the full audio pipeline for an
// existing audio attachment (spec §4.3's retransmit path).
func (o *Orchestrator) TranslateAttachment(ctx context.Context, attachmentID uuid.UUID, senderID string) (*RetransmitResult, error) {
	return o.retransmit(ctx, attachmentID, senderID, false)
}

func (o *Orchestrator) retransmit(ctx context.Context, attachmentID uuid.UUID, senderID string, transcriptionOnly bool) (*RetransmitResult, error) {
	att, err := o.Store.FindAttachment(ctx, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: find attachment: %w", err)
	}
	if !strings.HasPrefix(att.MimeType, "audio/") {
		return nil, fmt.Errorf("orchestrator: attachment %s is not audio (mime %q)", attachmentID, att.MimeType)
	}

	decodedURL, err := url.QueryUnescape(att.FileURL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: decode attachment file url: %w", err)
	}
	absolutePath := filepath.Join(o.uploadsRoot, decodedURL)

	audioBytes, err := os.ReadFile(absolutePath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: read source audio %s: %w", absolutePath, err)
	}

	in := ProcessAudioAttachmentInput{
		MessageID:      att.MessageID,
		AttachmentID:   att.ID,
		ConversationID: att.ConversationID,
		SenderID:       senderID,
		AudioPath:      absolutePath,
		AudioBytes:     audioBytes,
	}
	in.TranscriptionOnly = transcriptionOnly

	taskID, err := o.ProcessAudioAttachment(ctx, in)
	if err != nil {
		return nil, err
	}
	return &RetransmitResult{TaskID: taskID, Attachment: att}, nil
}
