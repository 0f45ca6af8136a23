// Package bus defines the Orchestrator's transport to the external
// translation/transcription/TTS worker pool (spec §6). Dispatch is
// request/reply in the sense that the bus hands back a synthetic taskId
// synchronously, but completion itself always arrives later on a
// separate subscription — never as the reply to the dispatch call —
// matching spec §5's "no suspension on worker completion" ordering
// guarantee.
package bus

import "context"

// TranslationRequest asks a worker to translate message text, fanned out
// to every target language in one request (spec §2 "Fanout by language").
type TranslationRequest struct {
	MessageID       string
	ConversationID  string
	Text            string
	SourceLanguage  string
	TargetLanguages []string
	ModelType       string
}

// AudioJobRequest asks a worker to run the combined
// transcribe+translate+synthesize pipeline over one voice message
// attachment. TargetLanguages empty means transcription-only (consent
// denied translated audio, or the transcribeAttachment retransmit path).
// Audio is carried as raw bytes rather than a URL per spec §6's
// multipart-binary preference.
type AudioJobRequest struct {
	MessageID       string
	AttachmentID    string
	ConversationID  string
	SenderID        string
	SourceLanguage  string
	TargetLanguages []string
	Audio           []byte
	GenerateVoiceClone bool
	VoiceEmbeddingB64        string
	ChatterboxConditionalsB64 string
}

// CompletionKind names the shape of a CompletionEvent, mirroring the
// subscribed event table in spec §6.
type CompletionKind string

const (
	KindTranslationCompleted       CompletionKind = "translationCompleted"
	KindTranslationError           CompletionKind = "translationError"
	KindTranscriptionReady         CompletionKind = "transcriptionReady"
	KindAudioTranslationReady      CompletionKind = "audioTranslationReady"
	KindAudioTranslationsProgressive CompletionKind = "audioTranslationsProgressive"
	KindAudioTranslationsCompleted CompletionKind = "audioTranslationsCompleted"
	KindAudioProcessCompleted      CompletionKind = "audioProcessCompleted"
	KindAudioProcessError          CompletionKind = "audioProcessError"
	KindTranscriptionCompleted     CompletionKind = "transcriptionCompleted"
	KindTranscriptionError         CompletionKind = "transcriptionError"
	KindVoiceTranslationCompleted  CompletionKind = "voiceTranslationCompleted"
	KindVoiceTranslationFailed     CompletionKind = "voiceTranslationFailed"
)

// TranslationResult is the payload of a translationCompleted event.
type TranslationResult struct {
	MessageID       string
	SourceLanguage  string
	TargetLanguage  string
	TranslatedText  string
	TranslatorModel string
	ConfidenceScore float64
	ProcessingTime  float64
}

// TranscriptionResult is the payload of a transcriptionReady/
// transcriptionCompleted event.
type TranscriptionResult struct {
	Text                  string
	Language              string
	Confidence            float64
	Source                string
	SegmentsJSON          string
	SpeakerCount          int
	PrimarySpeakerID      string
	SenderVoiceIdentified bool
	SenderSpeakerID       string
	SpeakerAnalysisJSON   string
	DurationMs            int
	ProcessingTimeMs       int
}

// TranslatedAudioResult is the payload of one per-language audio
// translation event. AudioB64 is only populated as a compatibility
// fallback when Audio (raw bytes) is empty, per spec §9's "binary
// payloads over the bus" design note.
type TranslatedAudioResult struct {
	Language       string
	TranslatedText string
	Audio          []byte
	AudioB64       string
	Format         string
	DurationMs     int
	VoiceCloned    bool
	VoiceQuality   float64
	SegmentsJSON   string
	TTSModel       string
}

// NewVoiceProfile is the optional voice-profile payload bundled into a
// legacy audioProcessCompleted event.
type NewVoiceProfile struct {
	ProfileID                 string
	EmbeddingB64              string
	QualityScore              float64
	AudioCount                int
	TotalDurationMs           int
	Version                   int
	Fingerprint               string
	VoiceCharacteristicsJSON  string
	ChatterboxConditionalsB64 string
	ReferenceAudioID          string
	ReferenceAudioURL         string
}

// CompletionEvent is what a worker publishes back once a dispatched task
// finishes, successfully or not. Only the fields relevant to Kind are
// populated; this mirrors the teacher's preference for one result struct
// per pipeline stage over a family of unrelated event types.
type CompletionEvent struct {
	Kind           CompletionKind
	TaskID         string
	JobID          string // standalone voice jobs, keyed independently of TaskID
	MessageID      string
	AttachmentID   string
	ConversationID string
	UserID         string

	Translation *TranslationResult
	Transcription *TranscriptionResult
	AudioResults  []TranslatedAudioResult // one element normally; legacy events may bundle several
	IsFinal       bool                    // distinguishes audioTranslationsCompleted from ...Progressive
	NewVoiceProfile *NewVoiceProfile

	Error     string
	ErrorCode string
}

// BusClient is the Orchestrator's view of the message bus. Implementations
// must be safe for concurrent use.
type BusClient interface {
	// RequestTranslation dispatches a fanout translation request and
	// returns the worker-assigned taskId.
	RequestTranslation(ctx context.Context, req TranslationRequest) (taskID string, err error)

	// RequestAudioJob dispatches the combined audio pipeline (or
	// transcription-only, when req.TargetLanguages is empty) and
	// returns the worker-assigned taskId.
	RequestAudioJob(ctx context.Context, req AudioJobRequest) (taskID string, err error)

	// Subscribe registers handler to receive every completion event.
	// The returned func unsubscribes. Re-subscribing without first
	// unsubscribing the previous listener would double-deliver events
	// (spec §5's "bus listeners registered once per process").
	Subscribe(handler func(CompletionEvent)) (func(), error)

	Close() error
}
