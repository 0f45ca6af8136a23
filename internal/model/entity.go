package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel holds the fields every persisted entity shares. The
// gen_random_uuid() default covers postgres; BeforeCreate assigns one in
// application code too so sqlite (used in tests) and any insert that
// bypasses the column default still get an id.
type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a random UUID when the caller left ID unset.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// EncryptionMode names how a message's content relates to server-side
// visibility, per the GLOSSARY: none (plaintext), e2ee (opaque to the
// server), server (server-held key, server can decrypt for translation),
// hybrid (both an e2ee payload and a server-decryptable one).
type EncryptionMode string

const (
	EncryptionNone   EncryptionMode = "none"
	EncryptionE2EE   EncryptionMode = "e2ee"
	EncryptionServer EncryptionMode = "server"
	EncryptionHybrid EncryptionMode = "hybrid"
)

// Conversation is the container a set of messages belongs to.
type Conversation struct {
	BaseModel
	Key           string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"key"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`

	Members []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMember records a participant's language preferences within
// a conversation. A member contributes up to three languages to target
// resolution: the language they set as their system UI language, a
// secondary regional language, and an explicit custom destination
// language override.
type ConversationMember struct {
	ID                      uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ConversationID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_member_unique" json:"conversation_id"`
	ParticipantID           string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_member_unique" json:"participant_id"`
	SystemLanguage          string    `gorm:"type:varchar(10)" json:"system_language"`
	RegionalLanguage        string    `gorm:"type:varchar(10)" json:"regional_language,omitempty"`
	CustomDestinationLanguage string  `gorm:"type:varchar(10)" json:"custom_destination_language,omitempty"`
	IsActive                bool      `gorm:"default:true" json:"is_active"`
	JoinedAt                time.Time `gorm:"autoCreateTime" json:"joined_at"`

	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`
}

func (ConversationMember) TableName() string {
	return "conversation_members"
}

// BeforeCreate assigns a random UUID when the caller left ID unset.
func (m *ConversationMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Languages returns the distinct, non-empty languages this member
// contributes to a conversation's resolved target set.
func (m *ConversationMember) Languages() []string {
	seen := make(map[string]struct{}, 3)
	var out []string
	for _, lang := range []string{m.SystemLanguage, m.RegionalLanguage, m.CustomDestinationLanguage} {
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	return out
}

// AnonymousParticipant is a conversation participant who never
// registered a ConversationMember record (no account, no system-language
// preference set) and contributes only a single display language rather
// than a member's three-field preference set (spec §4.1: target-language
// resolution unions active members and active anonymous participants,
// "anonymous participants contribute `language`").
type AnonymousParticipant struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_anon_participant_unique" json:"conversation_id"`
	ParticipantID  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_anon_participant_unique" json:"participant_id"`
	Language       string    `gorm:"type:varchar(10)" json:"language"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (AnonymousParticipant) TableName() string {
	return "anonymous_participants"
}

// BeforeCreate assigns a random UUID when the caller left ID unset.
func (a *AnonymousParticipant) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ConversationKey is the opaque 32-byte symmetric key bound to one
// conversation, addressed by KeyID, used for AES-256-GCM encryption of
// server-mode translations (spec §3, §4.5). The store owns this table;
// EncryptionHelper reads it and, on a conversation's first encrypted
// translation, inserts a freshly generated key.
type ConversationKey struct {
	KeyID          string    `gorm:"type:varchar(64);primary_key" json:"key_id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"conversation_id"`
	Purpose        string    `gorm:"type:varchar(30);not null;default:'conversation'" json:"purpose"`
	KeyBytesB64    string    `gorm:"type:text;not null" json:"-"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ConversationKey) TableName() string {
	return "conversation_keys"
}

// Message is a single authored message in a conversation. Content is
// stored as given by the caller: plaintext in "none"/"server" mode, or
// the client's own opaque ciphertext blob in "e2ee"/"hybrid" mode — the
// server never encrypts or decrypts message content itself, only
// translations (spec §4.5 is scoped to translations, not messages).
type Message struct {
	BaseModel
	ConversationID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_message_conv" json:"conversation_id"`
	SenderID          *string        `gorm:"type:varchar(255)" json:"sender_id,omitempty"`
	AnonymousSenderID *string        `gorm:"type:varchar(255)" json:"anonymous_sender_id,omitempty"`
	Content           string         `gorm:"type:text;not null" json:"content"`
	OriginalLanguage  string         `gorm:"type:varchar(10);not null" json:"original_language"`
	MessageType       string         `gorm:"type:varchar(30);default:'text'" json:"message_type"`
	ReplyToID         *uuid.UUID     `gorm:"type:uuid" json:"reply_to_id,omitempty"`
	ModelType         *string        `gorm:"type:varchar(50)" json:"model_type,omitempty"`
	EncryptionMode    EncryptionMode `gorm:"type:varchar(10);not null;default:'none'" json:"encryption_mode"`

	Conversation Conversation  `gorm:"foreignKey:ConversationID" json:"-"`
	Translations []Translation `gorm:"foreignKey:MessageID" json:"translations,omitempty"`
	Attachments  []Attachment  `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// Translation is the persisted result of translating a Message into one
// target language. The unique index on (message_id, target_language)
// backs the upsert-by-natural-key semantics in spec §4.2 and §8.
type Translation struct {
	BaseModel
	MessageID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_translation_unique" json:"message_id"`
	TargetLanguage    string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_translation_unique" json:"target_language"`
	TranslatedContent string    `gorm:"type:text;not null" json:"translated_content"`
	TranslationModel  string    `gorm:"type:varchar(50)" json:"translation_model"`
	ConfidenceScore   float64   `json:"confidence_score"`
	IsEncrypted       bool      `gorm:"default:false" json:"is_encrypted"`
	KeyID             *string   `gorm:"type:varchar(64)" json:"key_id,omitempty"`
	IV                *string   `gorm:"type:varchar(64)" json:"iv,omitempty"`
	AuthTag           *string   `gorm:"type:varchar(64)" json:"auth_tag,omitempty"`
	TaskID            string    `gorm:"type:varchar(255);index" json:"task_id"`

	Message Message `gorm:"foreignKey:MessageID" json:"-"`
}

func (Translation) TableName() string {
	return "translations"
}

// Attachment is a voice-message audio file hung off a Message,
// referencing file storage rather than embedding bytes in the row.
type Attachment struct {
	BaseModel
	MessageID      uuid.UUID `gorm:"type:uuid;not null;index" json:"message_id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`
	FileName       string    `gorm:"type:text;not null" json:"file_name"`
	FileURL        string    `gorm:"type:text;not null" json:"file_url"`
	MimeType       string    `gorm:"type:varchar(100)" json:"mime_type"`
	DurationMs     int       `json:"duration_ms"`

	Message          Message                 `gorm:"foreignKey:MessageID" json:"-"`
	Transcription    *TranscriptionRecord    `gorm:"foreignKey:AttachmentID" json:"transcription,omitempty"`
	TranslatedAudios []TranslatedAudioRecord `gorm:"foreignKey:AttachmentID" json:"translated_audios,omitempty"`
}

func (Attachment) TableName() string {
	return "attachments"
}

// TranscriptionRecord is phase one of the audio attachment pipeline: the
// source-language text recovered from the original recording, plus
// whatever speaker-diarization metadata the worker supplied.
type TranscriptionRecord struct {
	BaseModel
	AttachmentID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"attachment_id"`
	Text                  string    `gorm:"type:text;not null" json:"text"`
	Language              string    `gorm:"type:varchar(10);not null" json:"language"`
	Confidence            float64   `json:"confidence"`
	Source                string    `gorm:"type:varchar(20)" json:"source"` // mobile, whisper, voice_api
	SegmentsJSON          *string   `gorm:"type:text" json:"segments,omitempty"`
	SpeakerCount          int       `json:"speaker_count,omitempty"`
	PrimarySpeakerID      *string   `gorm:"type:varchar(100)" json:"primary_speaker_id,omitempty"`
	SenderVoiceIdentified bool      `json:"sender_voice_identified,omitempty"`
	SenderSpeakerID       *string   `gorm:"type:varchar(100)" json:"sender_speaker_id,omitempty"`
	SpeakerAnalysisJSON   *string   `gorm:"type:text" json:"speaker_analysis,omitempty"`
	DurationMs            int      `json:"duration_ms"`
	TaskID                string    `gorm:"type:varchar(255);index" json:"task_id"`

	Attachment Attachment `gorm:"foreignKey:AttachmentID" json:"-"`
}

func (TranscriptionRecord) TableName() string {
	return "transcription_records"
}

// TranslatedAudioRecord is one per-language result of phase two: the
// synthesized translated audio derived from an attachment's transcription.
type TranslatedAudioRecord struct {
	BaseModel
	AttachmentID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_translated_audio_unique" json:"attachment_id"`
	TargetLanguage  string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_translated_audio_unique" json:"target_language"`
	TranslatedText  string    `gorm:"type:text" json:"translated_text"`
	StoragePath     string    `gorm:"type:text;not null" json:"storage_path"`
	URL             string    `gorm:"type:text;not null" json:"url"`
	DurationMs      int       `json:"duration_ms"`
	Format          string    `gorm:"type:varchar(20)" json:"format"`
	VoiceCloned     bool      `json:"voice_cloned"`
	VoiceQuality    float64   `json:"voice_quality,omitempty"`
	SegmentsJSON    *string   `gorm:"type:text" json:"segments,omitempty"`
	TTSModel        string    `gorm:"type:varchar(50)" json:"tts_model"`
	TaskID          string    `gorm:"type:varchar(255);index" json:"task_id"`

	Attachment Attachment `gorm:"foreignKey:AttachmentID" json:"-"`
}

func (TranslatedAudioRecord) TableName() string {
	return "translated_audio_records"
}

// VoiceProfile is a participant's voice-clone reference embedding, one
// per user, with a monotonically increasing Version across replacements.
type VoiceProfile struct {
	BaseModel
	UserID                 string  `gorm:"type:varchar(255);not null;uniqueIndex" json:"user_id"`
	ProfileID              string  `gorm:"type:varchar(255);not null" json:"profile_id"`
	EmbeddingB64           string  `gorm:"type:text;not null" json:"-"`
	QualityScore           float64 `json:"quality_score"`
	AudioCount             int     `json:"audio_count"`
	TotalDurationMs        int    `json:"total_duration_ms"`
	Version                int     `gorm:"default:1" json:"version"`
	Fingerprint            *string `gorm:"type:varchar(255)" json:"fingerprint,omitempty"`
	VoiceCharacteristicsJSON *string `gorm:"type:text" json:"voice_characteristics,omitempty"`
	ChatterboxConditionalsB64 *string `gorm:"type:text" json:"-"`
	ReferenceAudioID       *string `gorm:"type:varchar(255)" json:"reference_audio_id,omitempty"`
	ReferenceAudioURL      *string `gorm:"type:text" json:"reference_audio_url,omitempty"`
}

func (VoiceProfile) TableName() string {
	return "voice_profiles"
}

// PendingTask is the optional durable record of an in-flight bus dispatch
// (spec §3, §9): an external store for this map lets a standalone voice
// job's completion be re-associated with its attachment after a process
// restart; without it, those completions still work, just without that
// association.
type PendingTask struct {
	TaskID         string     `gorm:"type:varchar(255);primary_key" json:"task_id"`
	MessageID      *uuid.UUID `gorm:"type:uuid" json:"message_id,omitempty"`
	AttachmentID   *uuid.UUID `gorm:"type:uuid" json:"attachment_id,omitempty"`
	ConversationID *uuid.UUID `gorm:"type:uuid" json:"conversation_id,omitempty"`
	UserID         *string    `gorm:"type:varchar(255)" json:"user_id,omitempty"`
	DispatchedAt   time.Time  `gorm:"autoCreateTime" json:"dispatched_at"`
}

func (PendingTask) TableName() string {
	return "pending_tasks"
}

// UserTranslationStat is a per-user counter of translations delivered to
// that user's authored messages, incremented on every translation
// completion (spec §4.2 step 5).
type UserTranslationStat struct {
	UserID           string `gorm:"type:varchar(255);primary_key" json:"user_id"`
	TranslationsUsed int    `gorm:"default:0" json:"translations_used"`
}

func (UserTranslationStat) TableName() string {
	return "user_translation_stats"
}
