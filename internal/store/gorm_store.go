package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
)

// GormStore implements Store on top of gorm.io/gorm, following the
// teacher's entity conventions (BaseModel, TableName methods) and its
// gorm.io/driver/postgres dependency for production use.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an already-opened *gorm.DB. Callers own connecting
// and migrating; NewGormStore just adapts it to the Store interface.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates/updates every table this store needs, mirroring
// the teacher's debug_db command's migration step but generalized to
// gorm.AutoMigrate instead of a one-off column patch.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.Conversation{},
		&model.ConversationMember{},
		&model.ConversationKey{},
		&model.AnonymousParticipant{},
		&model.Message{},
		&model.Translation{},
		&model.Attachment{},
		&model.TranscriptionRecord{},
		&model.TranslatedAudioRecord{},
		&model.VoiceProfile{},
		&model.PendingTask{},
		&model.UserTranslationStat{},
	)
}

func (s *GormStore) CreateConversationIfAbsent(ctx context.Context, key string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: find conversation: %w", err)
	}

	conv = model.Conversation{Key: key}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		// Lost a create race against another goroutine; re-read.
		if isUniqueViolation(err) {
			if rerr := s.db.WithContext(ctx).Where("key = ?", key).First(&conv).Error; rerr == nil {
				return &conv, nil
			}
		}
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}
	return &conv, nil
}

func (s *GormStore) UpdateConversationLastMessageAt(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_at", at).Error
	if err != nil {
		return fmt.Errorf("store: update last message at: %w", err)
	}
	return nil
}

func (s *GormStore) ListActiveMembers(ctx context.Context, conversationID uuid.UUID) ([]model.ConversationMember, error) {
	var members []model.ConversationMember
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND is_active = ?", conversationID, true).
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("store: list active members: %w", err)
	}
	return members, nil
}

func (s *GormStore) UpsertMember(ctx context.Context, member *model.ConversationMember) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "conversation_id"}, {Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"system_language", "regional_language", "custom_destination_language", "is_active",
			}),
		}).
		Create(member).Error
	if err != nil {
		return fmt.Errorf("store: upsert member: %w", err)
	}
	return nil
}

func (s *GormStore) ListActiveAnonymousParticipants(ctx context.Context, conversationID uuid.UUID) ([]model.AnonymousParticipant, error) {
	var participants []model.AnonymousParticipant
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND is_active = ?", conversationID, true).
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("store: list active anonymous participants: %w", err)
	}
	return participants, nil
}

func (s *GormStore) UpsertAnonymousParticipant(ctx context.Context, participant *model.AnonymousParticipant) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"language", "is_active"}),
		}).
		Create(participant).Error
	if err != nil {
		return fmt.Errorf("store: upsert anonymous participant: %w", err)
	}
	return nil
}

func (s *GormStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

func (s *GormStore) FindMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find message: %w", err)
	}
	return &msg, nil
}

func (s *GormStore) FindAttachment(ctx context.Context, id uuid.UUID) (*model.Attachment, error) {
	var att model.Attachment
	err := s.db.WithContext(ctx).First(&att, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find attachment: %w", err)
	}
	return &att, nil
}

func (s *GormStore) InsertAttachment(ctx context.Context, att *model.Attachment) error {
	if err := s.db.WithContext(ctx).Create(att).Error; err != nil {
		return fmt.Errorf("store: insert attachment: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateAttachmentTranscription(ctx context.Context, rec *model.TranscriptionRecord) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attachment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"text", "language", "confidence", "source", "segments_json",
				"speaker_count", "primary_speaker_id", "sender_voice_identified",
				"sender_speaker_id", "speaker_analysis_json", "duration_ms", "task_id",
			}),
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("store: update attachment transcription: %w", err)
	}
	return nil
}

func (s *GormStore) GetAttachmentTranscription(ctx context.Context, attachmentID uuid.UUID) (*model.TranscriptionRecord, error) {
	var rec model.TranscriptionRecord
	err := s.db.WithContext(ctx).Where("attachment_id = ?", attachmentID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get attachment transcription: %w", err)
	}
	return &rec, nil
}

func (s *GormStore) UpdateAttachmentTranslations(ctx context.Context, rec *model.TranslatedAudioRecord) (bool, error) {
	err := s.db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, fmt.Errorf("store: insert attachment translation: %w", err)
	}

	res := s.db.WithContext(ctx).
		Model(&model.TranslatedAudioRecord{}).
		Where("attachment_id = ? AND target_language = ?", rec.AttachmentID, rec.TargetLanguage).
		Updates(map[string]interface{}{
			"translated_text": rec.TranslatedText,
			"storage_path":    rec.StoragePath,
			"url":             rec.URL,
			"duration_ms":     rec.DurationMs,
			"format":          rec.Format,
			"voice_cloned":    rec.VoiceCloned,
			"voice_quality":   rec.VoiceQuality,
			"segments_json":   rec.SegmentsJSON,
			"tts_model":       rec.TTSModel,
			"task_id":         rec.TaskID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("store: update attachment translation: %w", res.Error)
	}
	return false, nil
}

func (s *GormStore) ListAttachmentTranslations(ctx context.Context, attachmentID uuid.UUID) ([]model.TranslatedAudioRecord, error) {
	var ts []model.TranslatedAudioRecord
	err := s.db.WithContext(ctx).Where("attachment_id = ?", attachmentID).Find(&ts).Error
	if err != nil {
		return nil, fmt.Errorf("store: list attachment translations: %w", err)
	}
	return ts, nil
}

func (s *GormStore) DeleteTranslations(ctx context.Context, messageID uuid.UUID, targetLanguages []string) error {
	if len(targetLanguages) == 0 {
		return nil
	}
	// Unscoped: a soft-deleted row would still hold the unique
	// (message_id, target_language) slot the completion upsert needs.
	err := s.db.WithContext(ctx).Unscoped().
		Where("message_id = ? AND target_language IN ?", messageID, targetLanguages).
		Delete(&model.Translation{}).Error
	if err != nil {
		return fmt.Errorf("store: delete translations: %w", err)
	}
	return nil
}

// UpsertTranslation performs an optimistic insert first, falling back to
// an update-by-natural-key on conflict — the "optimistic upsert with
// legacy fallback" spec §4.2/§7 calls for, so a racing retranslation
// never produces two rows for the same (messageID, targetLanguage). Any
// pre-existing duplicate rows for the pair (legacy data) are collapsed to
// one before the insert is attempted.
func (s *GormStore) UpsertTranslation(ctx context.Context, t *model.Translation) (bool, error) {
	var existing []model.Translation
	if err := s.db.WithContext(ctx).
		Where("message_id = ? AND target_language = ?", t.MessageID, t.TargetLanguage).
		Order("created_at DESC").
		Find(&existing).Error; err != nil {
		return false, fmt.Errorf("store: find existing translations: %w", err)
	}
	if len(existing) > 1 {
		for _, stale := range existing[1:] {
			if err := s.db.WithContext(ctx).Delete(&stale).Error; err != nil {
				return false, fmt.Errorf("store: collapse duplicate translations: %w", err)
			}
		}
	}

	err := s.db.WithContext(ctx).Create(t).Error
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, fmt.Errorf("store: insert translation: %w", err)
	}

	res := s.db.WithContext(ctx).
		Model(&model.Translation{}).
		Where("message_id = ? AND target_language = ?", t.MessageID, t.TargetLanguage).
		Updates(map[string]interface{}{
			"translated_content": t.TranslatedContent,
			"translation_model":  t.TranslationModel,
			"confidence_score":   t.ConfidenceScore,
			"is_encrypted":       t.IsEncrypted,
			"key_id":             t.KeyID,
			"iv":                 t.IV,
			"auth_tag":           t.AuthTag,
			"task_id":            t.TaskID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("store: update translation: %w", res.Error)
	}
	return false, nil
}

func (s *GormStore) GetTranslation(ctx context.Context, messageID uuid.UUID, targetLanguage string) (*model.Translation, error) {
	var t model.Translation
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND target_language = ?", messageID, targetLanguage).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get translation: %w", err)
	}
	return &t, nil
}

func (s *GormStore) ListTranslations(ctx context.Context, messageID uuid.UUID) ([]model.Translation, error) {
	var ts []model.Translation
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&ts).Error
	if err != nil {
		return nil, fmt.Errorf("store: list translations: %w", err)
	}
	return ts, nil
}

func (s *GormStore) IncrementUserTranslationsUsed(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignment("translations_used", gorm.Expr("user_translation_stats.translations_used + 1")),
		}).
		Create(&model.UserTranslationStat{UserID: userID, TranslationsUsed: 1}).Error
	if err != nil {
		return fmt.Errorf("store: increment user translations used: %w", err)
	}
	return nil
}

func (s *GormStore) LoadVoiceProfile(ctx context.Context, userID string) (*model.VoiceProfile, error) {
	var vp model.VoiceProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&vp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load voice profile: %w", err)
	}
	return &vp, nil
}

func (s *GormStore) UpsertVoiceProfile(ctx context.Context, vp *model.VoiceProfile) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"profile_id", "embedding_b64", "quality_score", "audio_count",
				"total_duration_ms", "version", "fingerprint", "voice_characteristics_json",
				"chatterbox_conditionals_b64", "reference_audio_id", "reference_audio_url",
			}),
		}).
		Create(vp).Error
	if err != nil {
		return fmt.Errorf("store: upsert voice profile: %w", err)
	}
	return nil
}

func (s *GormStore) LoadConversationEncryptionKey(ctx context.Context, conversationID uuid.UUID) (*model.ConversationKey, error) {
	var key model.ConversationKey
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load conversation encryption key: %w", err)
	}
	return &key, nil
}

func (s *GormStore) CreateConversationEncryptionKey(ctx context.Context, key *model.ConversationKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("store: create conversation encryption key: %w", err)
	}
	return nil
}

func (s *GormStore) FindConversationEncryptionKeyByID(ctx context.Context, keyID string) (*model.ConversationKey, error) {
	var key model.ConversationKey
	err := s.db.WithContext(ctx).Where("key_id = ?", keyID).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find conversation encryption key by id: %w", err)
	}
	return &key, nil
}

func (s *GormStore) RecordPendingTask(ctx context.Context, task *model.PendingTask) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("store: record pending task: %w", err)
	}
	return nil
}

func (s *GormStore) FindPendingTask(ctx context.Context, taskID string) (*model.PendingTask, error) {
	var task model.PendingTask
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find pending task: %w", err)
	}
	return &task, nil
}

func (s *GormStore) DeletePendingTask(ctx context.Context, taskID string) error {
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&model.PendingTask{}).Error
	if err != nil {
		return fmt.Errorf("store: delete pending task: %w", err)
	}
	return nil
}

// isUniqueViolation is a best-effort, driver-agnostic check: both the
// postgres driver and the sqlite driver used in tests surface a unique
// constraint violation as an error whose string names the constraint, so
// we match on that rather than importing each driver's error type.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "violates unique constraint")
}
