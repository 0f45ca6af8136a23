// Package store defines the Orchestrator's persistence contract (spec
// §6) and a GORM-backed implementation. The interface shape — one method
// per operation, doc comments stating thread-safety and not-found
// behavior, sentinel errors rather than typed error structs — follows
// zjrosen-perles's internal/orchestration/v2 repository interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
)

var (
	// ErrNotFound is returned by any find/load method when no row matches.
	ErrNotFound = errors.New("store: not found")
)

// Store is every persistence operation the Orchestrator needs, named
// after the contract spec §6 lists under "Store contract". All methods
// are safe for concurrent use; implementations must not leak a partial
// write on error.
type Store interface {
	// CreateConversationIfAbsent returns the conversation for key,
	// creating it first if it does not yet exist.
	CreateConversationIfAbsent(ctx context.Context, key string) (*model.Conversation, error)

	// UpdateConversationLastMessageAt stamps a conversation's
	// last-message timestamp after a new message is inserted.
	UpdateConversationLastMessageAt(ctx context.Context, conversationID uuid.UUID, at time.Time) error

	// ListActiveMembers returns every active member of a conversation,
	// used to resolve target languages on a LanguageCache miss.
	ListActiveMembers(ctx context.Context, conversationID uuid.UUID) ([]model.ConversationMember, error)

	// UpsertMember creates or updates a conversation member's language
	// preferences, keyed on (conversationID, participantID). This is not
	// itself named in spec §6's contract table, but something has to
	// seed membership for ListActiveMembers to resolve against.
	UpsertMember(ctx context.Context, member *model.ConversationMember) error

	// ListActiveAnonymousParticipants returns every active anonymous
	// participant of a conversation — non-member callers who contribute
	// only a single language preference, unioned with ListActiveMembers'
	// result during target-language resolution (spec §4.1).
	ListActiveAnonymousParticipants(ctx context.Context, conversationID uuid.UUID) ([]model.AnonymousParticipant, error)

	// UpsertAnonymousParticipant creates or updates an anonymous
	// participant's language, keyed on (conversationID, participantID).
	UpsertAnonymousParticipant(ctx context.Context, participant *model.AnonymousParticipant) error

	// InsertMessage persists a new message, generating its ID if unset.
	InsertMessage(ctx context.Context, msg *model.Message) error

	// FindMessage fetches a message by ID, returning ErrNotFound if absent.
	FindMessage(ctx context.Context, id uuid.UUID) (*model.Message, error)

	// FindAttachment fetches an attachment by ID, returning ErrNotFound if absent.
	FindAttachment(ctx context.Context, id uuid.UUID) (*model.Attachment, error)

	// InsertAttachment persists a new attachment, generating its ID if unset.
	InsertAttachment(ctx context.Context, att *model.Attachment) error

	// UpdateAttachmentTranscription records phase-one transcription for
	// an attachment, replacing any prior transcription for the same one
	// (an attachment has exactly one transcription, spec §3).
	UpdateAttachmentTranscription(ctx context.Context, rec *model.TranscriptionRecord) error

	// GetAttachmentTranscription fetches an attachment's transcription, if any.
	GetAttachmentTranscription(ctx context.Context, attachmentID uuid.UUID) (*model.TranscriptionRecord, error)

	// UpdateAttachmentTranslations upserts one per-language translated
	// audio record for an attachment, keyed on (attachmentID,
	// targetLanguage). The returned bool is true when this call inserted
	// a new row, false when it replaced an existing one.
	UpdateAttachmentTranslations(ctx context.Context, rec *model.TranslatedAudioRecord) (inserted bool, err error)

	// ListAttachmentTranslations returns every translated-audio record
	// recorded for an attachment.
	ListAttachmentTranslations(ctx context.Context, attachmentID uuid.UUID) ([]model.TranslatedAudioRecord, error)

	// DeleteTranslations removes existing translation rows for a message
	// across the given target languages, used before a retranslation
	// dispatch so the completion upsert replaces cleanly (spec §4.1).
	DeleteTranslations(ctx context.Context, messageID uuid.UUID, targetLanguages []string) error

	// UpsertTranslation inserts or replaces the translation for
	// (messageID, targetLanguage), honoring the unique natural key spec
	// §3 and §8 require. Per spec §4.2 step 3, if multiple rows already
	// exist for that pair (legacy data) all but the most recent are
	// deleted first. The returned bool is true on insert, false on update.
	UpsertTranslation(ctx context.Context, t *model.Translation) (inserted bool, err error)

	// GetTranslation fetches a translation by (messageID, targetLanguage).
	GetTranslation(ctx context.Context, messageID uuid.UUID, targetLanguage string) (*model.Translation, error)

	// ListTranslations returns every translation recorded for a message.
	ListTranslations(ctx context.Context, messageID uuid.UUID) ([]model.Translation, error)

	// IncrementUserTranslationsUsed bumps a user's lifetime
	// translations-received counter by one, creating the row on first use.
	IncrementUserTranslationsUsed(ctx context.Context, userID string) error

	// LoadVoiceProfile fetches a user's voice profile, returning
	// ErrNotFound if they have none.
	LoadVoiceProfile(ctx context.Context, userID string) (*model.VoiceProfile, error)

	// UpsertVoiceProfile creates or replaces a user's voice profile. Per
	// the decided Open Question in SPEC_FULL.md, the caller is
	// responsible for merging Chatterbox conditionals before calling
	// this method; UpsertVoiceProfile itself just writes what it is given.
	UpsertVoiceProfile(ctx context.Context, vp *model.VoiceProfile) error

	// LoadConversationEncryptionKey fetches the AES-256 key bound to a
	// conversation, returning ErrNotFound if the conversation has never
	// needed one (i.e. has never carried a server/hybrid-mode message).
	LoadConversationEncryptionKey(ctx context.Context, conversationID uuid.UUID) (*model.ConversationKey, error)

	// CreateConversationEncryptionKey persists a freshly generated key
	// the first time a conversation needs server-side encryption.
	CreateConversationEncryptionKey(ctx context.Context, key *model.ConversationKey) error

	// FindConversationEncryptionKeyByID looks up a key by its KeyID
	// directly, used when decrypting a translation row that only stores
	// the KeyID, not the owning conversation.
	FindConversationEncryptionKeyByID(ctx context.Context, keyID string) (*model.ConversationKey, error)

	// RecordPendingTask durably records an in-flight dispatch, for
	// crash-recovery reconciliation. Persistence of pending tasks is
	// optional per spec §9; a Store may implement this as a no-op.
	RecordPendingTask(ctx context.Context, task *model.PendingTask) error

	// FindPendingTask looks up a pending task by ID, returning
	// ErrNotFound if it is absent or was never recorded.
	FindPendingTask(ctx context.Context, taskID string) (*model.PendingTask, error)

	// DeletePendingTask removes a pending task record by task ID, a
	// no-op if RecordPendingTask is itself a no-op.
	DeletePendingTask(ctx context.Context, taskID string) error
}
