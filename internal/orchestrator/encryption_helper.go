package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/cryptoutil"
	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
	"github.com/krafton-translate/message-translation-orchestrator/internal/store"
)

// gcmTagSize is the standard AES-GCM authentication tag length; crypto/
// cipher's GCM.Seal appends it to the ciphertext, so EncryptionHelper
// splits it back off to give callers the separate ciphertext/authTag
// columns spec §3's Translation entity names.
const gcmTagSize = 16

// EncryptionHelper implements spec §4.5: it resolves conversation key
// material through the Store, encrypts/decrypts translation bodies with
// cryptoutil's AES-256-GCM primitive, and decides whether a given
// message's translations need encryption at all.
type EncryptionHelper struct {
	store store.Store

	mu   sync.Mutex
	keys map[string][]byte // keyId -> raw key bytes, process-local cache per spec §4.5
}

// NewEncryptionHelper builds a helper backed by the given Store.
func NewEncryptionHelper(st store.Store) *EncryptionHelper {
	return &EncryptionHelper{
		store: st,
		keys:  make(map[string][]byte),
	}
}

// ShouldEncryptTranslation looks up a message's conversation and reports
// whether translations of it must be encrypted at rest: true iff the
// message's EncryptionMode is "server" or "hybrid" (spec §4.5).
func (h *EncryptionHelper) ShouldEncryptTranslation(ctx context.Context, messageID uuid.UUID) (shouldEncrypt bool, conversationID uuid.UUID, err error) {
	msg, err := h.store.FindMessage(ctx, messageID)
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("encryption helper: find message: %w", err)
	}
	should := msg.EncryptionMode == model.EncryptionServer || msg.EncryptionMode == model.EncryptionHybrid
	return should, msg.ConversationID, nil
}

// getConversationEncryptionKey resolves a conversation's key, generating
// and persisting a fresh one on first use.
func (h *EncryptionHelper) getConversationEncryptionKey(ctx context.Context, conversationID uuid.UUID) (keyID string, keyBytes []byte, err error) {
	existing, err := h.store.LoadConversationEncryptionKey(ctx, conversationID)
	if err == nil {
		keyBytes, decodeErr := cryptoutil.DecodeKey(existing.KeyBytesB64)
		if decodeErr != nil {
			return "", nil, fmt.Errorf("encryption helper: decode stored key: %w", decodeErr)
		}
		h.cacheKey(existing.KeyID, keyBytes)
		return existing.KeyID, keyBytes, nil
	}
	if err != store.ErrNotFound {
		return "", nil, fmt.Errorf("encryption helper: load conversation key: %w", err)
	}

	raw, err := cryptoutil.GenerateKey()
	if err != nil {
		return "", nil, err
	}
	newKey := &model.ConversationKey{
		KeyID:          uuid.NewString(),
		ConversationID: conversationID,
		Purpose:        "conversation",
		KeyBytesB64:    cryptoutil.EncodeKey(raw),
	}
	if err := h.store.CreateConversationEncryptionKey(ctx, newKey); err != nil {
		return "", nil, fmt.Errorf("encryption helper: persist new key: %w", err)
	}
	h.cacheKey(newKey.KeyID, raw)
	return newKey.KeyID, raw, nil
}

func (h *EncryptionHelper) cacheKey(keyID string, keyBytes []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys[keyID] = keyBytes
}

func (h *EncryptionHelper) lookupCachedKey(keyID string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k, ok := h.keys[keyID]
	return k, ok
}

// EncryptedTranslation is the output of EncryptTranslation: the
// ciphertext, IV, and auth tag spec §3 requires as separate columns,
// all base64-encoded for storage in text fields.
type EncryptedTranslation struct {
	CiphertextB64 string
	KeyID         string
	IVB64         string
	AuthTagB64    string
}

// EncryptTranslation seals translated text under the given conversation's
// key, generating that key on first use, and splits the sealed output
// into ciphertext and auth tag per spec §4.5 and §3.
func (h *EncryptionHelper) EncryptTranslation(ctx context.Context, conversationID uuid.UUID, plaintext string) (*EncryptedTranslation, error) {
	keyID, keyBytes, err := h.getConversationEncryptionKey(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	helper, err := cryptoutil.NewEncryptionHelper(keyBytes)
	if err != nil {
		return nil, err
	}

	sealed, nonce, err := helper.Seal([]byte(plaintext))
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcmTagSize {
		return nil, fmt.Errorf("encryption helper: sealed output shorter than gcm tag")
	}
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	authTag := sealed[len(sealed)-gcmTagSize:]

	return &EncryptedTranslation{
		CiphertextB64: base64.StdEncoding.EncodeToString(ciphertext),
		KeyID:         keyID,
		IVB64:         base64.StdEncoding.EncodeToString(nonce),
		AuthTagB64:    base64.StdEncoding.EncodeToString(authTag),
	}, nil
}

// DecryptTranslation reverses EncryptTranslation. On any authentication
// failure (tampered tag, wrong key) it returns an error and the caller
// must not surface partial plaintext — spec §7's "Decryption failure"
// error class requires failing closed.
func (h *EncryptionHelper) DecryptTranslation(ctx context.Context, ciphertextB64, keyID, ivB64, authTagB64 string) (string, error) {
	keyBytes, ok := h.lookupCachedKey(keyID)
	if !ok {
		rec, err := h.store.FindConversationEncryptionKeyByID(ctx, keyID)
		if err != nil {
			return "", fmt.Errorf("encryption helper: find key %s: %w", keyID, err)
		}
		keyBytes, err = cryptoutil.DecodeKey(rec.KeyBytesB64)
		if err != nil {
			return "", fmt.Errorf("encryption helper: decode key %s: %w", keyID, err)
		}
		h.cacheKey(keyID, keyBytes)
	}

	helper, err := cryptoutil.NewEncryptionHelper(keyBytes)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("encryption helper: decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", fmt.Errorf("encryption helper: decode iv: %w", err)
	}
	authTag, err := base64.StdEncoding.DecodeString(authTagB64)
	if err != nil {
		return "", fmt.Errorf("encryption helper: decode auth tag: %w", err)
	}

	sealed := append(append([]byte{}, ciphertext...), authTag...)
	plaintext, err := helper.Open(sealed, nonce)
	if err != nil {
		return "", fmt.Errorf("encryption helper: decrypt: %w", err)
	}
	return string(plaintext), nil
}
