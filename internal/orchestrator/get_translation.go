package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
	"github.com/krafton-translate/message-translation-orchestrator/internal/store"
)

// GetTranslation implements spec §7/§8's read path: load the persisted
// translation for (messageID, targetLanguage) and return its plaintext,
// decrypting first when the row is server-encrypted. A decryption
// failure (authenticated tag mismatch) surfaces as a nil result rather
// than leaking ciphertext, per spec §7's "Decryption failure" entry.
func (o *Orchestrator) GetTranslation(ctx context.Context, messageID uuid.UUID, targetLanguage string) (*model.Translation, error) {
	t, err := o.Store.GetTranslation(ctx, messageID, targetLanguage)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("orchestrator: get translation: %w", err)
	}

	if !t.IsEncrypted {
		return t, nil
	}

	if t.KeyID == nil || t.IV == nil || t.AuthTag == nil {
		log.Printf("[Orchestrator] encrypted translation %s missing key/iv/authTag", t.ID)
		return nil, nil
	}

	plaintext, err := o.Encryption.DecryptTranslation(ctx, t.TranslatedContent, *t.KeyID, *t.IV, *t.AuthTag)
	if err != nil {
		log.Printf("[Orchestrator] decrypt translation %s: %v", t.ID, err)
		return nil, nil
	}

	decrypted := *t
	decrypted.TranslatedContent = plaintext
	return &decrypted, nil
}
