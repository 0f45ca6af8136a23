package orchestrator

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
)

const (
	fallbackModelType      = "fallback"
	fallbackConfidenceScore = 0.1
)

// DirectTranslationResult is translateTextDirectly's return shape.
type DirectTranslationResult struct {
	TranslatedText  string
	TranslatorModel string
	ConfidenceScore float64
}

// TranslateTextDirectly implements spec §4.4's synchronous REST path: it
// dispatches a translation request under a synthetic messageId and waits,
// with a 10-second timeout, for the matching translationCompleted event,
// detaching its bus listener whether it wins the race or times out. On
// timeout or translationError it returns a fallback result tagged
// modelType "fallback" / confidenceScore 0.1, per spec §4.4/§7/§8 scenario 6.
func (o *Orchestrator) TranslateTextDirectly(ctx context.Context, text, sourceLanguage, targetLanguage, modelType string) (DirectTranslationResult, error) {
	syntheticMessageID := uuid.NewString()

	resultCh := make(chan DirectTranslationResult, 1)
	var once sync.Once

	unsub, err := o.Bus.Subscribe(func(ev bus.CompletionEvent) {
		switch ev.Kind {
		case bus.KindTranslationCompleted:
			if ev.Translation == nil || ev.Translation.MessageID != syntheticMessageID || ev.Translation.TargetLanguage != targetLanguage {
				return
			}
			once.Do(func() {
				resultCh <- DirectTranslationResult{
					TranslatedText:  ev.Translation.TranslatedText,
					TranslatorModel: ev.Translation.TranslatorModel,
					ConfidenceScore: ev.Translation.ConfidenceScore,
				}
			})
		case bus.KindTranslationError:
			if ev.MessageID != syntheticMessageID {
				return
			}
			once.Do(func() {
				resultCh <- fallbackResult()
			})
		}
	})
	if err != nil {
		return fallbackResult(), err
	}
	defer unsub()

	timeoutCtx, cancel := context.WithTimeout(ctx, o.syncTranslateTimeout)
	defer cancel()

	if _, err := o.Bus.RequestTranslation(timeoutCtx, bus.TranslationRequest{
		MessageID:       syntheticMessageID,
		Text:            text,
		SourceLanguage:  sourceLanguage,
		TargetLanguages: []string{targetLanguage},
		ModelType:       modelType,
	}); err != nil {
		log.Printf("[Orchestrator] translateTextDirectly dispatch failed: %v", err)
		o.Stats.IncErrors()
		return fallbackResult(), nil
	}
	o.Stats.IncRequestsSent()

	select {
	case result := <-resultCh:
		return result, nil
	case <-timeoutCtx.Done():
		o.Stats.IncErrors()
		return fallbackResult(), nil
	}
}

func fallbackResult() DirectTranslationResult {
	return DirectTranslationResult{
		TranslatorModel: fallbackModelType,
		ConfidenceScore: fallbackConfidenceScore,
	}
}
