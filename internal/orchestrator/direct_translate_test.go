package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
)

func TestTranslateTextDirectly_Success(t *testing.T) {
	o, _, memBus := newTestOrchestrator(t)
	o.syncTranslateTimeout = time.Second

	type outcome struct {
		result DirectTranslationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := o.TranslateTextDirectly(context.Background(), "hello", "en", "fr", "medium")
		done <- outcome{result, err}
	}()

	waitUntil(t, time.Second, func() bool { return len(memBus.Translations) > 0 })
	req := memBus.Translations[0]
	memBus.Complete(bus.CompletionEvent{
		Kind: bus.KindTranslationCompleted,
		Translation: &bus.TranslationResult{
			MessageID:       req.MessageID,
			TargetLanguage:  "fr",
			TranslatedText:  "bonjour",
			TranslatorModel: "nmt",
			ConfidenceScore: 0.95,
		},
	})

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("translate directly: %v", o.err)
		}
		if o.result.TranslatedText != "bonjour" {
			t.Fatalf("expected translated text, got %q", o.result.TranslatedText)
		}
		if o.result.TranslatorModel == fallbackModelType {
			t.Fatalf("expected a real model, got fallback")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for TranslateTextDirectly to return")
	}
}

func TestTranslateTextDirectly_TimeoutFallback(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.syncTranslateTimeout = 30 * time.Millisecond

	result, err := o.TranslateTextDirectly(context.Background(), "hello", "en", "fr", "medium")
	if err != nil {
		t.Fatalf("translate directly: %v", err)
	}
	if result.TranslatorModel != fallbackModelType {
		t.Fatalf("expected fallback model, got %q", result.TranslatorModel)
	}
	if result.ConfidenceScore != fallbackConfidenceScore {
		t.Fatalf("expected fallback confidence %v, got %v", fallbackConfidenceScore, result.ConfidenceScore)
	}

	snap := o.Stats.Snapshot()
	if snap.Errors == 0 {
		t.Fatalf("expected errors counter incremented on timeout")
	}
}
