package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBus is an in-process BusClient double for tests: requests are
// recorded rather than sent anywhere, and a test drives completions by
// calling Complete directly. No goroutines, no network — deterministic
// by construction.
type MemoryBus struct {
	mu sync.Mutex

	Translations []TranslationRequest
	AudioJobs    []AudioJobRequest

	handlers []func(CompletionEvent)
	closed   bool
}

// NewMemoryBus builds an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) RequestTranslation(_ context.Context, req TranslationRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Translations = append(b.Translations, req)
	return uuid.NewString(), nil
}

func (b *MemoryBus) RequestAudioJob(_ context.Context, req AudioJobRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.AudioJobs = append(b.AudioJobs, req)
	return uuid.NewString(), nil
}

func (b *MemoryBus) Subscribe(handler func(CompletionEvent)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := len(b.handlers)
	b.handlers = append(b.handlers, handler)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[idx] = nil
	}, nil
}

// Complete synchronously delivers a completion event to every registered
// handler, as a test would after simulating worker processing.
func (b *MemoryBus) Complete(ev CompletionEvent) {
	b.mu.Lock()
	handlers := make([]func(CompletionEvent), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(ev)
		}
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
