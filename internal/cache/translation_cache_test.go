package cache

import "testing"

func TestTranslationCache_GetSetHasRoundTrip(t *testing.T) {
	c := NewTranslationCache(10)

	if _, ok := c.Get("msg-1", "en", "ko"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if c.Has("msg-1", "en", "ko") {
		t.Fatalf("expected Has to report false before Set")
	}

	c.Set("msg-1", "en", "ko", "안녕하세요")

	if !c.Has("msg-1", "en", "ko") {
		t.Fatalf("expected Has to report true after Set")
	}
	got, ok := c.Get("msg-1", "en", "ko")
	if !ok || got != "안녕하세요" {
		t.Fatalf("Get = %q, %v, want %q, true", got, ok, "안녕하세요")
	}
}

func TestTranslationCache_DistinctMessagesSameTextDoNotCollide(t *testing.T) {
	c := NewTranslationCache(10)

	c.Set("msg-1", "en", "ko", "hello")
	c.Set("msg-2", "en", "ko", "hello")

	if c.Len() != 2 {
		t.Fatalf("expected two distinct entries keyed by messageId, got Len()=%d", c.Len())
	}

	k1 := c.GenerateKey("msg-1", "en", "ko")
	k2 := c.GenerateKey("msg-2", "en", "ko")
	if k1 == k2 {
		t.Fatalf("expected distinct keys for distinct messageIds, got %q == %q", k1, k2)
	}
}

func TestTranslationCache_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := NewTranslationCache(2)

	c.Set("msg-1", "en", "ko", "one")
	c.Set("msg-2", "en", "ko", "two")

	// Touch msg-1 so msg-2 becomes the least recently used entry.
	if _, ok := c.Get("msg-1", "en", "ko"); !ok {
		t.Fatalf("expected msg-1 to be cached")
	}

	c.Set("msg-3", "en", "ko", "three")

	if c.Has("msg-2", "en", "ko") {
		t.Fatalf("expected msg-2 to be evicted as least recently used")
	}
	if !c.Has("msg-1", "en", "ko") {
		t.Fatalf("expected msg-1 to survive eviction (recently touched)")
	}
	if !c.Has("msg-3", "en", "ko") {
		t.Fatalf("expected msg-3 to be cached (just inserted)")
	}
	if c.Len() != 2 {
		t.Fatalf("expected capacity to cap Len() at 2, got %d", c.Len())
	}
}

func TestTranslationCache_SetOnExistingKeyRefreshesRecency(t *testing.T) {
	c := NewTranslationCache(2)

	c.Set("msg-1", "en", "ko", "one")
	c.Set("msg-2", "en", "ko", "two")
	c.Set("msg-1", "en", "ko", "one-updated")

	c.Set("msg-3", "en", "ko", "three")

	if c.Has("msg-2", "en", "ko") {
		t.Fatalf("expected msg-2 to be evicted, msg-1 was refreshed more recently")
	}
	got, ok := c.Get("msg-1", "en", "ko")
	if !ok || got != "one-updated" {
		t.Fatalf("Get(msg-1) = %q, %v, want updated value", got, ok)
	}
}

func TestTranslationCache_Clear(t *testing.T) {
	c := NewTranslationCache(10)
	c.Set("msg-1", "en", "ko", "one")
	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("expected Len() == 0 after Clear, got %d", c.Len())
	}
	if c.Has("msg-1", "en", "ko") {
		t.Fatalf("expected Has to report false after Clear")
	}
}
