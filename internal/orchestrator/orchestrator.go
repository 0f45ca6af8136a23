// Package orchestrator implements the Message Translation Orchestrator:
// the text-message ingest/fanout/completion pipeline and the Audio
// Attachment Processor built on top of it. It is the service object
// spec §2 describes as five collaborators plus an event surface; this
// package is the Orchestrator collaborator itself, wiring the other four
// (cache.TranslationCache, cache.LanguageCache, stats.Stats,
// EncryptionHelper) against the external bus.BusClient, store.Store,
// consent.ConsentService, and events.EventEmitter.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
	"github.com/krafton-translate/message-translation-orchestrator/internal/cache"
	"github.com/krafton-translate/message-translation-orchestrator/internal/consent"
	"github.com/krafton-translate/message-translation-orchestrator/internal/events"
	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
	"github.com/krafton-translate/message-translation-orchestrator/internal/stats"
	"github.com/krafton-translate/message-translation-orchestrator/internal/store"
)

// fallbackTargetLanguages is the audio pipeline's default target set when
// resolution yields nothing and translated audio is permitted (spec §4.3).
var fallbackTargetLanguages = []string{"en", "fr"}

// modelTypeAutoThreshold is the content-length cutoff for automatic
// model-type selection (spec §4.1): shorter messages get "medium", longer
// ones "premium".
const modelTypeAutoThreshold = 80

// Orchestrator is the core service object. All exported methods are safe
// for concurrent use; the unexported caches/sets/counters it wires
// together are each independently concurrency-safe.
type Orchestrator struct {
	Store       store.Store
	Bus         bus.BusClient
	Consent     consent.ConsentService
	Emitter     events.EventEmitter
	Encryption  *EncryptionHelper
	Stats       *stats.Stats

	translationCache *cache.TranslationCache
	languageCache    *cache.LanguageCache
	processedTasks   *ProcessedTaskSet

	uploadsRoot          string
	syncTranslateTimeout time.Duration
	bypassVoiceConsent   bool
	audioConfig          model.AudioConfig

	unsubscribe func()
}

// Config bundles the tunables Orchestrator needs beyond its collaborators.
type Config struct {
	UploadsRoot             string
	TranslationCacheSize    int
	LanguageCacheSize       int
	LanguageCacheTTL        time.Duration
	ProcessedTaskSetSize    int
	SyncTranslateTimeout    time.Duration
	BypassVoiceConsentCheck bool
	Audio                   model.AudioConfig
}

// New builds an Orchestrator and wires its internal caches/sets at the
// capacities cfg names, defaulting any zero value to the spec's bound.
func New(st store.Store, busClient bus.BusClient, consentSvc consent.ConsentService, emitter events.EventEmitter, statsTracker *stats.Stats, cfg Config) *Orchestrator {
	return &Orchestrator{
		Store:      st,
		Bus:        busClient,
		Consent:    consentSvc,
		Emitter:    emitter,
		Encryption: NewEncryptionHelper(st),
		Stats:      statsTracker,

		translationCache: cache.NewTranslationCache(cfg.TranslationCacheSize),
		languageCache:    cache.NewLanguageCache(cfg.LanguageCacheSize, cfg.LanguageCacheTTL),
		processedTasks:   NewProcessedTaskSet(cfg.ProcessedTaskSetSize),

		uploadsRoot:          cfg.UploadsRoot,
		syncTranslateTimeout: orDefaultDuration(cfg.SyncTranslateTimeout, 10*time.Second),
		bypassVoiceConsent:   cfg.BypassVoiceConsentCheck,
		audioConfig:          cfg.Audio,
	}
}

func orDefaultDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Start registers the orchestrator's bus subscription. Calling Start
// again first removes the previous listener, matching spec §5's "bus
// listeners registered once per process; on re-initialization, the
// previous listeners are removed to avoid double delivery."
func (o *Orchestrator) Start() error {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
	unsub, err := o.Bus.Subscribe(o.handleCompletionEvent)
	if err != nil {
		return fmt.Errorf("orchestrator: subscribe: %w", err)
	}
	o.unsubscribe = unsub
	return nil
}

// Stop removes the orchestrator's bus subscription.
func (o *Orchestrator) Stop() {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
}

// NewMessageInput is handleNewMessage's input descriptor (spec §4.1).
type NewMessageInput struct {
	ID                uuid.UUID // zero value means "absent": not a retranslation
	ConversationKey   string
	SenderID          *string
	AnonymousSenderID *string
	Content           string
	OriginalLanguage  string
	MessageType       string
	ReplyToID         *uuid.UUID
	EncryptionMode    model.EncryptionMode
	MessageModelType  *string // optional modelType field carried on the message itself

	TargetLanguage *string // caller override; absent means "fan out to all"
	ModelType      *string // caller-supplied operation-level override, highest priority
}

// NewMessageResult is handleNewMessage's synchronous response.
type NewMessageResult struct {
	MessageID       uuid.UUID
	Status          string
	TranslationQueued bool
}

const (
	statusMessageSaved       = "message_saved"
	statusRetranslationQueued = "retranslation_queued"
	statusE2EESkipped        = "e2ee_skipped"
)

// HandleNewMessage is the exported entry point external callers (the
// gateway HTTP/WebSocket layer) use to submit a new message or a
// retranslation request.
func (o *Orchestrator) HandleNewMessage(ctx context.Context, in NewMessageInput) (NewMessageResult, error) {
	return o.handleNewMessage(ctx, in)
}

// handleNewMessage implements spec §4.1: E2EE gate, persist-or-reference,
// early return, then asynchronous target resolution and dispatch. The
// synchronous part of this method never blocks on bus dispatch.
func (o *Orchestrator) handleNewMessage(ctx context.Context, in NewMessageInput) (NewMessageResult, error) {
	isRetranslation := in.ID != uuid.Nil

	// 1. E2EE gate.
	if in.EncryptionMode == model.EncryptionE2EE {
		if !isRetranslation {
			msg, err := o.persistNewMessage(ctx, in)
			if err != nil {
				return NewMessageResult{}, err
			}
			o.Stats.IncMessagesSaved()
			return NewMessageResult{MessageID: msg.ID, Status: statusE2EESkipped}, nil
		}
		return NewMessageResult{MessageID: in.ID, Status: statusE2EESkipped}, nil
	}

	// 2. Persist or reference.
	var msg *model.Message
	status := statusMessageSaved
	if !isRetranslation {
		saved, err := o.persistNewMessage(ctx, in)
		if err != nil {
			return NewMessageResult{}, err
		}
		msg = saved
		o.Stats.IncMessagesSaved()
	} else {
		found, err := o.Store.FindMessage(ctx, in.ID)
		if err != nil {
			return NewMessageResult{}, fmt.Errorf("orchestrator: retranslation target not found: %w", err)
		}
		msg = found
		status = statusRetranslationQueued
	}

	// 3. Return early; 4. dispatch asynchronously.
	go o.resolveAndDispatchTranslation(context.Background(), msg, isRetranslation, in.TargetLanguage, in.ModelType)

	return NewMessageResult{MessageID: msg.ID, Status: status, TranslationQueued: true}, nil
}

func (o *Orchestrator) persistNewMessage(ctx context.Context, in NewMessageInput) (*model.Message, error) {
	conv, err := o.Store.CreateConversationIfAbsent(ctx, in.ConversationKey)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create conversation: %w", err)
	}

	msg := &model.Message{
		ConversationID:    conv.ID,
		SenderID:          in.SenderID,
		AnonymousSenderID: in.AnonymousSenderID,
		Content:           in.Content,
		OriginalLanguage:  in.OriginalLanguage,
		MessageType:       in.MessageType,
		ReplyToID:         in.ReplyToID,
		EncryptionMode:    in.EncryptionMode,
		ModelType:         in.MessageModelType,
	}
	if msg.MessageType == "" {
		msg.MessageType = "text"
	}

	if err := o.Store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("orchestrator: insert message: %w", err)
	}
	now := time.Now()
	if err := o.Store.UpdateConversationLastMessageAt(ctx, conv.ID, now); err != nil {
		return nil, fmt.Errorf("orchestrator: update conversation timestamp: %w", err)
	}
	return msg, nil
}

// resolveAndDispatchTranslation runs the post-persistence half of
// handleNewMessage off the request path: target resolution, retranslation
// cleanup, model-type selection, and bus dispatch. Any failure here is
// logged and counted, never propagated (spec §4.1 failure semantics).
func (o *Orchestrator) resolveAndDispatchTranslation(ctx context.Context, msg *model.Message, isRetranslation bool, targetOverride, modelOverride *string) {
	targets, err := o.resolveTargetLanguages(ctx, msg.ConversationID, msg.OriginalLanguage, targetOverride)
	if err != nil {
		log.Printf("[Orchestrator] resolve targets for message %s: %v", msg.ID, err)
		o.Stats.IncErrors()
		return
	}
	if len(targets) == 0 {
		return
	}

	if isRetranslation {
		if err := o.Store.DeleteTranslations(ctx, msg.ID, targets); err != nil {
			log.Printf("[Orchestrator] delete existing translations for message %s: %v", msg.ID, err)
			o.Stats.IncErrors()
			return
		}
	}

	modelType := o.selectModelType(modelOverride, msg)

	taskID, err := o.Bus.RequestTranslation(ctx, bus.TranslationRequest{
		MessageID:       msg.ID.String(),
		ConversationID:  msg.ConversationID.String(),
		Text:            msg.Content,
		SourceLanguage:  msg.OriginalLanguage,
		TargetLanguages: targets,
		ModelType:       modelType,
	})
	if err != nil {
		log.Printf("[Orchestrator] dispatch translation for message %s: %v", msg.ID, err)
		o.Stats.IncErrors()
		return
	}
	o.Stats.IncRequestsSent()
	_ = taskID
}

// resolveTargetLanguages implements spec §4.1's target-language
// resolution: caller override wins outright; otherwise consult
// LanguageCache, falling back to the store on a miss and repopulating
// the cache; finally drop any target equal to originalLanguage unless
// the source is "auto".
func (o *Orchestrator) resolveTargetLanguages(ctx context.Context, conversationID uuid.UUID, originalLanguage string, override *string) ([]string, error) {
	var targets []string

	if override != nil && *override != "" {
		targets = []string{*override}
	} else {
		cacheKey := conversationID.String()
		if cached, ok := o.languageCache.Get(cacheKey); ok {
			o.Stats.IncCacheHit()
			targets = cached
		} else {
			o.Stats.IncCacheMiss()
			resolved, err := o.resolveConversationLanguages(ctx, conversationID)
			if err != nil {
				return nil, err
			}
			o.languageCache.Set(cacheKey, resolved)
			targets = resolved
		}
	}

	return filterSourceLanguage(targets, originalLanguage), nil
}

// resolveConversationLanguages implements spec §4.1's store-miss path:
// "query the store for active members and active anonymous participants
// and union their { systemLanguage, regionalLanguage,
// customDestinationLanguage } (anonymous participants contribute
// `language`)" — members contribute up to three languages each, an
// anonymous participant contributes exactly one.
func (o *Orchestrator) resolveConversationLanguages(ctx context.Context, conversationID uuid.UUID) ([]string, error) {
	members, err := o.Store.ListActiveMembers(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list active members: %w", err)
	}
	anonymous, err := o.Store.ListActiveAnonymousParticipants(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list active anonymous participants: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(lang string) {
		if lang == "" {
			return
		}
		if _, ok := seen[lang]; ok {
			return
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	for i := range members {
		for _, lang := range members[i].Languages() {
			add(lang)
		}
	}
	for i := range anonymous {
		add(anonymous[i].Language)
	}
	return out, nil
}

func filterSourceLanguage(targets []string, originalLanguage string) []string {
	if originalLanguage == "auto" {
		return targets
	}
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == originalLanguage {
			continue
		}
		out = append(out, t)
	}
	return out
}

// selectModelType implements spec §4.1's priority: caller override, then
// the message's own ModelType field, then length-based auto-selection.
func (o *Orchestrator) selectModelType(override *string, msg *model.Message) string {
	if override != nil && *override != "" {
		return *override
	}
	if msg.ModelType != nil && *msg.ModelType != "" {
		return *msg.ModelType
	}
	if len(msg.Content) < modelTypeAutoThreshold {
		return "medium"
	}
	return "premium"
}

var slugNonAlnumDash = regexp.MustCompile(`[^a-z0-9-]+`)
var slugCollapseDash = regexp.MustCompile(`-+`)

// SynthesizeConversationKey builds the human-readable conversation
// identifier spec §6's configuration table names:
// mshy_<slug>-<YYYYMMDDHHMMSS>, where slug is the title lowercased, with
// every run of non-alphanumeric-or-dash characters collapsed to a single
// dash and leading/trailing dashes trimmed.
func SynthesizeConversationKey(title string, at time.Time) string {
	slug := strings.ToLower(title)
	slug = slugNonAlnumDash.ReplaceAllString(slug, "-")
	slug = slugCollapseDash.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	return fmt.Sprintf("mshy_%s-%s", slug, at.Format("20060102150405"))
}
