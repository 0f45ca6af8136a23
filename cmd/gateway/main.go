// Command gateway is a minimal illustrative HTTP/WebSocket front end for
// the Orchestrator. It is not itself spec surface — spec §1 treats the
// surrounding transport layer as an external collaborator — but shows
// how a caller would invoke HandleNewMessage over REST and fan emitted
// domain events out to WebSocket clients, following the teacher's
// internal/server wiring style (fiber + gofiber/contrib/websocket).
package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
	"github.com/krafton-translate/message-translation-orchestrator/internal/config"
	"github.com/krafton-translate/message-translation-orchestrator/internal/consent"
	"github.com/krafton-translate/message-translation-orchestrator/internal/events"
	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
	"github.com/krafton-translate/message-translation-orchestrator/internal/orchestrator"
	"github.com/krafton-translate/message-translation-orchestrator/internal/stats"
	"github.com/krafton-translate/message-translation-orchestrator/internal/store"
)

// hub fans out emitted events to every connected WebSocket client. Each
// client gets its own send buffer so one slow reader can't stall the
// rest, mirroring the teacher's AudioHandler's per-connection channel.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan events.Event
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan events.Event)}
}

func (h *hub) register(c *websocket.Conn) chan events.Event {
	ch := make(chan events.Event, 32)
	h.mu.Lock()
	h.clients[c] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) broadcast(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			log.Printf("[gateway] dropping event for slow client %v", c.RemoteAddr())
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[gateway] load config: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("[gateway] connect database: %v", err)
	}
	st := store.NewGormStore(db)
	if err := st.AutoMigrate(); err != nil {
		log.Fatalf("[gateway] migrate database: %v", err)
	}

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		log.Fatalf("[gateway] connect nats: %v", err)
	}
	defer natsBus.Close()

	emitter := events.NewChannelEmitter(256)
	defer emitter.Close()

	o := orchestrator.New(st, natsBus, consent.NewStaticConsent(cfg.BypassVoiceConsentCheck), emitter, stats.New(), orchestrator.Config{
		UploadsRoot:             cfg.UploadsRoot,
		TranslationCacheSize:    cfg.TranslationCacheSize,
		LanguageCacheSize:       cfg.LanguageCacheSize,
		LanguageCacheTTL:        cfg.LanguageCacheTTL,
		SyncTranslateTimeout:    cfg.SyncTranslateTimeout,
		BypassVoiceConsentCheck: cfg.BypassVoiceConsentCheck,
		Audio:                   cfg.Audio,
	})
	if err := o.Start(); err != nil {
		log.Fatalf("[gateway] start orchestrator: %v", err)
	}
	defer o.Stop()

	h := newHub()
	go func() {
		for ev := range o.Emitter.Events() {
			h.broadcast(ev)
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:       "Message Translation Gateway",
		StrictRouting: true,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "timestamp": time.Now().Unix()})
	})

	app.Post("/api/v1/messages", func(c *fiber.Ctx) error {
		var body newMessageRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result, err := o.HandleNewMessage(c.Context(), body.toInput())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(result)
	})

	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(func(c *websocket.Conn) {
		ch := h.register(c)
		defer h.unregister(c)
		for ev := range ch {
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}))

	log.Printf("[gateway] listening on :8080")
	if err := app.Listen(":8080"); err != nil {
		log.Fatalf("[gateway] listen: %v", err)
	}
}

// newMessageRequest is the REST body for POST /api/v1/messages, mapped
// onto orchestrator.NewMessageInput.
type newMessageRequest struct {
	ConversationKey  string  `json:"conversationKey"`
	SenderID         *string `json:"senderId"`
	Content          string  `json:"content"`
	OriginalLanguage string  `json:"originalLanguage"`
	MessageType      string  `json:"messageType"`
	EncryptionMode   string  `json:"encryptionMode"`
	TargetLanguage   *string `json:"targetLanguage"`
	ModelType        *string `json:"modelType"`
}

func (r newMessageRequest) toInput() orchestrator.NewMessageInput {
	return orchestrator.NewMessageInput{
		ConversationKey:  r.ConversationKey,
		SenderID:         r.SenderID,
		Content:          r.Content,
		OriginalLanguage: r.OriginalLanguage,
		MessageType:      r.MessageType,
		EncryptionMode:   model.EncryptionMode(r.EncryptionMode),
		TargetLanguage:   r.TargetLanguage,
		ModelType:        r.ModelType,
	}
}
