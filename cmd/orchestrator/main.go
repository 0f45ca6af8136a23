// Command orchestrator wires the Message Translation Orchestrator's
// collaborators (store, bus, cache, stats, consent, events) against a
// real Postgres database and NATS deployment and runs until signaled.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
	"github.com/krafton-translate/message-translation-orchestrator/internal/config"
	"github.com/krafton-translate/message-translation-orchestrator/internal/consent"
	"github.com/krafton-translate/message-translation-orchestrator/internal/events"
	"github.com/krafton-translate/message-translation-orchestrator/internal/orchestrator"
	"github.com/krafton-translate/message-translation-orchestrator/internal/stats"
	"github.com/krafton-translate/message-translation-orchestrator/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] load config: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("[main] connect database: %v", err)
	}

	st := store.NewGormStore(db)
	if err := st.AutoMigrate(); err != nil {
		log.Fatalf("[main] migrate database: %v", err)
	}
	log.Println("[main] database connected and migrated")

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		log.Fatalf("[main] connect nats: %v", err)
	}
	defer natsBus.Close()
	log.Println("[main] nats connected")

	meterProvider := sdkmetric.NewMeterProvider()
	defer meterProvider.Shutdown(context.Background())
	otel.SetMeterProvider(meterProvider)

	statsTracker := stats.New()
	if err := statsTracker.RegisterOtelGauges(meterProvider.Meter("orchestrator")); err != nil {
		log.Printf("[main] register otel gauges: %v", err)
	}

	consentSvc := consent.NewStaticConsent(cfg.BypassVoiceConsentCheck)
	emitter := events.NewChannelEmitter(256)
	defer emitter.Close()

	o := orchestrator.New(st, natsBus, consentSvc, emitter, statsTracker, orchestrator.Config{
		UploadsRoot:             cfg.UploadsRoot,
		TranslationCacheSize:    cfg.TranslationCacheSize,
		LanguageCacheSize:       cfg.LanguageCacheSize,
		LanguageCacheTTL:        cfg.LanguageCacheTTL,
		SyncTranslateTimeout:    cfg.SyncTranslateTimeout,
		BypassVoiceConsentCheck: cfg.BypassVoiceConsentCheck,
		Audio:                   cfg.Audio,
	})
	if err := o.Start(); err != nil {
		log.Fatalf("[main] start orchestrator: %v", err)
	}
	defer o.Stop()
	log.Println("[main] orchestrator started")

	go consumeEvents(o)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("[main] shutdown signal received")
}

// consumeEvents drains the orchestrator's emitted domain events and logs
// them. It stands in for the external WebSocket fanout layer spec §1
// names as out of scope — a real deployment would hand these off to that
// layer instead.
func consumeEvents(o *orchestrator.Orchestrator) {
	for ev := range o.Emitter.Events() {
		log.Printf("[events] kind=%s messageId=%s attachmentId=%s targetLanguage=%s", ev.Kind, ev.MessageID, ev.AttachmentID, ev.TargetLanguage)
	}
}
