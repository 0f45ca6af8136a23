// Command worker runs the reference AWS-backed translation/audio worker
// against the Orchestrator's NATS bus. It represents the external
// "remote translation worker pool" spec §1 delegates to — a separate
// process from cmd/orchestrator, reachable only through the bus.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/krafton-translate/message-translation-orchestrator/internal/config"
	"github.com/krafton-translate/message-translation-orchestrator/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[worker] load config: %v", err)
	}

	w, err := worker.New(context.Background(), cfg.NatsURL, worker.Config{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SampleRate:      16000,
		VoiceBucket:     cfg.S3.BucketName,
	})
	if err != nil {
		log.Fatalf("[worker] init: %v", err)
	}
	if err := w.Start(); err != nil {
		log.Fatalf("[worker] start: %v", err)
	}
	defer w.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("[worker] shutdown signal received")
}
