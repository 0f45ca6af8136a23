// Package worker is a reference implementation of the external
// translation/audio worker pool the Orchestrator dispatches bus requests
// to (spec §1's "remote translation worker pool" and §6's bus contract).
// It answers orchestrator.translate and orchestrator.audio_job requests
// using the AWS SDK stack the teacher wired in internal/aws, and
// publishes results back on orchestrator.completions. It is not itself
// spec surface — the Orchestrator never assumes anything about how its
// bus requests get answered — but gives the bus contract a real,
// swappable implementation to run against instead of only fakes.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/nats-io/nats.go"

	"github.com/krafton-translate/message-translation-orchestrator/internal/bus"
)

// Config names the tunables the worker needs beyond its AWS credentials.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SampleRate      int32
	VoiceBucket     string
}

// Worker answers bus requests published by the Orchestrator. Every
// outbound AWS call is wrapped in the circuit breaker its client carries,
// so a failing AWS service degrades to published translationError/
// audioProcessError events instead of hanging the subscription goroutine.
type Worker struct {
	conn      *nats.Conn
	translate *translateClient
	speech    *speechClient
	voices    *voiceStore
	sampleRate int32

	subs []*nats.Subscription
}

// New connects to NATS and loads AWS credentials from cfg, mirroring the
// teacher's AWSClientPool bootstrap in internal/aws/client_pool.go
// (one shared aws.Config behind every client) without that file's
// per-room reference counting, which has no equivalent in a
// single-process worker pool.
func New(ctx context.Context, natsURL string, cfg Config) (*Worker, error) {
	conn, err := nats.Connect(natsURL, nats.Name("orchestrator-worker"))
	if err != nil {
		return nil, fmt.Errorf("worker: connect nats: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("worker: load aws config: %w", err)
	}

	return &Worker{
		conn:       conn,
		translate:  newTranslateClient(awsCfg),
		speech:     newSpeechClient(awsCfg, sampleRate),
		voices:     newVoiceStore(awsCfg, cfg.VoiceBucket),
		sampleRate: sampleRate,
	}, nil
}

// Start subscribes to the translate and audio_job subjects. Each message
// is handled on its own goroutine so a slow AWS call never blocks NATS
// delivery of the next request.
func (w *Worker) Start() error {
	translateSub, err := w.conn.Subscribe(bus.Subjects.Translate, func(msg *nats.Msg) {
		go w.handleTranslate(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("worker: subscribe translate: %w", err)
	}
	audioSub, err := w.conn.Subscribe(bus.Subjects.AudioJob, func(msg *nats.Msg) {
		go w.handleAudioJob(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("worker: subscribe audio job: %w", err)
	}
	w.subs = []*nats.Subscription{translateSub, audioSub}
	log.Printf("[Worker] listening on %s, %s", bus.Subjects.Translate, bus.Subjects.AudioJob)
	return nil
}

// Stop unsubscribes and closes the NATS connection.
func (w *Worker) Stop() {
	for _, sub := range w.subs {
		_ = sub.Unsubscribe()
	}
	w.conn.Close()
}

func (w *Worker) publish(ev bus.CompletionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[Worker] marshal completion: %v", err)
		return
	}
	if err := w.conn.Publish(bus.Subjects.Completions, data); err != nil {
		log.Printf("[Worker] publish completion: %v", err)
	}
}

type translateEnvelope struct {
	TaskID string
	bus.TranslationRequest
}

// handleTranslate answers one fanout translation request: one
// translationCompleted (or translationError) event per target language.
func (w *Worker) handleTranslate(data []byte) {
	var req translateEnvelope
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[Worker] unmarshal translation request: %v", err)
		return
	}
	ctx := context.Background()

	for _, target := range req.TargetLanguages {
		translated, err := w.translate.Translate(ctx, req.Text, req.SourceLanguage, target)
		if err != nil {
			w.publish(bus.CompletionEvent{
				Kind:      bus.KindTranslationError,
				TaskID:    req.TaskID,
				MessageID: req.MessageID,
				Error:     translateErrorMessage(err),
			})
			continue
		}
		w.publish(bus.CompletionEvent{
			Kind:   bus.KindTranslationCompleted,
			TaskID: req.TaskID,
			Translation: &bus.TranslationResult{
				MessageID:       req.MessageID,
				SourceLanguage:  req.SourceLanguage,
				TargetLanguage:  target,
				TranslatedText:  translated,
				TranslatorModel: req.ModelType,
				ConfidenceScore: 0.92,
			},
		})
	}
}

// translateErrorMessage maps an open circuit breaker to the exact string
// spec §4.2/§7 singles out for the poolFullRejections counter; any other
// failure is surfaced as-is.
func translateErrorMessage(err error) string {
	if err == ErrCircuitOpen {
		return "translation pool full"
	}
	return err.Error()
}

type audioJobHeader struct {
	TaskID string
	bus.AudioJobRequest
}

// handleAudioJob answers one audio attachment job: transcribe, then
// (when target languages were requested) translate and synthesize per
// language, publishing the two-phase event sequence the Orchestrator's
// audio pipeline expects (spec §4.3).
func (w *Worker) handleAudioJob(data []byte) {
	var header audioJobHeader
	payload, err := bus.DecodeFrame(data, &header)
	if err != nil {
		log.Printf("[Worker] decode audio job frame: %v", err)
		return
	}
	ctx := context.Background()

	// AWS Polly has no voice-cloning model of its own; the closest this
	// worker can do with the wired stack is bank the sender's own clip as
	// the profile's reference audio in S3 for a future cloning-capable
	// worker to train against.
	if header.GenerateVoiceClone {
		if key, err := w.voices.PutReferenceAudio(ctx, header.SenderID, 1, payload); err != nil {
			log.Printf("[Worker] store voice reference audio: %v", err)
		} else {
			log.Printf("[Worker] banked voice reference audio at %s", key)
		}
	}

	transcript, err := w.speech.Transcribe(ctx, payload, header.SourceLanguage)
	if err != nil {
		w.publish(bus.CompletionEvent{
			Kind:         bus.KindAudioProcessError,
			TaskID:       header.TaskID,
			MessageID:    header.MessageID,
			AttachmentID: header.AttachmentID,
			Error:        err.Error(),
		})
		return
	}
	w.publish(bus.CompletionEvent{
		Kind:         bus.KindTranscriptionReady,
		TaskID:       header.TaskID,
		MessageID:    header.MessageID,
		AttachmentID: header.AttachmentID,
		Transcription: &bus.TranscriptionResult{
			Text:     transcript.Text,
			Language: header.SourceLanguage,
			Source:   "transcribe-streaming",
		},
	})

	for i, target := range header.TargetLanguages {
		translated, err := w.translate.Translate(ctx, transcript.Text, header.SourceLanguage, target)
		if err != nil {
			w.publish(bus.CompletionEvent{
				Kind:         bus.KindAudioProcessError,
				TaskID:       header.TaskID,
				MessageID:    header.MessageID,
				AttachmentID: header.AttachmentID,
				Error:        translateErrorMessage(err),
			})
			continue
		}
		audio, err := w.speech.Synthesize(ctx, translated, target, "mp3")
		if err != nil {
			w.publish(bus.CompletionEvent{
				Kind:         bus.KindAudioProcessError,
				TaskID:       header.TaskID,
				MessageID:    header.MessageID,
				AttachmentID: header.AttachmentID,
				Error:        err.Error(),
			})
			continue
		}

		kind := bus.KindAudioTranslationsProgressive
		isFinal := i == len(header.TargetLanguages)-1
		if isFinal {
			kind = bus.KindAudioTranslationsCompleted
		}
		w.publish(bus.CompletionEvent{
			Kind:         kind,
			TaskID:       header.TaskID,
			MessageID:    header.MessageID,
			AttachmentID: header.AttachmentID,
			IsFinal:      isFinal,
			AudioResults: []bus.TranslatedAudioResult{{
				Language:       target,
				TranslatedText: translated,
				Audio:          audio,
				Format:         "mp3",
			}},
		})
	}
}
