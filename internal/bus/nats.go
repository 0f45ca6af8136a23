package bus

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	subjectTranslate  = "orchestrator.translate"
	subjectAudioJob   = "orchestrator.audio_job"
	subjectCompletions = "orchestrator.completions"
)

// NatsBus is the BusClient backed by github.com/nats-io/nats.go. The
// taskId is synthesized here (a uuid) rather than waiting on a reply from
// the worker, since spec §4.1/§4.3 describe dispatch as returning a
// "synthetic taskId" immediately, with completion arriving later and
// independently on the shared completions subject.
type NatsBus struct {
	conn *nats.Conn
}

// NewNatsBus connects to the given NATS URL.
func NewNatsBus(url string) (*NatsBus, error) {
	conn, err := nats.Connect(url, nats.Name("orchestrator"))
	if err != nil {
		return nil, fmt.Errorf("bus: connect nats: %w", err)
	}
	log.Printf("[Bus] connected to %s", url)
	return &NatsBus{conn: conn}, nil
}

// encodeFrame packs a JSON header followed by a raw binary payload,
// length-prefixing the header so a worker can split the two without a
// second round-trip (spec §6 "multipart binary shapes").
func encodeFrame(header interface{}, payload []byte) ([]byte, error) {
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("bus: marshal header: %w", err)
	}
	buf := make([]byte, 4+len(headerBytes)+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(headerBytes)))
	copy(buf[4:], headerBytes)
	copy(buf[4+len(headerBytes):], payload)
	return buf, nil
}

// DecodeFrame reverses encodeFrame: it unmarshals the length-prefixed
// JSON header into header and returns the remaining bytes as payload.
// Exported for the reference worker, which receives these frames on the
// other end of the same subjects.
func DecodeFrame(data []byte, header interface{}) (payload []byte, err error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("bus: frame too short")
	}
	headerLen := binary.LittleEndian.Uint32(data[0:4])
	if uint32(len(data)) < 4+headerLen {
		return nil, fmt.Errorf("bus: truncated frame header")
	}
	if err := json.Unmarshal(data[4:4+headerLen], header); err != nil {
		return nil, fmt.Errorf("bus: unmarshal header: %w", err)
	}
	return data[4+headerLen:], nil
}

// Subjects exposes the wire subjects this package uses, so a worker in a
// different package can subscribe to the same ones without duplicating
// the constants.
var Subjects = struct {
	Translate   string
	AudioJob    string
	Completions string
}{subjectTranslate, subjectAudioJob, subjectCompletions}

func (b *NatsBus) RequestTranslation(ctx context.Context, req TranslationRequest) (string, error) {
	taskID := uuid.NewString()
	envelope := struct {
		TaskID string
		TranslationRequest
	}{taskID, req}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("bus: marshal translation request: %w", err)
	}
	if err := b.publish(ctx, subjectTranslate, payload); err != nil {
		return "", err
	}
	return taskID, nil
}

func (b *NatsBus) RequestAudioJob(ctx context.Context, req AudioJobRequest) (string, error) {
	taskID := uuid.NewString()
	header := struct {
		TaskID string
		AudioJobRequest
	}{taskID, req}
	header.Audio = nil // audio travels in the frame payload, not the JSON header

	frame, err := encodeFrame(header, req.Audio)
	if err != nil {
		return "", err
	}
	if err := b.publish(ctx, subjectAudioJob, frame); err != nil {
		return "", err
	}
	return taskID, nil
}

func (b *NatsBus) publish(ctx context.Context, subject string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe listens on the shared completions subject. Workers publish a
// JSON-encoded CompletionEvent there regardless of which request subject
// they answered — there is deliberately one completion channel, not one
// per kind, so the Orchestrator's dispatch loop has a single place to
// apply idempotence and ordering rules.
func (b *NatsBus) Subscribe(handler func(CompletionEvent)) (func(), error) {
	sub, err := b.conn.Subscribe(subjectCompletions, func(msg *nats.Msg) {
		var ev CompletionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[Bus] dropping malformed completion: %v", err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[Bus] unsubscribe error: %v", err)
		}
	}, nil
}

func (b *NatsBus) Close() error {
	b.conn.Close()
	return nil
}
