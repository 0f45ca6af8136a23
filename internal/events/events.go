// Package events implements the Orchestrator's outbound domain event
// surface as typed Go channels, per spec §9's design note ("each emitted
// domain event a separate channel the WebSocket layer consumes" — here
// collapsed to one channel of a tagged Event for a single consumer loop,
// since Go callers can switch on Kind as cheaply as reading N channels).
package events

import "log"

// Kind names one of the Orchestrator's emitted domain events, taken
// verbatim from spec §6's "Emitted domain events" list.
type Kind string

const (
	KindTranslationReady             Kind = "translationReady"
	KindTranscriptionReady           Kind = "transcriptionReady"
	KindAudioTranslationReady        Kind = "audioTranslationReady"
	KindAudioTranslationsProgressive Kind = "audioTranslationsProgressive"
	KindAudioTranslationsCompleted   Kind = "audioTranslationsCompleted"
	KindAudioTranslationError        Kind = "audioTranslationError"
	KindTranscriptionError           Kind = "transcriptionError"
	KindVoiceTranslationJobCompleted Kind = "voiceTranslationJobCompleted"
	KindVoiceTranslationJobFailed    Kind = "voiceTranslationJobFailed"
)

// Event is the single envelope type carried on the emitter's channel.
// Consumers switch on Kind and read only the fields that kind populates.
type Event struct {
	Kind            Kind
	TaskID          string
	MessageID       string
	AttachmentID    string
	ConversationID  string
	TargetLanguage  string
	TranslationID   string
	Result          interface{} // bus.TranslationResult, bus.TranscriptionResult, or bus.TranslatedAudioResult
	Metadata        map[string]interface{}
	IsFinal         bool // true on the last per-language audio event of a task
	JobID           string
	Err             string
}

// EventEmitter is the Orchestrator's outbound notification surface. It is
// a narrow interface so alternate transports (WebSocket fanout, SSE, a
// test recorder) can all implement it without the Orchestrator knowing
// which.
type EventEmitter interface {
	Emit(Event)
	Events() <-chan Event
	Close()
}

// ChannelEmitter is the EventEmitter backed by a single buffered Go
// channel. A full channel degrades to a dropped event with a log line
// rather than blocking the orchestrator's dispatch path, matching the
// teacher's graceful-degradation-over-backpressure-blocking posture in
// internal/aws/pipeline.go's sendTranscript/sendAudio helpers.
type ChannelEmitter struct {
	ch chan Event
}

// NewChannelEmitter builds an emitter with the given channel buffer size.
func NewChannelEmitter(bufferSize int) *ChannelEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelEmitter{ch: make(chan Event, bufferSize)}
}

// Emit sends an event, dropping it if the channel is full rather than
// blocking the caller.
func (e *ChannelEmitter) Emit(ev Event) {
	select {
	case e.ch <- ev:
	default:
		log.Printf("[Events] dropped %s event, channel full", ev.Kind)
	}
}

// Events returns the read side of the emitter's channel.
func (e *ChannelEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the underlying channel. Callers must stop calling Emit
// before calling Close.
func (e *ChannelEmitter) Close() {
	close(e.ch)
}
