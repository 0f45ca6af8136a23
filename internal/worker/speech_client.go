package worker

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	transcribetypes "github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
)

// voiceConfig names the Polly voice/engine used for one language,
// adapted from the teacher's defaultVoices table in internal/aws/polly.go.
// Voice IDs are kept as plain strings and cast at call time, the same
// indirection the teacher uses, since pollytypes.VoiceId is just a typed
// string and this avoids depending on which named constants a given SDK
// version exports.
type voiceConfig struct {
	voiceID string
	engine  pollytypes.Engine
}

var defaultVoices = map[string]voiceConfig{
	"en": {"Matthew", pollytypes.EngineNeural},
	"fr": {"Lea", pollytypes.EngineNeural},
	"de": {"Vicki", pollytypes.EngineNeural},
	"es": {"Lucia", pollytypes.EngineNeural},
	"ja": {"Takumi", pollytypes.EngineNeural},
	"zh": {"Zhiyu", pollytypes.EngineNeural},
	"ko": {"Seoyeon", pollytypes.EngineNeural},
}

var transcribeLangCodes = map[string]transcribetypes.LanguageCode{
	"en": transcribetypes.LanguageCodeEnUs,
	"fr": transcribetypes.LanguageCodeFrFr,
	"de": transcribetypes.LanguageCodeDeDe,
	"es": transcribetypes.LanguageCodeEsEs,
	"ja": transcribetypes.LanguageCodeJaJp,
	"zh": transcribetypes.LanguageCodeZhCn,
	"ko": transcribetypes.LanguageCodeKoKr,
}

// speechClient wraps Amazon Transcribe (streaming, sent as one shot over
// a complete audio clip since the audio attachment pipeline has the whole
// recording up front rather than a live microphone feed) and Amazon
// Polly, adapted from the teacher's TranscribeService/PollyService in
// internal/aws/transcribe.go and internal/aws/polly.go.
type speechClient struct {
	transcribe         *transcribestreaming.Client
	polly              *polly.Client
	transcribeBreaker  *circuitBreaker
	pollyBreaker       *circuitBreaker
	sampleRate         int32
}

func newSpeechClient(cfg aws.Config, sampleRate int32) *speechClient {
	return &speechClient{
		transcribe:        transcribestreaming.NewFromConfig(cfg),
		polly:             polly.NewFromConfig(cfg),
		transcribeBreaker: newCircuitBreaker("transcribe"),
		pollyBreaker:      newCircuitBreaker("polly"),
		sampleRate:        sampleRate,
	}
}

// transcriptionOutcome is the one final transcript produced by feeding an
// entire audio clip through a streaming session.
type transcriptionOutcome struct {
	Text string
}

// Transcribe sends the whole clip as a single streamed chunk and
// collects the final (non-partial) transcript segments, concatenated in
// arrival order. languageHint selects the AWS language code; it falls
// back to English when unrecognized.
func (c *speechClient) Transcribe(ctx context.Context, audio []byte, languageHint string) (transcriptionOutcome, error) {
	langCode, ok := transcribeLangCodes[languageHint]
	if !ok {
		langCode = transcribetypes.LanguageCodeEnUs
	}

	var text string
	err := c.transcribeBreaker.Execute(func() error {
		resp, err := c.transcribe.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
			LanguageCode:         langCode,
			MediaEncoding:        transcribetypes.MediaEncodingPcm,
			MediaSampleRateHertz: aws.Int32(c.sampleRate),
		})
		if err != nil {
			return fmt.Errorf("start transcription: %w", err)
		}
		stream := resp.GetStream()
		defer stream.Close()

		if err := stream.Send(ctx, &transcribetypes.AudioStreamMemberAudioEvent{
			Value: transcribetypes.AudioEvent{AudioChunk: audio},
		}); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}

		for event := range stream.Events() {
			e, ok := event.(*transcribetypes.TranscriptResultStreamMemberTranscriptEvent)
			if !ok || e.Value.Transcript == nil {
				continue
			}
			for _, result := range e.Value.Transcript.Results {
				if result.IsPartial || len(result.Alternatives) == 0 {
					continue
				}
				text += aws.ToString(result.Alternatives[0].Transcript)
			}
		}
		return stream.Err()
	})
	if err != nil {
		return transcriptionOutcome{}, err
	}
	return transcriptionOutcome{Text: text}, nil
}

// Synthesize renders text to audio in the given language via Polly: MP3
// when format is "mp3", PCM otherwise.
func (c *speechClient) Synthesize(ctx context.Context, text, language, format string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	voice, ok := defaultVoices[language]
	if !ok {
		voice = defaultVoices["en"]
	}
	outputFormat := pollytypes.OutputFormatPcm
	if format == "mp3" {
		outputFormat = pollytypes.OutputFormatMp3
	}

	var audio []byte
	err := c.pollyBreaker.Execute(func() error {
		out, err := c.polly.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
			Text:         aws.String(text),
			VoiceId:      pollytypes.VoiceId(voice.voiceID),
			Engine:       voice.engine,
			OutputFormat: outputFormat,
		})
		if err != nil {
			return fmt.Errorf("polly synthesize: %w", err)
		}
		defer out.AudioStream.Close()
		audio, err = io.ReadAll(out.AudioStream)
		if err != nil {
			return fmt.Errorf("read polly audio stream: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}
