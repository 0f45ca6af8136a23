// Package config loads orchestrator settings from the environment,
// following the same godotenv-then-os.Getenv pattern the rest of this
// codebase uses for its process configuration.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/krafton-translate/message-translation-orchestrator/internal/model"
)

// S3Config names the bucket and credentials a voice-reference-audio
// worker uses to store and fetch cloned-voice reference clips.
type S3Config struct {
	Region          string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
}

// Config is the orchestrator process's full environment-driven settings.
type Config struct {
	DatabaseDSN string
	NatsURL     string
	UploadsRoot string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	S3 S3Config

	BypassVoiceConsentCheck bool

	TranslationCacheSize int
	LanguageCacheSize    int
	LanguageCacheTTL     time.Duration

	SyncTranslateTimeout time.Duration

	Audio model.AudioConfig
}

// Load reads a .env file if present, falling back silently to the
// existing process environment, then builds a Config from it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}

	cfg := &Config{
		DatabaseDSN: getEnv("DATABASE_DSN", "postgres://localhost:5432/orchestrator?sslmode=disable"),
		NatsURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		UploadsRoot: getEnv("UPLOADS_ROOT", "./uploads"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		BypassVoiceConsentCheck: getEnvBool("BYPASS_VOICE_CONSENT_CHECK", false),

		TranslationCacheSize: getEnvInt("TRANSLATION_CACHE_SIZE", 1000),
		LanguageCacheSize:    getEnvInt("LANGUAGE_CACHE_SIZE", 100),
		LanguageCacheTTL:     getEnvDuration("LANGUAGE_CACHE_TTL", 5*time.Minute),

		SyncTranslateTimeout: getEnvDuration("SYNC_TRANSLATE_TIMEOUT", 10*time.Second),

		Audio: model.AudioConfig{
			ValidSampleRates: []uint32{8000, 16000, 24000, 44100, 48000},
			MaxChannels:      2,
			ValidBitDepths:   []uint16{16, 24, 32},
		},
	}

	cfg.S3 = S3Config{
		Region:          getEnv("S3_REGION", cfg.AWSRegion),
		BucketName:      getEnv("S3_BUCKET_NAME", ""),
		AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", cfg.AWSAccessKeyID),
		SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", cfg.AWSSecretAccessKey),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
