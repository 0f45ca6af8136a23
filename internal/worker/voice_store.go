package worker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// voiceStore persists and retrieves the reference audio clips a voice
// profile is cloned from, adapted from the teacher's S3Service in
// internal/storage/s3.go — trimmed to the put/get a worker needs rather
// than the presigned-browser-upload surface that package also offered,
// since this store is only ever read and written by worker code, never
// a browser client.
type voiceStore struct {
	client *s3.Client
	bucket string
}

func newVoiceStore(cfg aws.Config, bucket string) *voiceStore {
	return &voiceStore{client: s3.NewFromConfig(cfg), bucket: bucket}
}

func voiceReferenceKey(userID string, version int) string {
	return fmt.Sprintf("voice-profiles/%s/v%d.wav", userID, version)
}

// PutReferenceAudio uploads one voice profile version's reference clip
// and returns its bucket key.
func (v *voiceStore) PutReferenceAudio(ctx context.Context, userID string, version int, audio []byte) (string, error) {
	key := voiceReferenceKey(userID, version)
	_, err := v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String("audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("voice store: put reference audio: %w", err)
	}
	return key, nil
}

// GetReferenceAudio fetches a previously stored reference clip by key.
func (v *voiceStore) GetReferenceAudio(ctx context.Context, key string) ([]byte, error) {
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("voice store: get reference audio: %w", err)
	}
	defer out.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("voice store: read reference audio: %w", err)
	}
	return buf.Bytes(), nil
}
