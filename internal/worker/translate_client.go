package worker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/translate"
)

// translateClient wraps Amazon Translate, adapted from the teacher's
// TranslateService in internal/aws/translate.go: same pass-through for
// identical source/target languages, same reliance on AWS's own
// language codes rather than a maintained mapping table (the codes this
// pipeline uses, en/fr/de/ko/ja/zh/es, already match AWS's).
type translateClient struct {
	client  *translate.Client
	breaker *circuitBreaker
}

func newTranslateClient(cfg aws.Config) *translateClient {
	return &translateClient{
		client:  translate.NewFromConfig(cfg),
		breaker: newCircuitBreaker("translate"),
	}
}

func (c *translateClient) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	if text == "" || sourceLanguage == targetLanguage {
		return text, nil
	}

	var translated string
	err := c.breaker.Execute(func() error {
		out, err := c.client.TranslateText(ctx, &translate.TranslateTextInput{
			Text:               aws.String(text),
			SourceLanguageCode: aws.String(sourceLanguage),
			TargetLanguageCode: aws.String(targetLanguage),
		})
		if err != nil {
			return fmt.Errorf("translate: %w", err)
		}
		translated = aws.ToString(out.TranslatedText)
		return nil
	})
	if err != nil {
		return "", err
	}
	return translated, nil
}
