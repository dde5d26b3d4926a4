package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"vidsub/internal/inference"
	"vidsub/internal/translation"
)

// TranslationPrompt instructs the model to translate subtitle lines one for
// one.
const TranslationPrompt = `You translate video subtitles.
You receive a JSON object with "source", "target" and "lines".
Translate every entry of "lines" from the source language into the target language.
Keep the order and return exactly one translation per line, even for empty or untranslatable lines.
Preserve line breaks inside an entry and do not add notes or numbering.
Respond with JSON only: {"translations": ["..."]}`

// Translator implements translation.Translator on top of a chat model.
type Translator struct {
	client *Client

	mu      sync.Mutex
	modelID string
}

// NewTranslator wraps client.
func NewTranslator(client *Client) *Translator {
	return &Translator{client: client}
}

// Load verifies the endpoint answers. modelID names the catalog entry the
// user selected; the chat model itself comes from the client config.
func (t *Translator) Load(ctx context.Context, modelID string, report func(inference.LoadProgress)) error {
	if t.client == nil || !t.client.Configured() {
		return errors.New("llm translator: api key required (set llm.api_key)")
	}
	if report != nil {
		report(inference.LoadProgress{ResourceID: t.client.Model(), Name: t.client.Model(), Percent: 0})
	}
	if err := t.client.HealthCheck(ctx); err != nil {
		return err
	}
	if report != nil {
		report(inference.LoadProgress{ResourceID: t.client.Model(), Name: t.client.Model(), Percent: 100})
	}
	t.mu.Lock()
	t.modelID = modelID
	t.mu.Unlock()
	return nil
}

// Release forgets the loaded model id.
func (t *Translator) Release() {
	t.mu.Lock()
	t.modelID = ""
	t.mu.Unlock()
}

type translationRequest struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Lines  []string `json:"lines"`
}

type translationReply struct {
	Translations []string `json:"translations"`
}

// Translate sends one batch. A reply with the wrong number of lines is an
// error so misaligned output never reaches the subtitles.
func (t *Translator) Translate(ctx context.Context, texts []string, opts translation.Options) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	lines := make([]string, len(texts))
	for i, text := range texts {
		lines[i] = translation.StripPrefix(text)
	}
	prompt, err := json.Marshal(translationRequest{
		Source: languageLabel(opts.SourceLanguage, "the detected language"),
		Target: languageLabel(opts.TargetLanguage, "English"),
		Lines:  lines,
	})
	if err != nil {
		return nil, fmt.Errorf("llm translate: encode prompt: %w", err)
	}
	content, err := t.client.CompleteJSON(ctx, TranslationPrompt, string(prompt))
	if err != nil {
		return nil, err
	}
	var reply translationReply
	if err := DecodeJSON(content, &reply); err != nil {
		return nil, fmt.Errorf("llm translate: parse payload: %w", err)
	}
	if len(reply.Translations) != len(texts) {
		return nil, fmt.Errorf("llm translate: expected %d translations, got %d", len(texts), len(reply.Translations))
	}
	for i, line := range reply.Translations {
		reply.Translations[i] = strings.TrimSpace(line)
	}
	return reply.Translations, nil
}

func languageLabel(code, fallback string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return fallback
	}
	return translation.LanguageName(code)
}
