package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vidsub/internal/inference"
	"vidsub/internal/logging"
)

// CapabilityName labels worker error messages.
const CapabilityName = "Translation"

// Translator is a text translation engine. Translate receives one batch and
// returns one output per input in the same order.
type Translator interface {
	Load(ctx context.Context, modelID string, report func(inference.LoadProgress)) error
	Translate(ctx context.Context, texts []string, opts Options) ([]string, error)
	Release()
}

// Capability serves translation requests inside an inference worker.
type Capability struct {
	engine Translator
	logger *slog.Logger

	mu      sync.Mutex
	modelID string
}

// NewCapability wraps engine. A nil logger discards batch failure reports.
func NewCapability(engine Translator, logger *slog.Logger) *Capability {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Capability{
		engine: engine,
		logger: logging.NewComponentLogger(logger, "translation"),
	}
}

func (c *Capability) Name() string { return CapabilityName }

func (c *Capability) LoadModel(ctx context.Context, modelID string, report func(inference.LoadProgress)) error {
	if err := c.engine.Load(ctx, modelID, report); err != nil {
		return err
	}
	c.mu.Lock()
	c.modelID = modelID
	c.mu.Unlock()
	return nil
}

func (c *Capability) Release() {
	c.mu.Lock()
	c.modelID = ""
	c.mu.Unlock()
	c.engine.Release()
}

// Estimate implements inference.Estimator.
func (c *Capability) Estimate(payload, _ json.RawMessage) time.Duration {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0
	}
	return Estimate(len(req.Texts))
}

// Run translates the payload batch by batch. A batch the engine rejects keeps
// its original texts; cancellation is honoured between batches.
func (c *Capability) Run(ctx context.Context, run *inference.Run) (any, error) {
	var req Request
	if err := json.Unmarshal(run.Payload, &req); err != nil {
		return nil, fmt.Errorf("decode texts payload: %w", err)
	}
	var opts Options
	if len(run.Options) > 0 {
		if err := json.Unmarshal(run.Options, &opts); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = defaultMax
	}

	c.mu.Lock()
	modelUsed := c.modelID
	c.mu.Unlock()
	if modelUsed == "" {
		modelUsed = unknownModel
	}

	result := Result{
		OriginalTexts:   req.Texts,
		TranslatedTexts: make([]string, 0, len(req.Texts)),
		SourceLanguage:  opts.SourceLanguage,
		TargetLanguage:  opts.TargetLanguage,
		ModelUsed:       modelUsed,
	}
	total := len(req.Texts)
	size := BatchSize(total)
	for start, batch := 0, 0; start < total; start, batch = start+size, batch+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+size, total)
		texts := req.Texts[start:end]
		out, err := c.engine.Translate(ctx, texts, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("translation batch failed; keeping original text",
				logging.String(logging.FieldEventType, "translation_batch_failed"),
				logging.Int("batch", batch),
				logging.Int("texts", len(texts)),
				logging.String(logging.FieldErrorHint, "check the translation engine logs"),
				logging.String(logging.FieldImpact, "batch left untranslated"),
				logging.Error(err),
			)
			result.FailedBatches = append(result.FailedBatches, batch)
			out = stripAll(texts)
		}
		result.TranslatedTexts = append(result.TranslatedTexts, fitLength(out, stripAll(texts))...)
		run.Observe(float64(end) / float64(total) * 85)
	}
	result.TranslatedTexts = fitLength(result.TranslatedTexts, req.Texts)
	return result, nil
}

// StripPrefix removes a leading target-language token such as ">>spa<<".
func StripPrefix(text string) string {
	if !strings.HasPrefix(text, ">>") {
		return text
	}
	if end := strings.Index(text[2:], "<<"); end >= 0 {
		return strings.TrimLeft(text[end+4:], " ")
	}
	return text
}

func stripAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = StripPrefix(text)
	}
	return out
}
