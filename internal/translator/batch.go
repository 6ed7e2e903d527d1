// Package translator implements the ID-keyed JSON batch translation
// protocol and the file-level translator that drives it.
package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/lang"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// DefaultMaxRetries is the default number of batch attempts before falling
// back to per-item translation
const DefaultMaxRetries = 3

// BaseRetryDelay is multiplied by the attempt number between batch retries
const BaseRetryDelay = 5 * time.Second

// fallbackMaxRetries bounds each per-item fallback request
const fallbackMaxRetries = 2

// ChatModel is the slice of the eino chat model the translator needs.
// *openai.ChatModel satisfies it.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Batch 批量翻译器
type Batch struct {
	model      ChatModel
	targetLang string
	maxRetries int
	retryDelay time.Duration
}

// BatchConfig holds configuration options for creating a Batch
type BatchConfig struct {
	Model      ChatModel
	TargetLang string
	MaxRetries int
	RetryDelay time.Duration
}

// NewBatch creates a Batch translator, applying defaults for zero values.
func NewBatch(cfg BatchConfig) *Batch {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = BaseRetryDelay
	}
	return &Batch{
		model:      cfg.Model,
		targetLang: cfg.TargetLang,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

type promptItem struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type batchResponse struct {
	Translations []json.RawMessage `json:"translations"`
}

type translationItem struct {
	ID   *int    `json:"id"`
	Text *string `json:"text"`
}

// Translate returns one output string per input string, in order. Texts that
// the language heuristics mark as already-target (or contentless) pass
// through untouched. The batch request is retried with linear backoff; once
// retries are exhausted every remaining item is translated individually,
// best-effort, keeping the original text on failure. The result always has
// the same length as the input.
func (b *Batch) Translate(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	skip := make([]bool, len(texts))
	var items []promptItem
	for i, text := range texts {
		s, reason := lang.ShouldSkip(text, b.targetLang)
		skip[i] = s
		if s {
			logger.Debug("skipping translation", logger.String("reason", reason))
			continue
		}
		items = append(items, promptItem{ID: i, Text: text})
	}

	result := append([]string(nil), texts...)
	if len(items) == 0 {
		return result, nil
	}

	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		translated, err := b.requestBatch(ctx, items)
		if err == nil {
			for id, text := range translated {
				result[id] = text
			}
			return result, nil
		}
		logger.Warn("batch translation attempt failed",
			logger.Int("attempt", attempt), logger.Err(err))

		if attempt < b.maxRetries {
			select {
			case <-time.After(b.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	logger.Warn("batch translation exhausted retries, falling back to per-item mode",
		logger.Int("items", len(items)))
	return b.fallback(ctx, result, items)
}

// requestBatch performs one batch request and validates the response. The
// returned map is id → translated text and covers exactly the sent ids.
func (b *Batch) requestBatch(ctx context.Context, items []promptItem) (map[int]string, error) {
	msg, err := b.model.Generate(ctx, []*schema.Message{
		schema.UserMessage(b.buildPrompt(items)),
	})
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	return validateBatchResponse(msg.Content, items)
}

func (b *Batch) buildPrompt(items []promptItem) string {
	input, _ := json.MarshalIndent(items, "", "  ")
	display := lang.DisplayName(b.targetLang)

	var sb strings.Builder
	sb.WriteString("You will receive a JSON list where each object carries a unique integer `id` and a `text` to translate.\n")
	sb.WriteString("Translate every `text` into **" + display + "** and return one JSON object:\n")
	sb.WriteString(`{"translations": [{"id": 0, "text": "..."}, ...]}` + "\n\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString("- keep every `id` unchanged, translate only `text`\n")
	sb.WriteString("- the output must be valid JSON and `translations` must contain exactly one entry per input item\n")
	sb.WriteString("- do not add extra fields, explanations or Markdown\n\n")
	sb.WriteString("Input data:\n")
	sb.Write(input)
	return sb.String()
}

// validateBatchResponse enforces the protocol: parseable JSON, a
// translations list, integer ids with string texts, and an id set exactly
// equal to the sent ids.
func validateBatchResponse(content string, items []promptItem) (map[int]string, error) {
	content = stripJSONFence(content)

	var parsed batchResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if parsed.Translations == nil {
		return nil, fmt.Errorf("response has no translations list")
	}

	out := make(map[int]string, len(items))
	for _, raw := range parsed.Translations {
		var item translationItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("translation entry is not an object: %w", err)
		}
		if item.ID == nil || item.Text == nil {
			return nil, fmt.Errorf("translation entry missing id or text")
		}
		// reject non-integer ids like 1.5
		var probe struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("invalid id: %w", err)
		}
		if _, err := probe.ID.Int64(); err != nil {
			return nil, fmt.Errorf("id %q is not an integer", probe.ID)
		}
		out[*item.ID] = strings.TrimSpace(*item.Text)
	}

	expected := make(map[int]bool, len(items))
	for _, item := range items {
		expected[item.ID] = true
	}
	if len(out) != len(expected) {
		return nil, idMismatchError(expected, out)
	}
	for id := range expected {
		if _, ok := out[id]; !ok {
			return nil, idMismatchError(expected, out)
		}
	}
	return out, nil
}

func idMismatchError(expected map[int]bool, got map[int]string) error {
	want := make([]int, 0, len(expected))
	for id := range expected {
		want = append(want, id)
	}
	have := make([]int, 0, len(got))
	for id := range got {
		have = append(have, id)
	}
	sort.Ints(want)
	sort.Ints(have)
	return fmt.Errorf("id mismatch: expected %v, got %v", want, have)
}

// fallback translates the remaining items one by one, concurrently. A
// failed item keeps its original text; nothing here fails the caller.
func (b *Batch) fallback(ctx context.Context, result []string, items []promptItem) ([]string, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, item := range items {
		wg.Add(1)
		go func(item promptItem) {
			defer wg.Done()

			text, err := b.translateSingle(ctx, item.Text)
			if err != nil {
				logger.Error("per-item fallback failed, keeping original", err,
					logger.Int("id", item.ID))
				return
			}
			mu.Lock()
			result[item.ID] = text
			mu.Unlock()
		}(item)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// translateSingle reuses the batch protocol for one text so validation and
// prompting stay identical.
func (b *Batch) translateSingle(ctx context.Context, text string) (string, error) {
	items := []promptItem{{ID: 0, Text: text}}

	var lastErr error
	for attempt := 1; attempt <= fallbackMaxRetries; attempt++ {
		translated, err := b.requestBatch(ctx, items)
		if err == nil {
			return translated[0], nil
		}
		lastErr = err
		if attempt < fallbackMaxRetries {
			select {
			case <-time.After(b.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

// stripJSONFence removes a Markdown code fence wrapped around a JSON body.
func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
