package translator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// DefaultConcurrency is the default number of groups translated in parallel
const DefaultConcurrency = 10

// DefaultCharBudget is the default character budget per translation group
const DefaultCharBudget = 1500

// File 文件级翻译器，处理整个 leaf blocks JSON 文件
type File struct {
	batch       *Batch
	concurrency int
	charBudget  int
}

// FileConfig holds configuration options for creating a File translator
type FileConfig struct {
	Model       ChatModel
	TargetLang  string
	Concurrency int
	CharBudget  int
	MaxRetries  int
	RetryDelay  time.Duration
}

// NewFile creates a File translator, applying defaults for zero values.
func NewFile(cfg FileConfig) *File {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	charBudget := cfg.CharBudget
	if charBudget <= 0 {
		charBudget = DefaultCharBudget
	}
	return &File{
		batch: NewBatch(BatchConfig{
			Model:      cfg.Model,
			TargetLang: cfg.TargetLang,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}),
		concurrency: concurrency,
		charBudget:  charBudget,
	}
}

// TranslateFile reads a leaf-blocks JSON file, translates its units and
// writes the translated block list to outputPath. An existing output file
// short-circuits the whole call, which is what makes re-runs resumable.
func (f *File) TranslateFile(ctx context.Context, inputPath, outputPath string) error {
	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		logger.Info("translation output already exists, skipping",
			logger.String("path", outputPath))
		return nil
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return block.NewPipeError(block.ErrTranslateFailed, "failed to read leaf blocks", err)
	}

	var blocks []block.Leaf
	if err := json.Unmarshal(data, &blocks); err != nil {
		return block.NewPipeError(block.ErrTranslateFailed, "leaf blocks file is not valid JSON", err)
	}

	translated, err := f.translateBlocks(ctx, blocks)
	if err != nil {
		return err
	}
	translated = block.MergeInlineEquations(translated)

	encoded, err := json.MarshalIndent(translated, "", "  ")
	if err != nil {
		return block.NewPipeError(block.ErrTranslateFailed, "failed to encode translated blocks", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return block.NewPipeError(block.ErrTranslateFailed, "failed to create output directory", err)
	}
	if err := os.WriteFile(outputPath, encoded, 0644); err != nil {
		return block.NewPipeError(block.ErrTranslateFailed, "failed to write translated blocks", err)
	}

	logger.Info("translation finished", logger.String("path", outputPath),
		logger.Int("blocks", len(translated)))
	return nil
}

// translateBlocks extracts the translatable units, translates them in
// char-budgeted groups under a semaphore and writes the results back by
// unit index. A failed group degrades inside Batch.Translate and never
// poisons sibling groups.
func (f *File) translateBlocks(ctx context.Context, blocks []block.Leaf) ([]block.Leaf, error) {
	units := block.ExtractUnits(blocks)
	if len(units) == 0 {
		return blocks, nil
	}

	groups := groupByCharBudget(units, f.charBudget)
	logger.Info("translating blocks",
		logger.Int("units", len(units)), logger.Int("groups", len(groups)))

	translations := make(map[int]string, len(units))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, f.concurrency)

	for gi, group := range groups {
		wg.Add(1)
		go func(gi int, group []block.Unit) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result := f.translateGroup(ctx, group)

			mu.Lock()
			for idx, text := range result {
				translations[idx] = text
			}
			mu.Unlock()
		}(gi, group)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return block.Rebuild(blocks, translations), nil
}

// translateGroup returns block-index → text for one group. Only plain text
// units go to the model; everything else keeps its original content.
func (f *File) translateGroup(ctx context.Context, group []block.Unit) map[int]string {
	result := make(map[int]string, len(group))

	var texts []string
	var textUnits []block.Unit
	for _, u := range group {
		if u.Type == "text" && strings.TrimSpace(u.Text) != "" {
			texts = append(texts, u.Text)
			textUnits = append(textUnits, u)
		} else {
			result[u.Index] = u.Text
		}
	}
	if len(texts) == 0 {
		return result
	}

	translated, err := f.batch.Translate(ctx, texts)
	if err != nil {
		logger.Error("group translation aborted, keeping originals", err)
		for _, u := range textUnits {
			result[u.Index] = u.Text
		}
		return result
	}
	for i, u := range textUnits {
		result[u.Index] = translated[i]
	}
	return result
}

// groupByCharBudget packs consecutive text units into groups whose summed
// character count stays within budget. Non-text and empty units become
// singleton groups so they never distort the count.
func groupByCharBudget(units []block.Unit, budget int) [][]block.Unit {
	var groups [][]block.Unit
	var current []block.Unit
	chars := 0

	for _, u := range units {
		if u.Type != "text" || strings.TrimSpace(u.Text) == "" {
			if len(current) > 0 {
				groups = append(groups, current)
				current = nil
				chars = 0
			}
			groups = append(groups, []block.Unit{u})
			continue
		}

		length := len([]rune(u.Text))
		if len(current) > 0 && chars+length > budget {
			groups = append(groups, current)
			current = []block.Unit{u}
			chars = length
		} else {
			current = append(current, u)
			chars += length
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}
