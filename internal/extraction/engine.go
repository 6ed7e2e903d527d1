// Package extraction defines the contract to the layout-extraction
// backend that turns a PDF chunk into a document middle JSON.
package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// Engine processes one PDF chunk and returns the path of the middle
// JSON it produced. Mode names the extraction mode the backend runs in
// (txt, ocr or vlm); an empty string means the engine honors whatever
// mode the caller resolved.
type Engine interface {
	Process(ctx context.Context, chunkPath string) (string, error)
	Mode() string
}

// MiddleJSONPath 返回 chunk 的 middle JSON 约定路径
// {outputDir}/{stem}/{mode}/{stem}_middle.json。
func MiddleJSONPath(outputDir, stem, mode string) string {
	return filepath.Join(outputDir, stem, mode, stem+"_middle.json")
}

// alreadyProcessed reports whether a non-empty middle JSON exists.
func alreadyProcessed(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// retryEngine wraps an Engine with a fixed number of attempts.
type retryEngine struct {
	inner    Engine
	attempts int
}

// WithRetry returns an Engine that retries the inner backend up to
// attempts times before giving up.
func WithRetry(inner Engine, attempts int) Engine {
	if attempts < 1 {
		attempts = 1
	}
	return &retryEngine{inner: inner, attempts: attempts}
}

func (r *retryEngine) Process(ctx context.Context, chunkPath string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		path, err := r.inner.Process(ctx, chunkPath)
		if err == nil {
			return path, nil
		}
		lastErr = err
		logger.Warn("extraction attempt failed",
			logger.String("chunk", filepath.Base(chunkPath)),
			logger.Int("attempt", attempt),
			logger.Err(err))

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", block.NewPipeError(block.ErrExtractFailed,
		fmt.Sprintf("extraction failed after %d attempts", r.attempts), lastErr)
}

func (r *retryEngine) Mode() string {
	return r.inner.Mode()
}
