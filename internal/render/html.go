package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// Page is one output page: its size in PDF points and the blocks that
// land on it.
type Page struct {
	Number int
	Size   []float64
	Blocks []block.Leaf
}

// GroupBlocksByPage 将 block 列表按页号分组并按页序排列。
//
// Blocks without a page number are skipped with a warning; a page whose
// blocks all lack a usable page size is a hard error because the page
// div cannot be sized.
func GroupBlocksByPage(blocks []block.Leaf) ([]Page, error) {
	grouped := make(map[int][]block.Leaf)
	sizes := make(map[int][]float64)

	for _, b := range blocks {
		if b.PageNumber <= 0 {
			logger.Warn("block missing page number", logger.String("type", b.Type))
			continue
		}
		grouped[b.PageNumber] = append(grouped[b.PageNumber], b)

		if _, ok := sizes[b.PageNumber]; !ok {
			if len(b.PageSize) < 2 {
				return nil, block.NewPipeErrorWithPage(block.ErrRenderFailed,
					fmt.Sprintf("page %d missing valid page_size", b.PageNumber), b.PageNumber, nil)
			}
			sizes[b.PageNumber] = b.PageSize[:2]
		}
	}

	numbers := make([]int, 0, len(grouped))
	for n := range grouped {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	pages := make([]Page, 0, len(numbers))
	for _, n := range numbers {
		pages = append(pages, Page{Number: n, Size: sizes[n], Blocks: grouped[n]})
	}
	return pages, nil
}

// RenderPage 渲染单个页面为 HTML 片段。
func (r *BlockRenderer) RenderPage(page Page) string {
	var blocks strings.Builder
	for _, b := range page.Blocks {
		if html := r.Render(b, ScaleFactor); html != "" {
			blocks.WriteString(html)
		}
	}

	return fmt.Sprintf(
		"\n<div class=\"pdf-page\" style=\"width:%spx; height:%spx;\">\n%s\n</div>\n",
		px(page.Size[0]*ScaleFactor), px(page.Size[1]*ScaleFactor), blocks.String())
}

// RenderFile reads a translated block file and writes the full HTML
// document. An existing non-empty output is reused untouched.
func (r *BlockRenderer) RenderFile(inputPath, outputPath string) error {
	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		logger.Info("rendered HTML already exists, skipping",
			logger.String("path", outputPath))
		return nil
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return block.NewPipeError(block.ErrRenderFailed, "failed to read translated blocks", err)
	}

	var blocks []block.Leaf
	if err := json.Unmarshal(data, &blocks); err != nil {
		return block.NewPipeError(block.ErrRenderFailed, "failed to parse translated blocks", err)
	}
	if len(blocks) == 0 {
		return block.NewPipeError(block.ErrRenderFailed, "no blocks to render", nil)
	}

	pages, err := GroupBlocksByPage(blocks)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return block.NewPipeError(block.ErrRenderFailed, "no renderable pages (all blocks missing page numbers)", nil)
	}

	var body strings.Builder
	for _, page := range pages {
		body.WriteString(r.RenderPage(page))
	}

	title := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	html := GenerateFullHTML(body.String(), title)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return block.NewPipeError(block.ErrRenderFailed, "failed to create output directory", err)
	}
	if err := os.WriteFile(outputPath, []byte(html), 0o644); err != nil {
		return block.NewPipeError(block.ErrRenderFailed, "failed to write HTML output", err)
	}

	logger.Info("HTML generated",
		logger.String("path", outputPath),
		logger.Int("pages", len(pages)),
		logger.Int("blocks", len(blocks)))
	return nil
}

// OutputPathFor maps {stem}_translated.json to {stem}_rendered.html in
// the same directory.
func OutputPathFor(translatedPath string) string {
	dir := filepath.Dir(translatedPath)
	base := filepath.Base(translatedPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSuffix(stem, "_translated")
	return filepath.Join(dir, stem+"_rendered.html")
}
