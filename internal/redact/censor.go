package redact

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/pdfops"
)

// defaultPageWidth/Height size mask pages when no block on that page
// carries a page_size (US Letter in points).
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// Generator produces the censored base layer for a chunk.
type Generator struct {
	sampler Sampler
}

// NewGenerator 创建涂白层生成器。sampler 为 nil 时所有区域使用默认背景色。
func NewGenerator(sampler Sampler) *Generator {
	return &Generator{sampler: sampler}
}

// Generate paints the selected regions into a mask PDF and stamps it
// over the original chunk, writing outputPDF. An existing non-empty
// output is reused untouched.
func (g *Generator) Generate(translatedPath, originPDF, outputPDF string) error {
	if info, err := os.Stat(outputPDF); err == nil && info.Size() > 0 {
		logger.Info("censored PDF already exists, skipping",
			logger.String("path", outputPDF))
		return nil
	}

	data, err := os.ReadFile(translatedPath)
	if err != nil {
		return block.NewPipeError(block.ErrCensorFailed, "failed to read translated blocks", err)
	}

	var blocks []block.Leaf
	if err := json.Unmarshal(data, &blocks); err != nil {
		return block.NewPipeError(block.ErrCensorFailed, "failed to parse translated blocks", err)
	}

	pageCount, err := pdfops.PageCount(originPDF)
	if err != nil {
		return block.NewPipeError(block.ErrCensorFailed, "failed to read original chunk", err)
	}

	regions, skipped := SelectRegions(blocks)
	logger.Info("censor regions selected",
		logger.Int("pages", len(regions)),
		logger.Int("skipped", skipped))

	maskPath := outputPDF + ".mask.pdf"
	if err := g.writeMask(maskPath, pageCount, pageSizes(blocks), regions); err != nil {
		return err
	}
	defer os.Remove(maskPath)

	if err := pdfops.StampOver(originPDF, maskPath, outputPDF); err != nil {
		return block.NewPipeError(block.ErrCensorFailed, "failed to stamp censor mask", err)
	}

	logger.Info("censored PDF generated", logger.String("path", outputPDF))
	return nil
}

// pageSizes collects the page size each 0-based page reports through
// its blocks.
func pageSizes(blocks []block.Leaf) map[int][2]float64 {
	sizes := make(map[int][2]float64)
	for _, b := range blocks {
		if b.PageNumber <= 0 || len(b.PageSize) < 2 {
			continue
		}
		idx := b.PageNumber - 1
		if _, ok := sizes[idx]; !ok {
			sizes[idx] = [2]float64{b.PageSize[0], b.PageSize[1]}
		}
	}
	return sizes
}

// writeMask builds the overlay PDF: one page per original page, filled
// rectangles over every selected region, everything else left unpainted
// so the original shows through after stamping.
func (g *Generator) writeMask(maskPath string, pageCount int, sizes map[int][2]float64, regions map[int][]Rect) error {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)

	for pageIdx := 0; pageIdx < pageCount; pageIdx++ {
		size, ok := sizes[pageIdx]
		if !ok {
			size = [2]float64{defaultPageWidth, defaultPageHeight}
		}
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: size[0], Ht: size[1]})

		for _, r := range regions[pageIdx] {
			bg := DefaultBackground
			if g.sampler != nil {
				bg = BackgroundColor(g.sampler.Sample(pageIdx, r))
			}
			pdf.SetFillColor(toByte(bg.R), toByte(bg.G), toByte(bg.B))
			pdf.Rect(r.X0, r.Y0, r.X1-r.X0, r.Y1-r.Y0, "F")
		}
	}

	if err := pdf.OutputFileAndClose(maskPath); err != nil {
		return block.NewPipeError(block.ErrCensorFailed, "failed to write censor mask", err)
	}
	return nil
}

func toByte(v float64) int {
	return int(math.Round(v * 255))
}

// OutputPathFor maps {stem}_translated.json to {stem}_censored.pdf in
// the same directory.
func OutputPathFor(translatedPath string) string {
	dir := filepath.Dir(translatedPath)
	base := filepath.Base(translatedPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSuffix(stem, "_translated")
	return filepath.Join(dir, stem+"_censored.pdf")
}
