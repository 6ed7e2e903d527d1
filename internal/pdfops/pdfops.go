// Package pdfops wraps the pure-Go PDF operations the pipeline needs:
// chunk splitting, page counting, layer stamping, merging and
// structural optimization.
package pdfops

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	ledongthucpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// PageCount returns the number of pages in a PDF.
func PageCount(pdfPath string) (int, error) {
	ctx, err := api.ReadContextFile(pdfPath)
	if err != nil {
		return 0, block.NewPipeError(block.ErrSplitFailed, "failed to read PDF", err)
	}
	return ctx.PageCount, nil
}

// SplitChunks 将 PDF 按 chunkSize 页切分为 chunks/{stem}_part_NNN.pdf。
// 已存在的 chunk 文件直接复用，保证重跑幂等。
func SplitChunks(inputPath, workDir string, chunkSize int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, block.NewPipeError(block.ErrSplitFailed,
			fmt.Sprintf("invalid chunk size %d", chunkSize), nil)
	}

	chunksDir := filepath.Join(workDir, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return nil, block.NewPipeError(block.ErrSplitFailed, "failed to create chunks directory", err)
	}

	totalPages, err := PageCount(inputPath)
	if err != nil {
		return nil, err
	}
	if totalPages == 0 {
		return nil, block.NewPipeError(block.ErrSplitFailed, "PDF has no pages", nil)
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))

	var chunks []string
	for start, index := 1, 1; start <= totalPages; start, index = start+chunkSize, index+1 {
		end := start + chunkSize - 1
		if end > totalPages {
			end = totalPages
		}

		chunkPath := filepath.Join(chunksDir, fmt.Sprintf("%s_part_%03d.pdf", stem, index))
		if info, statErr := os.Stat(chunkPath); statErr == nil && info.Size() > 0 {
			logger.Info("chunk already exists, skipping",
				logger.String("chunk", filepath.Base(chunkPath)))
			chunks = append(chunks, chunkPath)
			continue
		}

		pages := []string{fmt.Sprintf("%d-%d", start, end)}
		if err := api.TrimFile(inputPath, chunkPath, pages, nil); err != nil {
			return nil, block.NewPipeError(block.ErrSplitFailed,
				fmt.Sprintf("failed to split pages %d-%d", start, end), err)
		}

		logger.Info("chunk created",
			logger.String("chunk", filepath.Base(chunkPath)),
			logger.Int("from", start),
			logger.Int("to", end))
		chunks = append(chunks, chunkPath)
	}

	return chunks, nil
}

// MergeAll concatenates the given PDFs in filename order into a single
// output file.
func MergeAll(inputs []string, outputPath string) error {
	if len(inputs) == 0 {
		return block.NewPipeError(block.ErrMergeFailed, "no PDFs to merge", nil)
	}

	sorted := append([]string(nil), inputs...)
	sort.Strings(sorted)

	logger.Info("merging PDFs",
		logger.Int("count", len(sorted)),
		logger.String("output", filepath.Base(outputPath)))

	if err := api.MergeCreateFile(sorted, outputPath, false, nil); err != nil {
		return block.NewPipeError(block.ErrMergeFailed, "failed to merge PDFs", err)
	}
	return nil
}

// StampOver lays each page of overlayPDF over the matching page of
// basePDF. Undrawn overlay regions stay transparent, so the base shows
// through. A bare PDF watermark file without a page suffix selects
// pdfcpu's multi stamp, pairing source page N with destination page N.
func StampOver(basePDF, overlayPDF, outputPath string) error {
	wm, err := api.PDFWatermark(overlayPDF, "rot:0, scale:1 abs, pos:c", true, false, 0)
	if err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to prepare overlay", err)
	}
	if err := api.AddWatermarksFile(basePDF, outputPath, nil, wm, nil); err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to stamp overlay", err)
	}
	return nil
}

// Optimize rewrites a PDF with pdfcpu's structural optimization.
func Optimize(inputPath, outputPath string) error {
	if err := api.OptimizeFile(inputPath, outputPath, nil); err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to optimize PDF", err)
	}
	return nil
}

// IsTextPDF 检查 PDF 是否包含可提取的文本。
// 只探测前几页，发现足够多的非空白字符即认定为文本型 PDF。
func IsTextPDF(pdfPath string) (bool, error) {
	f, r, err := ledongthucpdf.Open(pdfPath)
	if err != nil {
		return false, block.NewPipeError(block.ErrSplitFailed, "failed to open PDF for text probe", err)
	}
	defer f.Close()

	maxPagesToCheck := 3
	if r.NumPage() < maxPagesToCheck {
		maxPagesToCheck = r.NumPage()
	}

	totalTextLength := 0
	for pageNum := 1; pageNum <= maxPagesToCheck; pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		for _, c := range content {
			if !unicode.IsSpace(c) {
				totalTextLength++
			}
		}
		if totalTextLength > 50 {
			return true, nil
		}
	}

	return totalTextLength > 0, nil
}
