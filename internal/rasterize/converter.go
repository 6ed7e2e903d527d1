// Package rasterize prints the rendered HTML to PDF with a headless
// browser and merges the result over the censored base layer.
package rasterize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/pdfops"
)

const (
	// DefaultStabilityTimeout bounds the wait for MathJax and the scaler
	// scripts to stop mutating the DOM.
	DefaultStabilityTimeout = 10 * time.Second
	// DefaultSettleInterval is the quiet window after the last DOM
	// mutation before the page counts as stable.
	DefaultSettleInterval = 300 * time.Millisecond

	cssDPI = 96.0
)

// Converter drives a headless browser to print each .pdf-page container
// to its own PDF page.
type Converter struct {
	stabilityTimeout time.Duration
	settleInterval   time.Duration
}

// Config 转换器配置，零值取默认。
type Config struct {
	StabilityTimeout time.Duration
	SettleInterval   time.Duration
}

// NewConverter creates a Converter.
func NewConverter(cfg Config) *Converter {
	if cfg.StabilityTimeout <= 0 {
		cfg.StabilityTimeout = DefaultStabilityTimeout
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = DefaultSettleInterval
	}
	return &Converter{
		stabilityTimeout: cfg.StabilityTimeout,
		settleInterval:   cfg.SettleInterval,
	}
}

type pageBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Convert renders htmlPath to a transparent translate layer, stamps it
// over censoredPDF and writes the optimized result to outputPath. An
// existing non-empty output is reused untouched.
func (c *Converter) Convert(ctx context.Context, htmlPath, censoredPDF, outputPath string) error {
	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		logger.Info("final chunk PDF already exists, skipping",
			logger.String("path", outputPath))
		return nil
	}

	absHTML, err := filepath.Abs(htmlPath)
	if err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to resolve HTML path", err)
	}
	if _, err := os.Stat(absHTML); err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "rendered HTML not found", err)
	}

	pagesDir := strings.TrimSuffix(absHTML, ".html") + "_split_pages"
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to create page directory", err)
	}
	defer os.RemoveAll(pagesDir)

	pagePDFs, err := c.printPages(ctx, absHTML, pagesDir)
	if err != nil {
		return err
	}

	translateLayer := strings.TrimSuffix(outputPath, "_final.pdf") + ".pdf"
	if err := pdfops.MergeAll(pagePDFs, translateLayer); err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to concatenate page PDFs", err)
	}
	defer os.Remove(translateLayer)

	if _, err := os.Stat(censoredPDF); err != nil {
		// 没有涂白层时降级输出纯翻译层
		logger.Warn("censored layer missing, using translate layer alone",
			logger.String("censored", censoredPDF))
		return pdfops.Optimize(translateLayer, outputPath)
	}

	basePages, err := pdfops.PageCount(censoredPDF)
	if err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to read censored layer", err)
	}
	layerPages, err := pdfops.PageCount(translateLayer)
	if err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to read translate layer", err)
	}
	if basePages != layerPages {
		return block.NewPipeError(block.ErrConvertFailed,
			fmt.Sprintf("page count mismatch: censored %d vs translated %d", basePages, layerPages), nil)
	}

	stamped := outputPath + ".stamped.pdf"
	if err := pdfops.StampOver(censoredPDF, translateLayer, stamped); err != nil {
		return err
	}
	defer os.Remove(stamped)

	if err := pdfops.Optimize(stamped, outputPath); err != nil {
		return err
	}

	logger.Info("final chunk PDF generated",
		logger.String("path", outputPath),
		logger.Int("pages", basePages))
	return nil
}

// printPages loads the HTML, waits for DOM stability, and prints each
// .pdf-page container in isolation.
func (c *Converter) printPages(ctx context.Context, absHTML, pagesDir string) ([]string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, c.stabilityTimeout+2*time.Minute)
	defer cancelTimeout()

	var boxes []pageBox
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("file://"+absHTML),
		chromedp.Evaluate(c.stabilityScript(), nil),
		chromedp.Poll("window.pageIsStable === true", nil,
			chromedp.WithPollingTimeout(c.stabilityTimeout+2*time.Second)),
		chromedp.Evaluate(`Array.from(document.querySelectorAll('.pdf-page')).map(div => ({width: div.offsetWidth, height: div.offsetHeight}))`, &boxes),
	)
	if err != nil {
		return nil, block.NewPipeError(block.ErrConvertFailed, "failed to load rendered HTML", err)
	}
	if len(boxes) == 0 {
		return nil, block.NewPipeError(block.ErrConvertFailed, "no .pdf-page containers found", nil)
	}

	logger.Info("printing pages", logger.Int("count", len(boxes)))

	var pagePDFs []string
	for idx, box := range boxes {
		pdfPath := filepath.Join(pagesDir, fmt.Sprintf("page_%03d.pdf", idx+1))
		if err := c.printOnePage(browserCtx, idx, box, pdfPath); err != nil {
			return nil, err
		}
		pagePDFs = append(pagePDFs, pdfPath)
	}
	return pagePDFs, nil
}

func (c *Converter) printOnePage(ctx context.Context, idx int, box pageBox, pdfPath string) error {
	widthPt := box.Width * 72 / cssDPI
	heightPt := box.Height * 72 / cssDPI

	// IIFE: top-level const bindings would collide across repeated evaluations
	isolate := fmt.Sprintf(`(() => {
		document.querySelectorAll('.pdf-page').forEach((div, i) => {
			div.style.display = i === %d ? 'block' : 'none';
		});
		document.body.style.overflow = 'hidden';
		document.body.style.width = '%[2]fpx';
		document.body.style.height = '%[3]fpx';

		const old = document.getElementById('dynamic-page-size');
		if (old) old.remove();
		const style = document.createElement('style');
		style.id = 'dynamic-page-size';
		style.innerHTML = `+"`"+`
			@page { size: %[4]fpt %[5]fpt; margin: 0; }
			body, html {
				width: %[2]fpx !important;
				height: %[3]fpx !important;
				margin: 0 !important;
				padding: 0 !important;
				background: transparent !important;
			}
			.pdf-page { background: transparent !important; }
		`+"`"+`;
		document.head.appendChild(style);
	})();`, idx, box.Width, box.Height, widthPt, heightPt)

	var pdfData []byte
	err := chromedp.Run(ctx,
		chromedp.Evaluate(isolate, nil),
		chromedp.Sleep(100*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithPaperWidth(box.Width / cssDPI).
				WithPaperHeight(box.Height / cssDPI).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithScale(1).
				WithLandscape(widthPt > heightPt).
				Do(ctx)
			if err != nil {
				return err
			}
			pdfData = buf
			return nil
		}),
	)
	if err != nil {
		return block.NewPipeError(block.ErrConvertFailed,
			fmt.Sprintf("failed to print page %d", idx+1), err)
	}

	if err := os.WriteFile(pdfPath, pdfData, 0o644); err != nil {
		return block.NewPipeError(block.ErrConvertFailed, "failed to write page PDF", err)
	}
	return nil
}

// stabilityScript marks the page stable once DOM mutations quiet down
// for the settle interval, with a hard upper bound.
func (c *Converter) stabilityScript() string {
	return fmt.Sprintf(`
		window.pageIsStable = false;
		(() => {
			let stableTimeout = null;
			const observer = new MutationObserver(() => {
				if (stableTimeout) clearTimeout(stableTimeout);
				stableTimeout = setTimeout(() => {
					window.pageIsStable = true;
					observer.disconnect();
				}, %d);
			});
			observer.observe(document.body, {
				childList: true, subtree: true,
				attributes: true, characterData: true
			});
			setTimeout(() => {
				if (!window.pageIsStable) window.pageIsStable = true;
			}, %d);
		})();
	`, c.settleInterval.Milliseconds(), c.stabilityTimeout.Milliseconds())
}

// OutputPathFor maps {stem}_rendered.html to
// {stem}_rendered_translate_final.pdf in the same directory.
func OutputPathFor(htmlPath string) string {
	dir := filepath.Dir(htmlPath)
	base := filepath.Base(htmlPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+"_translate_final.pdf")
}
