package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/config"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/pdfops"
)

// retryDelay is the pause between whole-chain attempts.
const retryDelay = time.Second

// Result is the outcome of a pipeline run. No partial output is ever
// reported as success.
type Result struct {
	Success    bool
	OutputPath string
	Err        error
}

// Pipeline 整条翻译流水线:分割 → 提取 → 叶块 → 翻译 → 涂白 → 渲染/转换 → 合并。
type Pipeline struct {
	cfg    *config.Config
	stages Stages
}

// New creates a Pipeline over the given stage services.
func New(cfg *config.Config, stages Stages) *Pipeline {
	return &Pipeline{cfg: cfg, stages: stages}
}

// Run processes pdfPath end to end and writes {stem}_translated.pdf
// into outputDir. Splitting happens exactly once; the stage chain is
// retried up to MaxRetry times, with artifact-existence checks making
// each retry only redo the chunks that previously failed.
func (p *Pipeline) Run(ctx context.Context, pdfPath, outputDir string) Result {
	if _, err := os.Stat(pdfPath); err != nil {
		return Result{Err: block.NewPipeError(block.ErrSplitFailed, "input PDF not found", err)}
	}

	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	workdir := filepath.Join(p.cfg.WorkDirectory, stem)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return Result{Err: block.NewPipeError(block.ErrSplitFailed, "failed to create work directory", err)}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{Err: block.NewPipeError(block.ErrSplitFailed, "failed to create output directory", err)}
	}

	pdfType, err := p.resolvePDFType(pdfPath)
	if err != nil {
		return Result{Err: err}
	}
	logger.Info("processing PDF",
		logger.String("file", filepath.Base(pdfPath)),
		logger.String("mode", pdfType))

	chunks, err := pdfops.SplitChunks(pdfPath, workdir, p.cfg.ChunkSize)
	if err != nil {
		return Result{Err: err}
	}
	total := len(chunks)
	logger.Info("PDF split into chunks", logger.Int("chunks", total))

	outputPath := filepath.Join(outputDir, stem+"_translated.pdf")

	var produced int
	for attempt := 1; attempt <= p.cfg.MaxRetry; attempt++ {
		logger.Info("pipeline attempt",
			logger.Int("attempt", attempt),
			logger.Int("maxRetry", p.cfg.MaxRetry))

		finals := p.runChain(ctx, chunks, pdfType, total)
		produced = len(finals)
		logger.Info("attempt finished",
			logger.Int("produced", produced),
			logger.Int("total", total))

		if produced == total {
			if err := pdfops.MergeAll(finals, outputPath); err != nil {
				// 合并失败不重试:chunk 产物齐全,重跑不会改变结果
				return Result{Err: err}
			}
			p.cleanup(workdir)
			return Result{Success: true, OutputPath: outputPath}
		}

		if ctx.Err() != nil {
			return Result{Err: ctx.Err()}
		}
		if attempt < p.cfg.MaxRetry {
			logger.Warn("chunks missing, retrying",
				logger.Int("missing", total-produced))
			select {
			case <-ctx.Done():
				return Result{Err: ctx.Err()}
			case <-time.After(retryDelay):
			}
		}
	}

	return Result{Err: block.NewPipeError(block.ErrConvertFailed,
		fmt.Sprintf("only %d of %d chunks completed after %d attempts", produced, total, p.cfg.MaxRetry), nil)}
}

// runChain runs one full pass of the stage chain over all chunks and
// returns the final chunk PDFs that exist afterwards.
func (p *Pipeline) runChain(ctx context.Context, chunks []string, pdfType string, total int) []string {
	seed := make(chan *Message, total)
	for _, chunk := range chunks {
		seed <- NewMessage(chunk, pdfType, total)
	}
	close(seed)

	extracted := make(chan *Message, total)
	leafed := make(chan *Message, total)
	translated := make(chan *Message, total)
	censored := make(chan *Message, total)
	done := make(chan *Message, total)

	go runStage(ctx, "extract", p.cfg.ExtractConcurrency, seed, extracted, p.stages.extract)
	go runStage(ctx, "leaf-extract", 1, extracted, leafed, p.stages.extractLeaves)
	go runStage(ctx, "translate", p.cfg.TranslateConcurrency, leafed, translated, p.stages.translate)
	go runStage(ctx, "censor", 1, translated, censored, p.stages.censor)
	go runStage(ctx, "render-convert", 1, censored, done, p.stages.renderAndConvert)

	var finals []string
	for msg := range done {
		if msg.Failed() || msg.PDFPath == "" {
			continue
		}
		if info, err := os.Stat(msg.PDFPath); err == nil && info.Size() > 0 {
			finals = append(finals, msg.PDFPath)
		}
	}
	return finals
}

// resolvePDFType turns mode "auto" into txt or vlm with a text probe.
// An engine locked to one mode wins over both the config and the probe:
// its middle JSON lands under that mode's directory and must be
// post-processed the same way.
func (p *Pipeline) resolvePDFType(pdfPath string) (string, error) {
	if m := p.stages.Engine.Mode(); m != "" {
		if p.cfg.PDFType != "auto" && p.cfg.PDFType != m {
			logger.Warn("configured PDF type unsupported by the extraction backend",
				logger.String("configured", p.cfg.PDFType),
				logger.String("using", m))
		}
		return m, nil
	}
	if p.cfg.PDFType != "auto" {
		return p.cfg.PDFType, nil
	}
	isText, err := pdfops.IsTextPDF(pdfPath)
	if err != nil {
		return "", err
	}
	if isText {
		return "txt", nil
	}
	return "vlm", nil
}

func (p *Pipeline) cleanup(workdir string) {
	if !p.cfg.CleanupWorkdir {
		logger.Info("keeping work directory", logger.String("path", workdir))
		return
	}
	if err := os.RemoveAll(workdir); err != nil {
		logger.Warn("failed to clean work directory", logger.Err(err))
		return
	}
	logger.Info("work directory cleaned", logger.String("path", workdir))
}
