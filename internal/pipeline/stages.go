package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/extraction"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/rasterize"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/redact"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/render"
)

// Translator turns a leaf block file into a translated block file.
type Translator interface {
	TranslateFile(ctx context.Context, inputPath, outputPath string) error
}

// Censorer produces the censored base layer for a chunk.
type Censorer interface {
	Generate(translatedPath, originPDF, outputPDF string) error
}

// Renderer writes the translated blocks as positioned HTML.
type Renderer interface {
	RenderFile(inputPath, outputPath string) error
}

// Converter prints the HTML to PDF and merges it with the base layer.
type Converter interface {
	Convert(ctx context.Context, htmlPath, censoredPDF, outputPath string) error
}

// Stages bundles the service objects each pipeline stage delegates to.
type Stages struct {
	Engine     extraction.Engine
	Translator Translator
	Censorer   Censorer
	Renderer   Renderer
	Converter  Converter
}

func (s Stages) extract(ctx context.Context, msg *Message) error {
	middle, err := s.Engine.Process(ctx, msg.ChunkPath)
	if err != nil {
		return err
	}
	msg.MiddleJSON = middle
	return nil
}

func (s Stages) extractLeaves(_ context.Context, msg *Message) error {
	leafPath, err := block.ExtractFile(msg.MiddleJSON, msg.PDFType)
	if err != nil {
		return err
	}
	msg.LeafBlockPath = leafPath
	return nil
}

func (s Stages) translate(ctx context.Context, msg *Message) error {
	out := translatedPathFor(msg.LeafBlockPath)
	if err := s.Translator.TranslateFile(ctx, msg.LeafBlockPath, out); err != nil {
		return err
	}
	msg.TranslatedPath = out
	return nil
}

func (s Stages) censor(_ context.Context, msg *Message) error {
	out := redact.OutputPathFor(msg.TranslatedPath)
	if err := s.Censorer.Generate(msg.TranslatedPath, msg.ChunkPath, out); err != nil {
		return err
	}
	msg.CensoredPath = out
	return nil
}

// renderAndConvert renders the HTML and prints it in one stage: the
// browser conversion consumes the render output immediately and both
// are skipped together when the final chunk PDF already exists.
func (s Stages) renderAndConvert(ctx context.Context, msg *Message) error {
	htmlPath := render.OutputPathFor(msg.TranslatedPath)
	finalPath := rasterize.OutputPathFor(htmlPath)

	if info, err := os.Stat(finalPath); err == nil && info.Size() > 0 {
		logger.Info("final chunk PDF already exists, skipping render",
			logger.String("chunk", msg.Stem))
		msg.HTMLPath = htmlPath
		msg.PDFPath = finalPath
		return nil
	}

	if err := s.Renderer.RenderFile(msg.TranslatedPath, htmlPath); err != nil {
		return err
	}
	msg.HTMLPath = htmlPath

	if err := s.Converter.Convert(ctx, htmlPath, msg.CensoredPath, finalPath); err != nil {
		return err
	}
	msg.PDFPath = finalPath
	return nil
}

func translatedPathFor(leafBlockPath string) string {
	dir := filepath.Dir(leafBlockPath)
	base := filepath.Base(leafBlockPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSuffix(stem, "_leaf_blocks")
	return filepath.Join(dir, stem+"_translated.json")
}
