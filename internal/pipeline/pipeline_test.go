package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"codeberg.org/go-pdf/fpdf"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/config"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/pdfops"
)

// ---- stage fakes ------------------------------------------------------

type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	mode  string         // non-empty pins the engine to one extraction mode
	tree  string         // middle JSON payload, defaults to a single blank page
	fail  map[string]int // stem -> remaining failures
}

func (e *fakeEngine) Mode() string { return e.mode }

func (e *fakeEngine) Process(_ context.Context, chunkPath string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(chunkPath), ".pdf")

	e.mu.Lock()
	e.calls = append(e.calls, stem)
	remaining := e.fail[stem]
	if remaining > 0 {
		e.fail[stem] = remaining - 1
	}
	e.mu.Unlock()

	if remaining > 0 {
		return "", errors.New("extraction backend unavailable")
	}

	tree := e.tree
	if tree == "" {
		tree = `{"pdf_info":[{"page_idx":0,"page_size":[612,792]}]}`
	}
	middle := strings.TrimSuffix(chunkPath, ".pdf") + "_middle.json"
	if err := os.WriteFile(middle, []byte(tree), 0o644); err != nil {
		return "", err
	}
	return middle, nil
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls []string
}

func (t *fakeTranslator) TranslateFile(_ context.Context, inputPath, outputPath string) error {
	t.mu.Lock()
	t.calls = append(t.calls, filepath.Base(inputPath))
	t.mu.Unlock()

	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		return nil
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

type fakeCensorer struct{}

func (fakeCensorer) Generate(_, _, outputPDF string) error {
	return os.WriteFile(outputPDF, []byte("censored"), 0o644)
}

type fakeRenderer struct{}

func (fakeRenderer) RenderFile(_, outputPath string) error {
	return os.WriteFile(outputPath, []byte("<html></html>"), 0o644)
}

type fakeConverter struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]int // stem -> remaining failures
}

func (c *fakeConverter) Convert(_ context.Context, htmlPath, _, outputPath string) error {
	stem := strings.TrimSuffix(filepath.Base(htmlPath), "_rendered.html")

	c.mu.Lock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[stem]++
	remaining := c.fail[stem]
	if remaining > 0 {
		c.fail[stem] = remaining - 1
	}
	c.mu.Unlock()

	if remaining > 0 {
		return errors.New("browser crashed")
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	return pdf.OutputFileAndClose(outputPath)
}

// ---- helpers ----------------------------------------------------------

func writeSourcePDF(t *testing.T, path string, pages int) {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	for i := 0; i < pages; i++ {
		pdf.AddPage()
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.WorkDirectory = filepath.Join(t.TempDir(), "workdir")
	cfg.ChunkSize = 2
	cfg.MaxRetry = 3
	cfg.PDFType = "vlm"
	cfg.ExtractConcurrency = 2
	cfg.TranslateConcurrency = 2
	return cfg
}

func newTestPipeline(cfg *config.Config, engine *fakeEngine, conv *fakeConverter) (*Pipeline, *fakeTranslator) {
	tr := &fakeTranslator{}
	stages := Stages{
		Engine:     engine,
		Translator: tr,
		Censorer:   fakeCensorer{},
		Renderer:   fakeRenderer{},
		Converter:  conv,
	}
	return New(cfg, stages), tr
}

// ---- tests ------------------------------------------------------------

func TestRunSuccess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.pdf")
	writeSourcePDF(t, src, 3) // 2 chunks at size 2

	cfg := testConfig(t)
	p, _ := newTestPipeline(cfg, &fakeEngine{}, &fakeConverter{})

	res := p.Run(context.Background(), src, filepath.Join(dir, "out"))
	if !res.Success {
		t.Fatalf("Run failed: %v", res.Err)
	}

	want := filepath.Join(dir, "out", "doc_translated.pdf")
	if res.OutputPath != want {
		t.Errorf("output path = %q, want %q", res.OutputPath, want)
	}

	// one page per chunk from the fake converter
	n, err := pdfops.PageCount(res.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("merged page count = %d, want 2", n)
	}
}

func TestRunRetriesOnlyFailedChunks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.pdf")
	writeSourcePDF(t, src, 3)

	cfg := testConfig(t)
	conv := &fakeConverter{fail: map[string]int{"doc_part_002": 1}}
	p, _ := newTestPipeline(cfg, &fakeEngine{}, conv)

	res := p.Run(context.Background(), src, filepath.Join(dir, "out"))
	if !res.Success {
		t.Fatalf("Run failed: %v", res.Err)
	}

	// chunk 1 finished in attempt 1 and its final PDF exists, so the
	// second attempt must skip it entirely
	if conv.calls["doc_part_001"] != 1 {
		t.Errorf("chunk 1 converted %d times, want 1", conv.calls["doc_part_001"])
	}
	if conv.calls["doc_part_002"] != 2 {
		t.Errorf("chunk 2 converted %d times, want 2", conv.calls["doc_part_002"])
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.pdf")
	writeSourcePDF(t, src, 2) // single chunk

	cfg := testConfig(t)
	cfg.MaxRetry = 2
	conv := &fakeConverter{fail: map[string]int{"doc_part_001": 100}}
	p, _ := newTestPipeline(cfg, &fakeEngine{}, conv)

	res := p.Run(context.Background(), src, filepath.Join(dir, "out"))
	if res.Success {
		t.Fatal("Run succeeded despite permanent conversion failure")
	}
	if res.Err == nil {
		t.Fatal("missing error on exhausted retries")
	}
	if conv.calls["doc_part_001"] != 2 {
		t.Errorf("conversion attempts = %d, want 2", conv.calls["doc_part_001"])
	}

	// no partial output delivered
	if _, err := os.Stat(filepath.Join(dir, "out", "doc_translated.pdf")); !os.IsNotExist(err) {
		t.Error("partial output was written")
	}
}

func TestRunErroredMessageShortCircuits(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.pdf")
	writeSourcePDF(t, src, 3)

	cfg := testConfig(t)
	cfg.MaxRetry = 1
	engine := &fakeEngine{fail: map[string]int{"doc_part_002": 100}}
	p, tr := newTestPipeline(cfg, engine, &fakeConverter{})

	res := p.Run(context.Background(), src, filepath.Join(dir, "out"))
	if res.Success {
		t.Fatal("Run succeeded despite failing extraction")
	}

	// the failed chunk must never reach the translation stage
	for _, call := range tr.calls {
		if strings.Contains(call, "part_002") {
			t.Errorf("failed chunk reached the translator: %s", call)
		}
	}
}

func TestRunEngineModeWinsOverConfig(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "doc.pdf")
	writeSourcePDF(t, src, 2) // single chunk

	cfg := testConfig(t)
	cfg.PDFType = "txt"

	// the backend always parses with its vision model, so the chunk must
	// be post-processed as vlm: para_blocks survive into the leaf file
	engine := &fakeEngine{
		mode: "vlm",
		tree: `{"pdf_info":[{"page_idx":0,"page_size":[612,792],"para_blocks":[{"type":"text","content":"para text","bbox":[10,10,100,20]}]}]}`,
	}
	p, _ := newTestPipeline(cfg, engine, &fakeConverter{})

	res := p.Run(context.Background(), src, filepath.Join(dir, "out"))
	if !res.Success {
		t.Fatalf("Run failed: %v", res.Err)
	}

	leafPath := filepath.Join(cfg.WorkDirectory, "doc", "chunks", "doc_part_001_leaf_blocks.json")
	data, err := os.ReadFile(leafPath)
	if err != nil {
		t.Fatalf("leaf blocks file missing: %v", err)
	}
	if !strings.Contains(string(data), "para text") {
		t.Error("configured txt mode overrode the engine's vlm mode")
	}
}

func TestRunMissingInput(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(cfg, &fakeEngine{}, &fakeConverter{})

	res := p.Run(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), t.TempDir())
	if res.Success || res.Err == nil {
		t.Fatal("expected failure for missing input PDF")
	}
}

func TestRunStageForwardsFailedMessagesUnprocessed(t *testing.T) {
	in := make(chan *Message, 2)
	out := make(chan *Message, 2)

	good := NewMessage("a.pdf", "vlm", 2)
	bad := NewMessage("b.pdf", "vlm", 2)
	bad.Fail(errors.New("upstream failure"))

	in <- good
	in <- bad
	close(in)

	var processed []string
	var mu sync.Mutex
	runStage(context.Background(), "test", 2, in, out, func(_ context.Context, msg *Message) error {
		mu.Lock()
		processed = append(processed, msg.Stem)
		mu.Unlock()
		return nil
	})

	var forwarded []*Message
	for msg := range out {
		forwarded = append(forwarded, msg)
	}
	// both messages travel the whole chain; only the clean one is worked on
	if len(forwarded) != 2 {
		t.Fatalf("forwarded %d messages, want 2", len(forwarded))
	}
	if len(processed) != 1 || processed[0] != good.Stem {
		t.Errorf("processed %v, want only the clean message", processed)
	}
	if !bad.Failed() {
		t.Error("forwarded message lost its error tag")
	}
}

func TestRunStageMarksFailures(t *testing.T) {
	in := make(chan *Message, 1)
	out := make(chan *Message, 1)

	msg := NewMessage("a.pdf", "vlm", 1)
	in <- msg
	close(in)

	stageErr := fmt.Errorf("stage exploded")
	runStage(context.Background(), "test", 1, in, out, func(_ context.Context, _ *Message) error {
		return stageErr
	})

	got, ok := <-out
	if !ok {
		t.Fatal("failed message was not forwarded")
	}
	if !got.Failed() || !errors.Is(got.Err, stageErr) {
		t.Errorf("msg.Err = %v, want the stage error", got.Err)
	}
}
