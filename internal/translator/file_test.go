package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
)

func newTestFile(m ChatModel) *File {
	return NewFile(FileConfig{
		Model:      m,
		TargetLang: "zh",
		RetryDelay: time.Millisecond,
	})
}

func writeLeafBlocks(t *testing.T, dir string, blocks []block.Leaf) string {
	t.Helper()
	data, err := json.Marshal(blocks)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "doc_part_001_leaf_blocks.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranslateFile(t *testing.T) {
	dir := t.TempDir()
	blocks := []block.Leaf{
		{Type: "text", Content: "translate this text", BBox: []float64{10, 10, 100, 20}, PageNumber: 1},
		{Type: "code", Content: "x := 1", BBox: []float64{10, 30, 100, 40}, PageNumber: 1},
		{Type: "image", ImagePath: "img.png", BBox: []float64{10, 50, 100, 90}, PageNumber: 1},
	}
	input := writeLeafBlocks(t, dir, blocks)
	output := filepath.Join(dir, "doc_part_001_translated.json")

	m := &fakeModel{respond: func(call int, items []promptItem) (string, error) {
		return echoResponse(items, func(s string) string { return "译文" }), nil
	}}
	f := newTestFile(m)

	if err := f.TranslateFile(context.Background(), input, output); err != nil {
		t.Fatalf("TranslateFile() error = %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	var translated []block.Leaf
	if err := json.Unmarshal(data, &translated); err != nil {
		t.Fatal(err)
	}
	if len(translated) != len(blocks) {
		t.Fatalf("translated file has %d blocks, want %d", len(translated), len(blocks))
	}
	if translated[0].Content != "译文" {
		t.Errorf("text block content = %q, want translated", translated[0].Content)
	}
	if translated[1].Content != "x := 1" {
		t.Errorf("code block content = %q, must stay untouched", translated[1].Content)
	}
}

func TestTranslateFileSkipsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeLeafBlocks(t, dir, []block.Leaf{
		{Type: "text", Content: "some text", PageNumber: 1, BBox: []float64{0, 0, 1, 1}},
	})
	output := filepath.Join(dir, "doc_part_001_translated.json")
	if err := os.WriteFile(output, []byte(`[{"type":"text","content":"done"}]`), 0644); err != nil {
		t.Fatal(err)
	}

	m := &fakeModel{respond: func(call int, items []promptItem) (string, error) {
		return "", fmt.Errorf("must not be called")
	}}
	f := newTestFile(m)

	if err := f.TranslateFile(context.Background(), input, output); err != nil {
		t.Fatalf("TranslateFile() error = %v", err)
	}
	if m.callCount() != 0 {
		t.Errorf("model called %d times despite existing output", m.callCount())
	}
	data, _ := os.ReadFile(output)
	if string(data) != `[{"type":"text","content":"done"}]` {
		t.Error("existing output was rewritten")
	}
}

func TestTranslateFileMergesInlineEquations(t *testing.T) {
	dir := t.TempDir()
	bbox := []float64{10, 10, 100, 20}
	blocks := []block.Leaf{
		{Type: "text", Content: "Let ", BBox: bbox, PageNumber: 1},
		{Type: "inline_equation", Content: "x^2", BBox: bbox, PageNumber: 1},
		{Type: "text", Content: " hold.", BBox: bbox, PageNumber: 1},
	}
	input := writeLeafBlocks(t, dir, blocks)
	output := filepath.Join(dir, "out.json")

	m := &fakeModel{respond: func(call int, items []promptItem) (string, error) {
		return echoResponse(items, func(s string) string { return s }), nil
	}}
	f := newTestFile(m)

	if err := f.TranslateFile(context.Background(), input, output); err != nil {
		t.Fatalf("TranslateFile() error = %v", err)
	}

	data, _ := os.ReadFile(output)
	var translated []block.Leaf
	if err := json.Unmarshal(data, &translated); err != nil {
		t.Fatal(err)
	}
	if len(translated) != 1 {
		t.Fatalf("got %d blocks after equation merge, want 1", len(translated))
	}
	// unit extraction trims each fragment, so boundary whitespace around
	// the equation is consumed before the merge
	if translated[0].Content != "Let$x^2$hold." {
		t.Errorf("merged content = %q", translated[0].Content)
	}
}

func TestGroupByCharBudget(t *testing.T) {
	units := []block.Unit{
		{Index: 0, Type: "text", Text: "aaaa"},       // 4 chars
		{Index: 1, Type: "text", Text: "bbbb"},       // 4 chars, fits with 0
		{Index: 2, Type: "title", Text: "a heading"}, // singleton
		{Index: 3, Type: "text", Text: "cccccccc"},   // 8 chars, own group
		{Index: 4, Type: "text", Text: "dd"},         // exceeds budget with 3
	}

	groups := groupByCharBudget(units, 8)
	if len(groups) != 4 {
		t.Fatalf("got %d groups, want 4: %+v", len(groups), groups)
	}
	if len(groups[0]) != 2 {
		t.Errorf("group 0 size = %d, want 2", len(groups[0]))
	}
	if groups[1][0].Type != "title" {
		t.Errorf("group 1 should be the singleton title, got %+v", groups[1])
	}
	if len(groups[2]) != 1 || groups[2][0].Index != 3 {
		t.Errorf("group 2 = %+v", groups[2])
	}
	if len(groups[3]) != 1 || groups[3][0].Index != 4 {
		t.Errorf("group 3 = %+v", groups[3])
	}
}

func TestGroupByCharBudgetTotalCoverage(t *testing.T) {
	var units []block.Unit
	for i := 0; i < 20; i++ {
		units = append(units, block.Unit{Index: i, Type: "text", Text: "some words here"})
	}
	groups := groupByCharBudget(units, 40)

	count := 0
	for _, g := range groups {
		count += len(g)
	}
	if count != len(units) {
		t.Errorf("groups cover %d units, want %d", count, len(units))
	}
}
