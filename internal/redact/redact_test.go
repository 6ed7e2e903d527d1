package redact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/go-pdf/fpdf"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/pdfops"
)

func leaf(typ string, page int, bbox []float64, ancestors ...string) block.Leaf {
	l := block.Leaf{
		Type:       typ,
		Content:    "x",
		BBox:       bbox,
		PageNumber: page,
		PageSize:   []float64{612, 792},
	}
	for _, a := range ancestors {
		l.Ancestors = append(l.Ancestors, block.Ancestor{Type: a})
	}
	return l
}

func TestSelectRegions(t *testing.T) {
	blocks := []block.Leaf{
		leaf("text", 1, []float64{10, 10, 100, 30}),
		leaf("table", 1, []float64{10, 40, 100, 80}),
		leaf("inline_equation", 2, []float64{10, 10, 50, 20}),
		leaf("image", 1, []float64{10, 90, 100, 200}),              // not a target
		leaf("block_page", 1, []float64{0, 0, 612, 792}),           // not a target
		leaf("text", 1, []float64{10, 210, 100, 230}, "code_body"), // code related
	}

	regions, skipped := SelectRegions(blocks)

	if len(regions[0]) != 2 {
		t.Errorf("page 0 region count = %d, want 2", len(regions[0]))
	}
	if len(regions[1]) != 1 {
		t.Errorf("page 1 region count = %d, want 1", len(regions[1]))
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
}

func TestSelectRegionsCodeOwnType(t *testing.T) {
	// a code-typed block is not in the target set at all
	regions, skipped := SelectRegions([]block.Leaf{
		leaf("code", 1, []float64{0, 0, 10, 10}),
	})
	if len(regions) != 0 || skipped != 1 {
		t.Errorf("regions = %v, skipped = %d", regions, skipped)
	}
}

func TestSelectRegionsDeepAncestorIgnored(t *testing.T) {
	// code beyond the third ancestor does not protect the block
	l := leaf("text", 1, []float64{0, 0, 10, 10}, "a", "b", "c", "code")
	regions, _ := SelectRegions([]block.Leaf{l})
	if len(regions[0]) != 1 {
		t.Error("fourth ancestor should not mark the block as code")
	}
}

func TestIsLight(t *testing.T) {
	tests := []struct {
		name string
		c    Color
		want bool
	}{
		{"white", Color{1, 1, 1}, true},
		{"black", Color{0, 0, 0}, false},
		{"light gray", Color{0.9, 0.9, 0.9}, true},
		{"dark red", Color{0.5, 0, 0}, false},
		{"pure green below threshold", Color{0, 1, 0}, false}, // 0.587 < 0.7
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLight(tt.c); got != tt.want {
				t.Errorf("IsLight(%v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestBackgroundColor(t *testing.T) {
	samples := []Color{
		{0.95, 0.95, 0.95},
		{0.9501, 0.9501, 0.9501}, // rounds into the same bucket
		{1, 1, 1},
		{0.1, 0.1, 0.1}, // dark, discarded
	}
	got := BackgroundColor(samples)
	want := Color{0.95, 0.95, 0.95}
	if got != want {
		t.Errorf("BackgroundColor = %v, want %v", got, want)
	}
}

func TestBackgroundColorNoLightSamples(t *testing.T) {
	got := BackgroundColor([]Color{{0, 0, 0}, {0.2, 0.2, 0.2}})
	if got != DefaultBackground {
		t.Errorf("BackgroundColor = %v, want default", got)
	}
}

func writeOriginPDF(t *testing.T, path string, pages int) {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	for i := 0; i < pages; i++ {
		pdf.AddPage()
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatal(err)
	}
}

func writeBlocks(t *testing.T, path string, blocks []block.Leaf) {
	t.Helper()
	data, err := json.Marshal(blocks)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	origin := filepath.Join(dir, "doc_part_001.pdf")
	translated := filepath.Join(dir, "doc_part_001_translated.json")
	output := filepath.Join(dir, "doc_part_001_censored.pdf")

	writeOriginPDF(t, origin, 2)
	writeBlocks(t, translated, []block.Leaf{
		leaf("text", 1, []float64{50, 50, 300, 80}),
		leaf("text", 2, []float64{50, 100, 300, 130}),
	})

	g := NewGenerator(nil)
	if err := g.Generate(translated, origin, output); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	n, err := pdfops.PageCount(output)
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != 2 {
		t.Errorf("censored page count = %d, want 2", n)
	}

	if _, err := os.Stat(output + ".mask.pdf"); !os.IsNotExist(err) {
		t.Error("mask temp file was not cleaned up")
	}
}

func TestGenerateSkipsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "doc_censored.pdf")
	if err := os.WriteFile(output, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	// translated/origin paths do not even exist: the skip must win
	g := NewGenerator(nil)
	if err := g.Generate(filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing.pdf"), output); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	data, _ := os.ReadFile(output)
	if string(data) != "existing" {
		t.Error("existing output was overwritten")
	}
}

type fixedSampler struct{ colors []Color }

func (s fixedSampler) Sample(int, Rect) []Color { return s.colors }

func TestGenerateWithSampler(t *testing.T) {
	dir := t.TempDir()
	origin := filepath.Join(dir, "doc.pdf")
	translated := filepath.Join(dir, "doc_translated.json")
	output := filepath.Join(dir, "doc_censored.pdf")

	writeOriginPDF(t, origin, 1)
	writeBlocks(t, translated, []block.Leaf{
		leaf("text", 1, []float64{10, 10, 100, 40}),
	})

	g := NewGenerator(fixedSampler{colors: []Color{{0.98, 0.98, 0.94}}})
	if err := g.Generate(translated, origin, output); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		t.Fatal("censored PDF missing or empty")
	}
}

func TestOutputPathFor(t *testing.T) {
	got := OutputPathFor(filepath.Join("work", "doc_part_002_translated.json"))
	want := filepath.Join("work", "doc_part_002_censored.pdf")
	if got != want {
		t.Errorf("OutputPathFor = %q, want %q", got, want)
	}
}
