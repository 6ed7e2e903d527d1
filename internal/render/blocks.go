package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/layout"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// ScaleFactor converts PDF points (72 DPI) to CSS pixels (96 DPI).
const ScaleFactor = 96.0 / 72.0

// semanticTypes 语义类型白名单。只有这些值才作为块的 CSS 语义类。
var semanticTypes = map[string]bool{
	"image_caption":      true,
	"image_footnote":     true,
	"table_caption":      true,
	"table_footnote":     true,
	"title":              true,
	"index":              true,
	"list":               true,
	"interline_equation": true,
	"header":             true,
	"footer":             true,
	"page_number":        true,
	"aside_text":         true,
	"page_footnote":      true,
	"code":               true,
	"code_body":          true,
	"code_caption":       true,
	"algorithm":          true,
}

// BlockRenderer 基础块渲染器
type BlockRenderer struct {
	opt   *layout.Optimizer
	table *TableRenderer
}

// NewBlockRenderer creates a renderer whose font fitting runs on the
// given layout simulator.
func NewBlockRenderer(sim *layout.Simulator) *BlockRenderer {
	opt := layout.NewOptimizer(sim)
	return &BlockRenderer{
		opt:   opt,
		table: NewTableRenderer(opt),
	}
}

// Render emits one absolutely positioned block div, or an HTML comment
// when the bbox is unusable.
func (r *BlockRenderer) Render(leaf block.Leaf, scale float64) string {
	if len(leaf.BBox) != 4 {
		logger.Warn("block has invalid bbox", logger.String("type", leaf.Type))
		return "<!-- Invalid bbox -->"
	}

	blockType := leaf.Type
	if blockType == "" {
		blockType = "text"
	}

	cls := semanticClass(leaf, blockType)

	x0 := leaf.BBox[0] * scale
	y0 := leaf.BBox[1] * scale
	width := (leaf.BBox[2] - leaf.BBox[0]) * scale
	height := (leaf.BBox[3] - leaf.BBox[1]) * scale
	style := fmt.Sprintf("left:%spx;top:%spx;width:%spx;height:%spx;",
		px(x0), px(y0), px(width), px(height))

	inner := r.renderInner(leaf, blockType, cls, scale)
	return fmt.Sprintf(`<div class="block %s" style="%s">%s</div>`, cls, style, inner)
}

// semanticClass checks the nearest three ancestor types against the
// whitelist, falling back to the block's own type.
func semanticClass(leaf block.Leaf, blockType string) string {
	for i := 0; i < 3; i++ {
		if t := leaf.AncestorType(i); t != "" && semanticTypes[t] {
			return t
		}
	}
	return blockType
}

func (r *BlockRenderer) renderInner(leaf block.Leaf, blockType, cls string, scale float64) string {
	switch blockType {
	case "image":
		return fmt.Sprintf(`<img src="%s" alt="Image" style="width:100%%;height:100%%;object-fit:contain;">`, leaf.ImagePath)
	case "interline_equation":
		return r.renderEquation(leaf)
	case "table":
		return r.table.Render(leaf, scale)
	case "block_page":
		return `<div class="empty-page" style="width:100%;height:100%;background:transparent;"></div>`
	case "text", "inline_equation":
		return r.renderText(leaf, cls, scale)
	default:
		logger.Debug("skipping unknown block type", logger.String("type", blockType))
		return ""
	}
}

func (r *BlockRenderer) renderEquation(leaf block.Leaf) string {
	latex := strings.TrimSpace(leaf.Content)
	if latex != "" {
		return fmt.Sprintf(`<div class="interline-equation">$$%s$$</div>`, latex)
	}
	if leaf.ImagePath != "" {
		return fmt.Sprintf(`<img src="%s" alt="Equation" style="width:100%%;height:auto;">`, leaf.ImagePath)
	}
	return `<p style='color:#999;font-size:10px;'>[Equation missing]</p>`
}

func (r *BlockRenderer) renderText(leaf block.Leaf, cls string, scale float64) string {
	fontSize := r.opt.OptimalSize(leaf.BBox, leaf.Content, scale)
	hasInline := hasInlineEquationAncestor(leaf)

	var inner string
	if cls == "code" || cls == "algorithm" {
		inner = RenderCodeContent(leaf.Content, hasInline, fontSize)
	} else {
		inner = RenderTextContent(leaf.Content, hasInline, fontSize)
	}

	if cls == "title" {
		inner = "<h1>" + inner + "</h1>"
	}
	return inner
}

func hasInlineEquationAncestor(leaf block.Leaf) bool {
	for i := 0; i < 3; i++ {
		if leaf.AncestorType(i) == "inline_equation" {
			return true
		}
	}
	return false
}

// px formats a CSS pixel value without trailing zeros.
func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
