package render

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/layout"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
)

// tableFontScale enlarges the base optimized size: the optimizer assumes
// plain wrapped text, but table cells break lines on their own so the
// simulated height runs high and the raw size comes out too small.
const tableFontScale = 1.5

const (
	tableMinFontSize = 6.0
	tableMaxFontSize = 48.0
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// TableRenderer fits an extracted HTML table into its block box by
// injecting a computed font size and the matching font family.
type TableRenderer struct {
	opt *layout.Optimizer
}

// NewTableRenderer 创建表格渲染器，复用外部传入的字号优化器。
func NewTableRenderer(opt *layout.Optimizer) *TableRenderer {
	return &TableRenderer{opt: opt}
}

// Render returns the table block's inner HTML. Non-table payloads pass
// through wrapped in a plain div.
func (t *TableRenderer) Render(leaf block.Leaf, scale float64) string {
	tableHTML := strings.TrimSpace(leaf.HTML)
	if tableHTML == "" {
		return "<div></div>"
	}
	if !strings.HasPrefix(tableHTML, "<table") {
		return fmt.Sprintf("<div>%s</div>", tableHTML)
	}

	baseSize := t.opt.OptimalSize(leaf.BBox, tableHTML, scale)
	fontSize := baseSize * tableFontScale
	if fontSize < tableMinFontSize {
		fontSize = tableMinFontSize
	}
	if fontSize > tableMaxFontSize {
		fontSize = tableMaxFontSize
	}

	logger.Debug("table font size fitted",
		logger.Float64("base", baseSize),
		logger.Float64("final", fontSize))

	family := detectTableFontFamily(tableHTML)
	styled := applyTableStyles(tableHTML, fontSize, family)

	return fmt.Sprintf(`<div style="width:100%%; height:100%%; padding:2px; box-sizing:border-box; display:flex; align-items:center; justify-content:center; overflow:hidden;">%s</div>`, styled)
}

// detectTableFontFamily picks the family for the first visible character
// so the rendered font matches the one the widths were measured with.
func detectTableFontFamily(tableHTML string) string {
	textOnly := unescapeEntities(htmlTagRe.ReplaceAllString(tableHTML, ""))
	for _, r := range textOnly {
		if unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return layout.FamilyFor(r)
		}
	}
	return layout.DefaultFamily()
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

func unescapeEntities(s string) string {
	return entityReplacer.Replace(s)
}

// applyTableStyles 给表格注入内联字体样式，确保与测量一致。
func applyTableStyles(tableHTML string, fontSize float64, family string) string {
	styleAttr := fmt.Sprintf(`style="font-size: %spx; font-family: '%s', sans-serif; line-height: 1.0;"`,
		px(fontSize), family)

	if strings.Contains(tableHTML, "<table ") {
		return strings.Replace(tableHTML, "<table ", "<table "+styleAttr+" ", 1)
	}
	if strings.HasPrefix(tableHTML, "<table>") {
		return strings.Replace(tableHTML, "<table>", "<table "+styleAttr+">", 1)
	}
	return tableHTML
}
