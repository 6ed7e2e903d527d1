package render

import (
	"fmt"
	"regexp"
	"strings"
)

// htmlEscaper escapes text for HTML body context. Quotes are left alone
// because escaped content never lands inside an attribute value.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeText 安全转义 HTML 普通文本
func EscapeText(text string) string {
	return htmlEscaper.Replace(text)
}

// inlineMathRe matches the inline math spans MathJax will pick up.
var inlineMathRe = regexp.MustCompile(`\\\(.*?\\\)|\$.*?\$`)

// RenderMixedMathContent 渲染混合数学内容。只有真正的公式片段交给
// MathJax，普通文本正常转义显示。
func RenderMixedMathContent(content string) string {
	var b strings.Builder
	lastEnd := 0

	for _, loc := range inlineMathRe.FindAllStringIndex(content, -1) {
		if loc[0] > lastEnd {
			b.WriteString(EscapeText(content[lastEnd:loc[0]]))
		}
		b.WriteString(`<span class="math-inline">`)
		b.WriteString(content[loc[0]:loc[1]])
		b.WriteString(`</span>`)
		lastEnd = loc[1]
	}
	if lastEnd < len(content) {
		b.WriteString(EscapeText(content[lastEnd:]))
	}

	return b.String()
}

// RenderTextContent renders a text block body at the given font size.
// When any ancestor marks the block as an inline equation, math spans
// inside the content are preserved for MathJax.
func RenderTextContent(content string, hasInlineEquation bool, fontSize float64) string {
	style := fmt.Sprintf(
		"font-size:%spx; word-wrap: break-word; overflow-wrap: break-word; white-space: normal; hyphens: auto",
		px(fontSize))

	if hasInlineEquation {
		inner := RenderMixedMathContent(strings.TrimSpace(content))
		return fmt.Sprintf(`<div style="%s">%s</div>`, style, inner)
	}
	return fmt.Sprintf(`<div style="%s">%s</div>`, style, EscapeText(content))
}

// RenderCodeContent 渲染代码/算法块，保留 pre 格式
func RenderCodeContent(content string, hasInlineEquation bool, fontSize float64) string {
	style := fmt.Sprintf(
		"font-size:%spx; white-space: pre; word-wrap: normal; overflow-wrap: normal; line-height: 1.2",
		px(fontSize))

	if hasInlineEquation {
		inner := RenderMixedMathContent(strings.TrimSpace(content))
		return fmt.Sprintf(`<div style="%s">%s</div>`, style, inner)
	}
	return fmt.Sprintf(`<div style="%s">%s</div>`, style, EscapeText(content))
}
