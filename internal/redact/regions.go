// Package redact selects the regions of the original PDF that carry
// translated content and paints them out into a censor mask layer.
package redact

import (
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/block"
)

// Rect is an axis-aligned box in PDF points, top-left origin.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// targetTypes are the block types whose original rendering gets painted
// over. Images keep their pixels, so they are not targets.
var targetTypes = map[string]bool{
	"text":               true,
	"table":              true,
	"interline_equation": true,
	"inline_equation":    true,
}

// codeTypes mark blocks whose source text must survive untouched.
var codeTypes = map[string]bool{
	"code":         true,
	"algorithm":    true,
	"code_body":    true,
	"code_caption": true,
}

// SelectRegions 按 0-based 页号收集需要涂白的区域。
// 代码相关的文本块保留原样，不参与涂白。
func SelectRegions(blocks []block.Leaf) (map[int][]Rect, int) {
	pageRects := make(map[int][]Rect)
	skipped := 0

	for _, b := range blocks {
		if !targetTypes[b.Type] {
			skipped++
			continue
		}
		if b.Type == "text" && isCodeRelated(b) {
			skipped++
			continue
		}
		if len(b.BBox) != 4 || b.PageNumber <= 0 {
			continue
		}

		pageIdx := b.PageNumber - 1
		pageRects[pageIdx] = append(pageRects[pageIdx], Rect{
			X0: b.BBox[0], Y0: b.BBox[1], X1: b.BBox[2], Y1: b.BBox[3],
		})
	}

	return pageRects, skipped
}

func isCodeRelated(b block.Leaf) bool {
	if codeTypes[b.Type] {
		return true
	}
	for i := 0; i < 3; i++ {
		if codeTypes[b.AncestorType(i)] {
			return true
		}
	}
	return false
}
