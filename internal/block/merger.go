package block

import (
	"math"
	"strings"
)

// bboxEpsilon is the per-coordinate tolerance when comparing parent bboxes.
const bboxEpsilon = 1e-5

// nonMergeableTypes never coalesce with neighbors, whatever their geometry.
var nonMergeableTypes = map[string]bool{
	"image":              true,
	"table":              true,
	"interline_equation": true,
	"block_page":         true,
}

// Merge coalesces consecutive blocks that share a type and an immediate
// parent bbox into one block whose content is the space-joined run.
// Whitespace-only text blocks are dropped first. The flushed block takes the
// parent bbox as its own bbox and sheds the ancestor bboxes, so merged
// output carries exactly one bbox per block. Order is preserved and the
// operation is idempotent.
func Merge(blocks []Leaf) []Leaf {
	if len(blocks) == 0 {
		return nil
	}

	filtered := make([]Leaf, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" && strings.TrimSpace(b.Content) == "" {
			continue
		}
		filtered = append(filtered, b)
	}
	if len(filtered) == 0 {
		return nil
	}

	result := make([]Leaf, 0, len(filtered))
	current := filtered[0]
	var content strings.Builder
	content.WriteString(current.Content)

	flush := func() {
		current.Content = content.String()
		if pb := current.ParentBBox(); pb != nil {
			current.BBox = pb
		}
		if len(current.Ancestors) > 0 {
			stripped := make([]Ancestor, len(current.Ancestors))
			for i, a := range current.Ancestors {
				stripped[i] = Ancestor{Type: a.Type}
			}
			current.Ancestors = stripped
		}
		result = append(result, current)
	}

	for _, next := range filtered[1:] {
		if canMerge(&current, &next) {
			content.WriteString(" ")
			content.WriteString(next.Content)
			continue
		}
		flush()
		current = next
		content.Reset()
		content.WriteString(next.Content)
	}
	flush()

	return result
}

func canMerge(current, next *Leaf) bool {
	if nonMergeableTypes[current.Type] || nonMergeableTypes[next.Type] {
		return false
	}
	if next.Type != current.Type {
		return false
	}
	a, b := current.ParentBBox(), next.ParentBBox()
	if len(a) != 4 || len(b) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if math.Abs(a[i]-b[i]) >= bboxEpsilon {
			return false
		}
	}
	return true
}
