package block

import (
	"math"
	"strings"
)

// excludedUnitTypes are never sent to translation, whether they appear as
// the block's own type or anywhere in the first three ancestors.
var excludedUnitTypes = map[string]bool{
	"code":               true,
	"algorithm":          true,
	"code_body":          true,
	"code_caption":       true,
	"interline_equation": true,
	"inline_equation":    true,
}

// Unit 翻译单元，Index 指回原始块数组
type Unit struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Text  string `json:"text"`
}

// ExtractUnits selects the translatable blocks. A block qualifies when its
// trimmed content is non-empty and neither its own type nor the first three
// ancestor types are code- or equation-related. The unit index is the
// position in the input slice so that results can be written back by index
// regardless of how many blocks were skipped.
func ExtractUnits(blocks []Leaf) []Unit {
	var units []Unit
	for idx, b := range blocks {
		content := strings.TrimSpace(b.Content)
		if content == "" {
			continue
		}
		if excludedUnitTypes[b.Type] {
			continue
		}
		excluded := false
		for i := 0; i < 3; i++ {
			if excludedUnitTypes[b.AncestorType(i)] {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		unitType := b.Type
		if unitType == "" {
			unitType = "text"
		}
		units = append(units, Unit{Index: idx, Type: unitType, Text: content})
	}
	return units
}

// Rebuild writes translated texts back into a copy of the block list, keyed
// by the unit index. Blocks without an entry keep their original content.
func Rebuild(blocks []Leaf, translations map[int]string) []Leaf {
	result := make([]Leaf, len(blocks))
	copy(result, blocks)
	for idx, text := range translations {
		if idx >= 0 && idx < len(result) {
			result[idx].Content = text
		}
	}
	return result
}

// MergeInlineEquations joins runs of consecutive blocks that sit on the same
// page with the same bbox. Inline equation content is wrapped in $...$ so
// the math survives inside the joined text; other content is concatenated
// as-is. Runs of length one pass through unchanged.
func MergeInlineEquations(blocks []Leaf) []Leaf {
	if len(blocks) == 0 {
		return nil
	}

	result := make([]Leaf, 0, len(blocks))
	for i := 0; i < len(blocks); {
		current := blocks[i]
		if current.Content == "" {
			result = append(result, current)
			i++
			continue
		}

		j := i + 1
		for j < len(blocks) {
			candidate := blocks[j]
			if candidate.Content == "" ||
				candidate.PageNumber != current.PageNumber ||
				!bboxesEqual(current.BBox, candidate.BBox) {
				break
			}
			j++
		}

		if j-i > 1 {
			var sb strings.Builder
			for _, b := range blocks[i:j] {
				if b.Type == "inline_equation" {
					sb.WriteString("$")
					sb.WriteString(b.Content)
					sb.WriteString("$")
				} else {
					sb.WriteString(b.Content)
				}
			}
			merged := current
			merged.Content = sb.String()
			result = append(result, merged)
		} else {
			result = append(result, current)
		}
		i = j
	}
	return result
}

func bboxesEqual(a, b []float64) bool {
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
