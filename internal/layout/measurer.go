package layout

import (
	"strings"
	"unicode"
)

// MathMeasurer estimates the rendered width of a LaTeX formula. Rendered
// math is denser than the cleaned glyph string suggests, so the measured
// width is compensated by detected complexity features and clamped.
type MathMeasurer struct {
	glyphs GlyphMeasurer
}

// NewMathMeasurer creates a MathMeasurer on top of a glyph metrics backend.
// A nil backend restricts it to the heuristic path.
func NewMathMeasurer(glyphs GlyphMeasurer) *MathMeasurer {
	return &MathMeasurer{glyphs: glyphs}
}

// MeasureFormula returns the estimated width of formula at the given font
// size, or false when no metrics backend is available or the formula
// cleans down to nothing.
func (m *MathMeasurer) MeasureFormula(formula string, fontSize float64) (float64, bool) {
	if m.glyphs == nil {
		return 0, false
	}
	clean := CleanFormula(formula)
	if clean == "" {
		return 0, false
	}

	width := m.glyphs.MeasureString(clean, FamilyMath, fontSize)
	width = applyComplexityCompensation(width, clean)
	return clampFormulaWidth(width, fontSize, 2), true
}

// HeuristicWidth estimates formula width without any metrics backend.
func (m *MathMeasurer) HeuristicWidth(formula string, fontSize float64) float64 {
	clean := CleanFormula(formula)
	if clean == "" {
		return fontSize * 2
	}

	width := float64(len([]rune(clean))) * fontSize * 0.5

	complexity := 1.0
	if strings.ContainsAny(clean, "^_") {
		complexity *= 1.0
	}
	if strings.Contains(clean, `\frac`) || strings.Contains(clean, "/") {
		complexity *= 1.1
	}
	if strings.ContainsAny(clean, "∑∫∏") {
		complexity *= 1.2
	}
	if strings.Contains(clean, `\sqrt`) {
		complexity *= 1.1
	}

	return clampFormulaWidth(width*complexity, fontSize, 3)
}

// applyComplexityCompensation scales a raw glyph-string width by the base
// 0.5 factor and the feature factors observed to track real MathJax output.
func applyComplexityCompensation(width float64, clean string) float64 {
	factor := 1.0

	if strings.ContainsAny(clean, "^_") {
		factor *= 0.7 // superscripts and subscripts stack vertically
	}
	if strings.Contains(clean, `\frac`) || strings.Contains(clean, "/") {
		factor *= 0.9
	}
	if strings.ContainsAny(clean, "∑∫∏∬∭∮") {
		factor *= 1.15 // large operators widen the line
	}
	if strings.Contains(clean, `\sqrt`) {
		factor *= 0.95
	}
	if (strings.Contains(clean, "∫") || strings.Contains(clean, "∑")) &&
		strings.ContainsAny(clean, "_^") {
		factor *= 0.85 // limits sit above and below, not beside
	}
	if simpleCharRatio(clean) > 0.8 {
		factor *= 0.7
	}
	if maxBracketDepth(clean) >= 2 {
		factor *= 1.1
	}

	return width * 0.5 * factor
}

// simpleCharRatio is the share of plain alphanumeric and basic operator
// characters in the cleaned formula.
func simpleCharRatio(clean string) float64 {
	runes := []rune(clean)
	if len(runes) == 0 {
		return 0
	}
	simple := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("+-=()", r) {
			simple++
		}
	}
	return float64(simple) / float64(len(runes))
}

func maxBracketDepth(text string) int {
	depth, maxDepth := 0, 0
	for _, r := range text {
		switch r {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	return maxDepth
}

func clampFormulaWidth(width, fontSize, minFactor float64) float64 {
	min := fontSize * minFactor
	max := fontSize * 25
	if width < min {
		return min
	}
	if width > max {
		return max
	}
	return width
}
