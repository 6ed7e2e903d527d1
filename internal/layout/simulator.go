package layout

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultWidthScale calibrates measured widths against what the browser
// actually renders. Raw glyph metrics consistently undershoot the CSS
// result, so all widths are multiplied by this factor.
const DefaultWidthScale = 1.8

// lineHeightRatio converts a font size into a line box height.
const lineHeightRatio = 1.2

// Layout is the result of simulating one block of text at one font size.
type Layout struct {
	Lines       []string
	LineCount   int
	TotalHeight float64
	MaxWidth    float64
}

// mathTokenRes match an inline math span anchored at the current position.
var mathTokenRes = []*regexp.Regexp{
	regexp.MustCompile(`^\\\(.*?\\\)`),
	regexp.MustCompile(`^\$.*?\$`),
	regexp.MustCompile(`^\\\[.*?\\\]`),
}

// Simulator performs greedy line wrapping with measured token widths.
type Simulator struct {
	glyphs     GlyphMeasurer
	math       *MathMeasurer
	widthScale float64
	cache      *charWidthCache
}

// NewSimulator creates a Simulator over a glyph metrics backend. widthScale
// <= 0 selects DefaultWidthScale.
func NewSimulator(glyphs GlyphMeasurer, widthScale float64) *Simulator {
	if widthScale <= 0 {
		widthScale = DefaultWidthScale
	}
	return &Simulator{
		glyphs:     glyphs,
		math:       NewMathMeasurer(glyphs),
		widthScale: widthScale,
		cache:      newCharWidthCache(),
	}
}

// ClearCache drops the per-character width cache.
func (s *Simulator) ClearCache() {
	s.cache.clear()
}

// Simulate wraps content greedily into lines of at most containerWidth and
// reports the resulting geometry. The first token of a line is always
// placed even when it alone overflows, so progress is guaranteed.
func (s *Simulator) Simulate(content string, fontSize, containerWidth float64) Layout {
	if strings.TrimSpace(content) == "" {
		return Layout{}
	}

	words := SplitWords(content)

	var lines []string
	var current []string
	currentWidth := 0.0

	for _, word := range words {
		wordWidth := s.WordWidth(word, fontSize)
		if len(current) == 0 || currentWidth+wordWidth <= containerWidth {
			current = append(current, word)
			currentWidth += wordWidth
		} else {
			lines = append(lines, strings.Join(current, ""))
			current = []string{word}
			currentWidth = wordWidth
		}
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, ""))
	}

	maxWidth := 0.0
	for _, line := range lines {
		if w := s.WordWidth(line, fontSize); w > maxWidth {
			maxWidth = w
		}
	}
	if maxWidth > containerWidth {
		maxWidth = containerWidth
	}

	lineHeight := fontSize * lineHeightRatio
	return Layout{
		Lines:       lines,
		LineCount:   len(lines),
		TotalHeight: float64(len(lines)) * lineHeight,
		MaxWidth:    maxWidth,
	}
}

// SplitWords tokenizes mixed text into wrap units: delimited math spans are
// atomic, each CJK ideograph stands alone, alphanumeric runs stay together,
// and whitespace or punctuation are individual tokens.
func SplitWords(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(text); {
		if formula := matchMathToken(text[i:]); formula != "" {
			flush()
			words = append(words, formula)
			i += len(formula)
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			flush()
			words = append(words, string(r))
		case r >= 0x4E00 && r <= 0x9FFF:
			flush()
			words = append(words, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
			words = append(words, string(r))
		}
		i += size
	}
	flush()

	return words
}

func matchMathToken(s string) string {
	for _, re := range mathTokenRes {
		if m := re.FindString(s); m != "" {
			return m
		}
	}
	return ""
}

// WordWidth measures one token. Math tokens go through the formula
// estimator; everything else is summed per character through the cache.
func (s *Simulator) WordWidth(word string, fontSize float64) float64 {
	if IsMathFormula(word) {
		return s.mathWidth(word, fontSize)
	}

	total := 0.0
	for _, r := range word {
		total += s.charWidth(r, fontSize)
	}
	return total
}

func (s *Simulator) charWidth(r rune, fontSize float64) float64 {
	size := int(fontSize)
	if w, ok := s.cache.get(r, size); ok {
		return w
	}
	width := s.glyphs.MeasureString(string(r), FamilyFor(r), float64(size)) * s.widthScale
	s.cache.put(r, size, width)
	return width
}

func (s *Simulator) mathWidth(formula string, fontSize float64) float64 {
	if w, ok := s.math.MeasureFormula(formula, fontSize); ok {
		return w * s.widthScale
	}
	return s.math.HeuristicWidth(formula, fontSize) * s.widthScale
}
