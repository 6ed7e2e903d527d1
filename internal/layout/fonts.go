// Package layout simulates text layout and converges on the largest font
// size whose rendered height fits a block's bounding box.
package layout

import "sync"

// Font family names, shared between width measurement and the CSS emitted
// by the renderer so both see the same glyphs.
const (
	FamilyMath   = "DejaVuSans"
	FamilyScript = "NotoSans"
	FamilyCJK    = "NotoSansCJK"
)

// GlyphMeasurer measures rendered text width. Implementations are expected
// to be cheap to call; the simulator caches per-character results on top.
type GlyphMeasurer interface {
	// MeasureString returns the width in px of text rendered in the given
	// font family at the given size.
	MeasureString(text, family string, size float64) float64
}

// mathPunct are ASCII characters rendered with the math font alongside
// letters, digits and Greek.
const mathPunct = `+-=<>/*()[]{}|\^~!@#$%^&*_.,;:?`

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF,
		r >= 0x3400 && r <= 0x4DBF,
		r >= 0x20000 && r <= 0x2A6DF,
		r >= 0x2A700 && r <= 0x2B73F,
		r >= 0x2B740 && r <= 0x2B81F,
		r >= 0x2B820 && r <= 0x2CEAF,
		r >= 0xF900 && r <= 0xFAFF,
		r >= 0x2F800 && r <= 0x2FA1F:
		return true
	}
	return false
}

func isLatinAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// FamilyFor picks the font family for a character: CJK ideographs go to the
// CJK face, Latin/digits/Greek/math symbols to the math face, everything
// else (Cyrillic, Arabic, ...) to the general script face.
func FamilyFor(r rune) string {
	if isCJK(r) {
		return FamilyCJK
	}
	if isLatinAlnum(r) ||
		(r >= 0x0370 && r <= 0x03FF) || // Greek
		(r >= 0x2200 && r <= 0x22FF) || // math operators
		(r >= 0x27C0 && r <= 0x27EF) { // misc math symbols A
		return FamilyMath
	}
	for _, p := range mathPunct {
		if r == p {
			return FamilyMath
		}
	}
	return FamilyScript
}

// DefaultFamily is used when a block has no content to classify.
func DefaultFamily() string {
	return FamilyCJK
}

// asciiAdvance maps printable ASCII to advance widths in em, approximating
// the DejaVuSans metrics.
var asciiAdvance = map[rune]float64{
	' ': 0.318, '!': 0.401, '"': 0.460, '#': 0.838, '$': 0.636,
	'%': 0.950, '&': 0.780, '\'': 0.275, '(': 0.390, ')': 0.390,
	'*': 0.500, '+': 0.838, ',': 0.318, '-': 0.361, '.': 0.318,
	'/': 0.337, '0': 0.636, '1': 0.636, '2': 0.636, '3': 0.636,
	'4': 0.636, '5': 0.636, '6': 0.636, '7': 0.636, '8': 0.636,
	'9': 0.636, ':': 0.337, ';': 0.337, '<': 0.838, '=': 0.838,
	'>': 0.838, '?': 0.531, '@': 1.000, 'A': 0.684, 'B': 0.686,
	'C': 0.698, 'D': 0.770, 'E': 0.632, 'F': 0.575, 'G': 0.775,
	'H': 0.752, 'I': 0.295, 'J': 0.295, 'K': 0.656, 'L': 0.557,
	'M': 0.863, 'N': 0.748, 'O': 0.787, 'P': 0.603, 'Q': 0.787,
	'R': 0.695, 'S': 0.635, 'T': 0.611, 'U': 0.732, 'V': 0.684,
	'W': 0.989, 'X': 0.685, 'Y': 0.611, 'Z': 0.685, '[': 0.390,
	'\\': 0.337, ']': 0.390, '^': 0.838, '_': 0.500, '`': 0.500,
	'a': 0.613, 'b': 0.635, 'c': 0.550, 'd': 0.635, 'e': 0.615,
	'f': 0.352, 'g': 0.635, 'h': 0.634, 'i': 0.278, 'j': 0.278,
	'k': 0.579, 'l': 0.278, 'm': 0.974, 'n': 0.634, 'o': 0.612,
	'p': 0.635, 'q': 0.635, 'r': 0.411, 's': 0.521, 't': 0.392,
	'u': 0.634, 'v': 0.592, 'w': 0.818, 'x': 0.592, 'y': 0.592,
	'z': 0.525, '{': 0.636, '|': 0.337, '}': 0.636, '~': 0.838,
}

// TableMeasurer is the builtin GlyphMeasurer backed by static advance-width
// tables. It keeps width simulation usable without shelling out to a font
// rasterizer; swap in a real metrics service for exact output.
type TableMeasurer struct{}

// NewTableMeasurer returns the builtin table-backed measurer.
func NewTableMeasurer() *TableMeasurer {
	return &TableMeasurer{}
}

// MeasureString sums per-rune advances. CJK glyphs are treated as full-width
// squares; unknown glyphs fall back to a typical letter advance.
func (m *TableMeasurer) MeasureString(text, family string, size float64) float64 {
	total := 0.0
	for _, r := range text {
		total += m.runeAdvance(r, family) * size
	}
	return total
}

func (m *TableMeasurer) runeAdvance(r rune, family string) float64 {
	if family == FamilyCJK || isCJK(r) {
		return 1.0
	}
	if w, ok := asciiAdvance[r]; ok {
		return w
	}
	if r >= 0x0370 && r <= 0x03FF { // Greek letters run close to Latin
		return 0.62
	}
	if r >= 0x2200 && r <= 0x22FF { // math operators
		return 0.84
	}
	return 0.60
}

// charWidthCache caches measured widths keyed by character and integer
// size, shared across simulations.
type charWidthCache struct {
	mu    sync.Mutex
	cache map[charKey]float64
}

type charKey struct {
	char rune
	size int
}

func newCharWidthCache() *charWidthCache {
	return &charWidthCache{cache: make(map[charKey]float64)}
}

func (c *charWidthCache) get(char rune, size int) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.cache[charKey{char, size}]
	return w, ok
}

func (c *charWidthCache) put(char rune, size int, width float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[charKey{char, size}] = width
}

// Clear drops all cached widths.
func (c *charWidthCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[charKey]float64)
}
