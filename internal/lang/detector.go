// Package lang decides which texts can skip translation by voting over
// Unicode script ranges.
package lang

import (
	"strings"

	"golang.org/x/text/language"
)

type unicodeRange struct {
	start, end rune
}

var cjkRanges = []unicodeRange{
	{0x4E00, 0x9FFF},   // CJK unified ideographs
	{0x3400, 0x4DBF},   // extension A
	{0x20000, 0x2A6DF}, // extension B
	{0x2A700, 0x2B73F}, // extension C
	{0x2B740, 0x2B81F}, // extension D
	{0x2B820, 0x2CEAF}, // extension E
	{0x2CEB0, 0x2EBEF}, // extension F
	{0x3007, 0x3007},   // 〇
}

var latinRanges = []unicodeRange{
	{0x0041, 0x005A},
	{0x0061, 0x007A},
}

var latinExtRanges = []unicodeRange{
	{0x0041, 0x005A},
	{0x0061, 0x007A},
	{0x00C0, 0x00FF}, // Latin-1 supplement letters
}

// languageRanges maps a language code to the Unicode ranges its writing
// system occupies.
var languageRanges = map[string][]unicodeRange{
	"zh":    cjkRanges,
	"zh-cn": cjkRanges,
	"zh-tw": cjkRanges,
	"ja": {
		{0x4E00, 0x9FFF}, // kanji
		{0x3040, 0x309F}, // hiragana
		{0x30A0, 0x30FF}, // katakana
		{0x31F0, 0x31FF}, // katakana phonetic extensions
		{0xFF66, 0xFF9F}, // halfwidth katakana
	},
	"ko": {
		{0xAC00, 0xD7AF}, // hangul syllables
		{0x1100, 0x11FF}, // hangul jamo
		{0x3130, 0x318F}, // hangul compatibility jamo
	},
	"en": latinRanges,
	"fr": latinExtRanges,
	"de": latinExtRanges,
	"es": latinExtRanges,
	"ru": {
		{0x0400, 0x04FF},
		{0x0500, 0x052F},
	},
}

// displayNames maps a language code to the name used inside translation
// prompts.
var displayNames = map[string]string{
	"zh":    "简体中文",
	"zh-cn": "简体中文",
	"zh-tw": "繁体中文",
	"en":    "English",
	"ja":    "日本語",
	"ko":    "한국어",
	"fr":    "français",
	"de":    "Deutsch",
	"es":    "español",
	"ru":    "русский",
}

// DisplayName returns a human-readable name for the language code, falling
// back to the canonical BCP 47 form for codes outside the table.
func DisplayName(code string) string {
	if name, ok := displayNames[strings.ToLower(code)]; ok {
		return name
	}
	if tag, err := language.Parse(code); err == nil {
		return tag.String()
	}
	return code
}

func inRanges(r rune, ranges []unicodeRange) bool {
	for _, rg := range ranges {
		if r >= rg.start && r <= rg.end {
			return true
		}
	}
	return false
}

func inAnyLanguage(r rune) bool {
	for _, ranges := range languageRanges {
		if inRanges(r, ranges) {
			return true
		}
	}
	return false
}

// isAlreadyTarget reports whether target-language characters make up more
// than half of the meaningful characters. Punctuation, digits and symbols
// that belong to no writing system are ignored entirely.
func isAlreadyTarget(text, target string) bool {
	ranges, ok := languageRanges[strings.ToLower(target)]
	if !ok {
		return false
	}

	targetCount, meaningful := 0, 0
	for _, r := range text {
		if !inAnyLanguage(r) {
			continue
		}
		meaningful++
		if inRanges(r, ranges) {
			targetCount++
		}
	}
	if meaningful == 0 {
		return false
	}
	return float64(targetCount)/float64(meaningful) > 0.5
}

// hasMeaningfulLatin reports whether text contains a run of at least three
// consecutive ASCII letters.
func hasMeaningfulLatin(text string) bool {
	run := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// hasAnyTextContent reports whether text contains characters from any known
// writing system or a meaningful Latin run.
func hasAnyTextContent(text string) bool {
	for _, r := range text {
		if inAnyLanguage(r) {
			return true
		}
	}
	return hasMeaningfulLatin(text)
}

// ShouldSkip decides whether text needs no translation toward target and
// returns the reason when it does.
func ShouldSkip(text, target string) (bool, string) {
	stripped := strings.TrimSpace(text)

	if stripped == "" {
		return true, "empty text"
	}
	if !hasAnyTextContent(stripped) {
		return true, "no meaningful text content"
	}
	if isAlreadyTarget(stripped, target) {
		return true, "already in " + target + " (unicode ratio > 50%)"
	}
	lower := strings.ToLower(target)
	if (lower == "en" || lower == "english") && !hasMeaningfulLatin(stripped) {
		return true, "no meaningful english content (continuous letters < 3)"
	}
	return false, ""
}
