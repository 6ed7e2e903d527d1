package layout

import (
	"regexp"
	"strings"
)

// latexToUnicode substitutes common LaTeX macros with the single Unicode
// glyph they render as, so a cleaned formula can be measured like plain
// text.
var latexToUnicode = []struct{ latex, unicode string }{
	// Greek letters
	{`\alpha`, "α"}, {`\beta`, "β"}, {`\gamma`, "γ"}, {`\delta`, "δ"},
	{`\epsilon`, "ε"}, {`\zeta`, "ζ"}, {`\eta`, "η"}, {`\theta`, "θ"},
	{`\iota`, "ι"}, {`\kappa`, "κ"}, {`\lambda`, "λ"}, {`\mu`, "μ"},
	{`\nu`, "ν"}, {`\xi`, "ξ"}, {`\pi`, "π"}, {`\rho`, "ρ"},
	{`\sigma`, "σ"}, {`\tau`, "τ"}, {`\upsilon`, "υ"}, {`\phi`, "φ"},
	{`\chi`, "χ"}, {`\psi`, "ψ"}, {`\omega`, "ω"},
	{`\Gamma`, "Γ"}, {`\Delta`, "Δ"}, {`\Theta`, "Θ"}, {`\Lambda`, "Λ"},
	{`\Xi`, "Ξ"}, {`\Pi`, "Π"}, {`\Sigma`, "Σ"}, {`\Upsilon`, "Υ"},
	{`\Phi`, "Φ"}, {`\Psi`, "Ψ"}, {`\Omega`, "Ω"},
	// operators
	{`\sum`, "∑"}, {`\int`, "∫"}, {`\prod`, "∏"}, {`\partial`, "∂"},
	{`\nabla`, "∇"}, {`\infty`, "∞"}, {`\pm`, "±"}, {`\mp`, "∓"},
	{`\times`, "×"}, {`\div`, "÷"}, {`\cdot`, "·"},
	// relations
	{`\neq`, "≠"}, {`\leq`, "≤"}, {`\geq`, "≥"}, {`\approx`, "≈"},
	{`\equiv`, "≡"}, {`\propto`, "∝"}, {`\sim`, "∼"}, {`\simeq`, "≃"},
	{`\ll`, "≪"}, {`\gg`, "≫"}, {`\subset`, "⊂"}, {`\supset`, "⊃"},
	{`\subseteq`, "⊆"}, {`\supseteq`, "⊇"}, {`\in`, "∈"}, {`\ni`, "∋"},
	// arrows
	{`\rightarrow`, "→"}, {`\leftarrow`, "←"}, {`\Rightarrow`, "⇒"},
	{`\Leftarrow`, "⇐"}, {`\leftrightarrow`, "↔"}, {`\Leftrightarrow`, "⇔"},
	// set operators
	{`\cup`, "∪"}, {`\cap`, "∩"}, {`\setminus`, "∖"},
	// misc
	{`\forall`, "∀"}, {`\exists`, "∃"}, {`\emptyset`, "∅"}, {`\angle`, "∠"},
	{`\triangle`, "△"}, {`\parallel`, "∥"}, {`\perp`, "⊥"},
}

var (
	delimiterRe  = regexp.MustCompile(`^\\\(|\\\)$|^\$|\$$|^\\\[|\\\]$`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	mathFormulaRes = []*regexp.Regexp{
		regexp.MustCompile(`^\\\(.*\\\)$`),
		regexp.MustCompile(`^\$.*\$$`),
		regexp.MustCompile(`^\\\[.*\\\]$`),
	}
)

// CleanFormula strips the inline-math delimiters, converts known LaTeX
// macros to their Unicode glyphs and collapses whitespace.
func CleanFormula(formula string) string {
	clean := delimiterRe.ReplaceAllString(formula, "")
	for _, sub := range latexToUnicode {
		clean = strings.ReplaceAll(clean, sub.latex, sub.unicode)
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(clean, " "))
}

// IsMathFormula reports whether text is a complete delimited math span.
func IsMathFormula(text string) bool {
	for _, re := range mathFormulaRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
