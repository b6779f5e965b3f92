package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// typographic replaces common symbols that the core fonts lack.
var typographic = strings.NewReplacer(
	"→", "->", "←", "<-", "⇒", "=>", "⇐", "<=", "↔", "<->",
	"✓", "[ok]", "✔", "[ok]", "✅", "[ok]", "☑", "[ok]",
	"✗", "[x]", "✘", "[x]", "❌", "[x]", "❎", "[x]",
	"⚠", "[!]", "❗", "[!]", "❓", "[?]",
	"≤", "<=", "≥", ">=", "≠", "!=", "≈", "~", "∞", "inf",
	"₂", "2", "√", "sqrt", "∑", "sum", "∈", "in", "−", "-",
	"Θ", "Theta", "θ", "theta", "Ω", "Omega", "ω", "omega",
	"Δ", "Delta", "δ", "delta", "λ", "lambda", "π", "pi", "μ", "mu",
	"α", "alpha", "β", "beta", "ε", "epsilon", "Σ", "Sigma", "σ", "sigma",
	"ⁿ", "^n", "ₙ", "n", "₁", "1", "⌈", "ceil(", "⌉", ")", "⌊", "floor(", "⌋", ")",
	"\t", "    ", "\u200b", "", "\u200d", "", "\ufe0f", "",
)

var (
	boldMarkRe    = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	headingMarkRe = regexp.MustCompile(`^\s{0,3}#{1,6}\s+`)
)

// isPictograph reports runes in the emoji blocks, which are dropped.
func isPictograph(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	}
	return false
}

// encodeText converts s to the cp1252 byte string the core fonts expect.
func encodeText(s string) (string, error) {
	s = typographic.Replace(s)
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		if isPictograph(r) {
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok || r == utf8.RuneError {
			return "", &UnsupportedRuneError{Rune: r, Text: snippet(s, i-size)}
		}
		out = append(out, b)
	}
	return string(out), nil
}

func snippet(s string, at int) string {
	start := max(0, at-20)
	end := min(len(s), at+20)
	for start > 0 && !utf8.RuneStart(s[start]) {
		start--
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}
	return s[start:end]
}

// plainLine strips inline markdown that has no meaning in the document.
func plainLine(line string) (text string, heading bool) {
	if headingMarkRe.MatchString(line) {
		line = headingMarkRe.ReplaceAllString(line, "")
		heading = true
	}
	line = boldMarkRe.ReplaceAllString(line, "$1$2")
	line = strings.ReplaceAll(line, "`", "")
	trimmed := strings.TrimLeft(line, " ")
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		indent := len(line) - len(trimmed)
		line = strings.Repeat(" ", indent) + "• " + trimmed[2:]
	}
	return strings.TrimRight(line, " "), heading
}

// excerpt caps content to maxChars and maxLines. truncated reports whether
// anything was cut.
func excerpt(content string, maxChars, maxLines int) (text string, truncated bool) {
	text = strings.ReplaceAll(content, "\r\n", "\n")
	if maxLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > maxLines {
			text = strings.Join(lines[:maxLines], "\n")
			truncated = true
		}
	}
	if maxChars > 0 && len(text) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		truncated = true
	}
	return strings.TrimRight(text, "\n"), truncated
}
