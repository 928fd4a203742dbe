package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxTextLength caps one page of normalised text, in runes.
	MaxTextLength = 100000
	// MaxTokenLength caps a single whitespace-free run, in runes.
	MaxTokenLength = 200
)

var (
	hyphenBreakRe = regexp.MustCompile(`(\w)-[ \t]*\n\s*(\w)`)
	bulletRe      = regexp.MustCompile(`(?m)^[-*•o▶►][ \t]+`)
	spaceRunRe    = regexp.MustCompile(`[ \t]+`)
)

// Normalize prepares extracted text for chunking. It never inspects content
// for threats and is independent of the scanner.
//
// Control characters other than newline and tab are removed, lines are
// trimmed, runs of blank lines collapse into one paragraph break, hyphenated
// line breaks are rejoined, bullet markers become "• ", horizontal whitespace
// collapses to one space and over-long tokens and pages are truncated.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' || r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	var paras []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(cur) > 0 {
				paras = append(paras, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paras = append(paras, strings.Join(cur, "\n"))
	}
	text = strings.Join(paras, "\n\n")

	text = hyphenBreakRe.ReplaceAllString(text, "${1}${2}")
	text = bulletRe.ReplaceAllString(text, "• ")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = capTokens(text, MaxTokenLength)

	if utf8.RuneCountInString(text) > MaxTextLength {
		text = string([]rune(text)[:MaxTextLength])
	}
	return strings.TrimSpace(text)
}

// capTokens truncates every whitespace-free run longer than max runes.
func capTokens(text string, max int) string {
	var b strings.Builder
	b.Grow(len(text))
	run := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			run = 0
			b.WriteRune(r)
			continue
		}
		run++
		if run <= max {
			b.WriteRune(r)
		}
	}
	return b.String()
}
