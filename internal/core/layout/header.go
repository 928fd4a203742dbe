package layout

import (
	"regexp"
	"strings"

	"github.com/markdave123-py/Pagewise/internal/models"
)

var (
	chapterPageRe = regexp.MustCompile(`^\d{1,3}-\d{1,4}$`)
	plainPageRe   = regexp.MustCompile(`^\d{1,3}$`)
)

// isPageLabel accepts "7-5" style chapter-page labels and bare page numbers
// of up to three digits. Longer numbers are years, part numbers or totals.
func isPageLabel(s string) bool {
	if chapterPageRe.MatchString(s) {
		return true
	}
	return isPlainPage(s)
}

func isPlainPage(s string) bool {
	return plainPageRe.MatchString(s)
}

// ParseHeader reads header-band tokens in reading order. The first token that
// looks like a page number becomes the printed label; everything else,
// joined with spaces, is the section label.
func ParseHeader(tokens []models.Token) (label, section string) {
	var rest []string
	for _, line := range groupLines(tokens, DefaultOptions().LineTolerance) {
		for _, t := range line {
			text := strings.TrimSpace(substituteGlyphs(t.Text))
			if text == "" {
				continue
			}
			if label == "" && isPageLabel(text) {
				label = text
				continue
			}
			rest = append(rest, text)
		}
	}
	return label, strings.TrimSpace(strings.Join(rest, " "))
}

// cornerLabel looks for a lone page number in the right quarter of the page,
// inside the top or bottom strip. Used when the header band had none.
func cornerLabel(tokens []models.Token, height float64) string {
	if height <= 0 || len(tokens) == 0 {
		return ""
	}
	var right float64
	for _, t := range tokens {
		if t.X1 > right {
			right = t.X1
		}
	}
	for _, t := range tokens {
		text := strings.TrimSpace(substituteGlyphs(t.Text))
		if !isPlainPage(text) {
			continue
		}
		if t.X0 >= right*0.75 && (t.Top <= height*0.08 || t.Top >= height*0.92) {
			return text
		}
	}
	return ""
}
