package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	listItemRe = regexp.MustCompile(`^(?:•|\d+[.)])\s+`)
	// end of a sentence: terminal punctuation, optional closing quotes or
	// brackets, then whitespace
	sentenceEndRe = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+`)
)

// piece is one semantic unit of a page and the separator that joined it to
// the text before it in the page.
type piece struct {
	text string
	sep  string
}

func runes(s string) int { return utf8.RuneCountInString(s) }

// splitUnits breaks normalised page text into units no longer than ceiling,
// preferring paragraphs, then list items, then sentences, then words.
func splitUnits(text string, ceiling int) []piece {
	var out []piece
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if runes(para) <= ceiling {
			out = append(out, piece{text: para, sep: "\n\n"})
			continue
		}

		var parts []piece
		if listItemRe.MatchString(para) {
			for _, item := range listItems(para) {
				parts = append(parts, fitSentences(item, "\n", ceiling)...)
			}
		} else {
			parts = fitSentences(para, " ", ceiling)
		}
		if len(parts) > 0 {
			parts[0].sep = "\n\n"
		}
		out = append(out, parts...)
	}
	return out
}

// listItems splits a list paragraph at every line that opens with a marker.
// Continuation lines stay with their item.
func listItems(para string) []string {
	var items []string
	var cur []string
	for _, line := range strings.Split(para, "\n") {
		if listItemRe.MatchString(line) && len(cur) > 0 {
			items = append(items, strings.Join(cur, "\n"))
			cur = nil
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		items = append(items, strings.Join(cur, "\n"))
	}
	return items
}

// fitSentences returns s as a single piece when it fits, otherwise its
// sentences, falling back to word groups for any sentence still too long.
// The first piece carries sep; later ones are joined with a space.
func fitSentences(s, sep string, ceiling int) []piece {
	if runes(s) <= ceiling {
		return []piece{{text: s, sep: sep}}
	}
	var out []piece
	for _, sentence := range sentences(s) {
		if runes(sentence) <= ceiling {
			out = append(out, piece{text: sentence, sep: " "})
			continue
		}
		for _, w := range wordGroups(sentence, ceiling) {
			out = append(out, piece{text: w, sep: " "})
		}
	}
	if len(out) > 0 {
		out[0].sep = sep
	}
	return out
}

// sentences cuts s after every sentence end, dropping the whitespace between.
func sentences(s string) []string {
	var out []string
	start := 0
	for _, m := range sentenceEndRe.FindAllStringIndex(s, -1) {
		if part := strings.TrimSpace(s[start:m[1]]); part != "" {
			out = append(out, part)
		}
		start = m[1]
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		out = append(out, part)
	}
	return out
}

// wordGroups packs whole words into groups of at most ceiling runes. A word
// longer than the ceiling on its own is cut, which Normalize's token cap
// makes unreachable for any sensible ceiling.
func wordGroups(s string, ceiling int) []string {
	var out []string
	var cur strings.Builder
	n := 0
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, w := range strings.Fields(s) {
		for runes(w) > ceiling {
			flush()
			r := []rune(w)
			out = append(out, string(r[:ceiling]))
			w = string(r[ceiling:])
		}
		if w == "" {
			continue
		}
		wl := runes(w)
		if n > 0 && n+1+wl > ceiling {
			flush()
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(w)
		n += wl
	}
	flush()
	return out
}
