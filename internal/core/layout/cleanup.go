package layout

import (
	"regexp"
	"strings"
)

// Glyph placeholders emitted for fonts without a usable ToUnicode map.
var glyphReplacer = strings.NewReplacer(
	"(cid:121)", "•",
	"(cid:132)", "■",
	"(cid:84)", "™",
	"(cid:146)", "'",
	"(cid:147)", "“",
	"(cid:148)", "”",
	"(cid:150)", "–",
	"(cid:151)", "—",
	"(cid:160)", " ",
	"(cid:183)", "·",
)

var (
	unknownGlyphRe = regexp.MustCompile(`\(cid:\d+\)`)
	hyphenBreakRe  = regexp.MustCompile(`(\w)-[ \t]*\n\s*(\w)`)
)

// Watermark and continuation lines, compared lowercased and trimmed.
var boilerplateLines = map[string]struct{}{
	"downloaded from www.manualslib.com manuals search engine": {},
	"– continued –": {},
}

func substituteGlyphs(s string) string {
	return unknownGlyphRe.ReplaceAllString(glyphReplacer.Replace(s), "")
}

// RepairHyphenation joins words split across a line break ("assem-\nbly").
func RepairHyphenation(s string) string {
	return hyphenBreakRe.ReplaceAllString(s, "${1}${2}")
}

// CleanText substitutes glyph placeholders, repairs hyphenation and strips
// boilerplate lines from reconstructed page text.
func CleanText(s string) string {
	s = RepairHyphenation(substituteGlyphs(s))

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if _, ok := boilerplateLines[strings.ToLower(strings.TrimSpace(l))]; ok {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
