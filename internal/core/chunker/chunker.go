// Package chunker turns reconstructed pages into bounded, overlapping chunks
// that remember which pages, printed pages and sections they came from.
package chunker

import (
	"regexp"
	"sort"
	"strings"

	"github.com/markdave123-py/Pagewise/internal/core/sanitizer"
	"github.com/markdave123-py/Pagewise/internal/models"
)

const (
	DefaultChunkSize = 1500
	DefaultOverlap   = 400
	DefaultMaxChunks = 10000
)

// Chunk is one bounded span of normalised text.
type Chunk struct {
	Index        int      `json:"chunk_index"`
	Text         string   `json:"text"`
	CharCount    int      `json:"char_count"`
	Pages        []int    `json:"pages"`
	PrintedPages []string `json:"printed_pages"`
	Sections     []string `json:"chapters"`
}

type Chunker struct {
	size      int
	overlap   int
	maxChunks int
	scanner   *sanitizer.Scanner
}

type Option func(*Chunker)

func WithChunkSize(n int) Option { return func(c *Chunker) { c.size = n } }
func WithOverlap(n int) Option   { return func(c *Chunker) { c.overlap = n } }
func WithMaxChunks(n int) Option { return func(c *Chunker) { c.maxChunks = n } }

func WithScanner(s *sanitizer.Scanner) Option { return func(c *Chunker) { c.scanner = s } }

func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:      DefaultChunkSize,
		overlap:   DefaultOverlap,
		maxChunks: DefaultMaxChunks,
	}
	for _, o := range opts {
		o(c)
	}
	if c.size <= 0 {
		c.size = DefaultChunkSize
	}
	if c.overlap < 0 || c.overlap >= c.size {
		c.overlap = 0
	}
	if c.maxChunks <= 0 {
		c.maxChunks = DefaultMaxChunks
	}
	if c.scanner == nil {
		c.scanner = sanitizer.NewScanner()
	}
	return c
}

type origin struct {
	page    int
	printed string
	section string
}

type unit struct {
	piece
	origin
}

// member records which unit produced which byte range of the open chunk.
type member struct {
	start, end int
	origin
}

// Chunk normalises and scans every page, then packs the units greedily.
// A threat in any page aborts with a *sanitizer.ThreatError before any chunk
// is produced.
func (c *Chunker) Chunk(pages []models.Page) ([]Chunk, error) {
	ordered := make([]models.Page, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var units []unit
	for _, p := range ordered {
		text := sanitizer.Normalize(p.Text)
		if text == "" {
			continue
		}
		if err := c.scanner.Check(text, p.Index); err != nil {
			return nil, err
		}
		o := origin{page: p.Index, printed: p.PrintedLabel, section: p.Section}
		for _, pc := range splitUnits(text, c.size) {
			units = append(units, unit{piece: pc, origin: o})
		}
	}
	return c.pack(units), nil
}

func (c *Chunker) pack(units []unit) []Chunk {
	var (
		out     []Chunk
		text    string
		members []member
	)
	emit := func() bool {
		if text == "" {
			return true
		}
		out = append(out, build(len(out), text, members))
		return len(out) < c.maxChunks
	}
	put := func(sep string, u unit) {
		if text != "" {
			text += sep
		}
		start := len(text)
		text += u.text
		members = append(members, member{start: start, end: len(text), origin: u.origin})
	}

	for _, u := range units {
		if text == "" {
			put("", u)
			continue
		}
		if runes(text)+runes(u.sep)+runes(u.text) <= c.size {
			put(u.sep, u)
			continue
		}
		if !emit() {
			return out
		}

		seed, at := c.seed(text)
		var carried []member
		if seed != "" && runes(seed)+runes(u.sep)+runes(u.text) <= c.size {
			for _, m := range members {
				if m.end > at {
					carried = append(carried, member{start: max(m.start, at) - at, end: m.end - at, origin: m.origin})
				}
			}
		} else {
			seed = ""
		}
		text, members = seed, carried
		put(u.sep, u)
	}
	emit()
	return out
}

var boundaryRe = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+|\n\n`)

// seed picks the overlap for the next chunk: the longest suffix of text no
// longer than the overlap that starts right after a sentence or paragraph
// boundary. It returns "" when no such boundary exists.
func (c *Chunker) seed(text string) (string, int) {
	if c.overlap <= 0 {
		return "", 0
	}
	for _, m := range boundaryRe.FindAllStringIndex(text, -1) {
		at := m[1]
		if at >= len(text) {
			break
		}
		if runes(text[at:]) <= c.overlap {
			return text[at:], at
		}
	}
	return "", 0
}

func build(index int, text string, members []member) Chunk {
	ch := Chunk{Index: index, Text: text, CharCount: runes(text)}
	seenPage := map[int]bool{}
	seenPrinted := map[string]bool{}
	seenSection := map[string]bool{}
	for _, m := range members {
		if !seenPage[m.page] {
			seenPage[m.page] = true
			ch.Pages = append(ch.Pages, m.page)
		}
		if m.printed != "" && !seenPrinted[m.printed] {
			seenPrinted[m.printed] = true
			ch.PrintedPages = append(ch.PrintedPages, m.printed)
		}
		if m.section != "" && !seenSection[m.section] {
			seenSection[m.section] = true
			ch.Sections = append(ch.Sections, m.section)
		}
	}
	sort.Ints(ch.Pages)
	return ch
}

// Texts returns the chunk texts in index order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}

// Preview shortens s to n runes for logs and reports.
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
