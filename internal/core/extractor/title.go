package extractor

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	digitsOnly = regexp.MustCompile(`^\d+$`)
	pageLine   = regexp.MustCompile(`(?i)^page\s+\d+`)
)

// InferTitle guesses a title from the first page. Titles are short lines near
// the top; up to three of them are joined when the result stays readable.
func InferTitle(firstPage string) string {
	var lines []string
	for _, l := range strings.Split(firstPage, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	var candidates []string
	for i, l := range lines[:min(10, len(lines))] {
		n := utf8.RuneCountInString(l)
		if n < 5 || digitsOnly.MatchString(l) || pageLine.MatchString(l) {
			continue
		}
		switch {
		case n <= 100:
			candidates = append(candidates, l)
		case n <= 200 && i < 5:
			candidates = append(candidates, l)
		}
	}

	if len(candidates) == 0 {
		for _, l := range lines[:min(5, len(lines))] {
			if utf8.RuneCountInString(l) > 10 {
				return l
			}
		}
		return ""
	}
	if len(candidates) >= 2 {
		combined := strings.Join(candidates[:min(3, len(candidates))], " ")
		if utf8.RuneCountInString(combined) <= 200 {
			return combined
		}
	}
	return candidates[0]
}

// ResolveTitle prefers the metadata title, then the first page, then the
// file name without its extension.
func ResolveTitle(metaTitle, firstPage, fileName string) string {
	if t := strings.TrimSpace(metaTitle); t != "" {
		return t
	}
	if t := InferTitle(firstPage); t != "" {
		return t
	}
	base := filepath.Base(fileName)
	if t := strings.TrimSuffix(base, filepath.Ext(base)); t != "" && t != "." {
		return t
	}
	return fileName
}
