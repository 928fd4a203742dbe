// Package sanitizer screens documents for script and action injection and
// normalises extracted text before it is chunked and embedded.
package sanitizer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrThreatDetected is the sentinel every ThreatError unwraps to.
var ErrThreatDetected = errors.New("malicious content detected")

// Verdict is the outcome of a scan. Reason is empty when the input is clean.
type Verdict struct {
	Dangerous bool
	Reason    string
}

// ThreatError carries where a threat was found. Page is 0 for the raw file scan.
type ThreatError struct {
	Reason string
	Page   int
}

func (e *ThreatError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("document rejected: malicious content detected on page %d (%s)", e.Page, e.Reason)
	}
	return fmt.Sprintf("document rejected: malicious content detected (%s)", e.Reason)
}

func (e *ThreatError) Unwrap() error { return ErrThreatDetected }

// Scanner matches input against the injection catalogue. It is stateless and
// safe for concurrent use.
type Scanner struct {
	patterns []pattern
}

func NewScanner() *Scanner {
	return &Scanner{patterns: catalogue}
}

// Size returns the number of patterns in the catalogue.
func (s *Scanner) Size() int { return len(s.patterns) }

// ScanText reports the first pattern that matches text.
func (s *Scanner) ScanText(text string) Verdict {
	if text == "" {
		return Verdict{}
	}
	for _, p := range s.patterns {
		if p.re.MatchString(text) {
			return Verdict{Dangerous: true, Reason: p.reason}
		}
	}
	return Verdict{}
}

// ScanBytes decodes raw as Latin-1, one rune per byte, then scans it. Nothing
// in the stream is lost or replaced, so payloads inside binary objects are
// still visible to the patterns.
func (s *Scanner) ScanBytes(raw []byte) Verdict {
	if len(raw) == 0 {
		return Verdict{}
	}
	return s.ScanText(latin1(raw))
}

func latin1(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		if c < 0x80 {
			b.WriteByte(c)
			continue
		}
		b.WriteRune(rune(c))
	}
	return b.String()
}

// Check is ScanText returning a ThreatError tagged with page on a hit.
func (s *Scanner) Check(text string, page int) error {
	if v := s.ScanText(text); v.Dangerous {
		return &ThreatError{Reason: v.Reason, Page: page}
	}
	return nil
}
