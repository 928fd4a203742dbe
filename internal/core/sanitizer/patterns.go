package sanitizer

import "regexp"

type pattern struct {
	re     *regexp.Regexp
	reason string
}

func mustPattern(expr, reason string) pattern {
	return pattern{re: regexp.MustCompile(`(?is)` + expr), reason: reason}
}

// Ordered from most specific to most general. Applied to the raw file and to
// extracted text alike.
var catalogue = []pattern{
	// markup
	mustPattern(`<\s*script[\s\S]*?>`, "HTML <script> tag"),
	mustPattern(`</\s*script\s*>`, "HTML </script> tag"),
	mustPattern(`<[^>]+\s+on\w+\s*=\s*["']?[^"'>\s]`, "HTML event handler (onXxx=)"),
	mustPattern(`(?:javascript|vbscript|livescript|mocha)\s*:`, "javascript:/vbscript: URI scheme"),
	mustPattern(`data\s*:\s*(?:text/html|application/javascript|text/javascript)`, "data: URI with executable MIME type"),
	mustPattern(`<\s*(?:iframe|object|embed|applet)[\s>]`, "embedded frame/object/applet tag"),
	mustPattern(`<\s*svg[\s\S]*?(?:onload|onerror|onclick)\s*=`, "SVG with event handler"),
	mustPattern(`<\s*meta[^>]+http-equiv\s*=\s*["']?refresh`, "meta refresh redirect"),

	// script bodies
	mustPattern(`document\s*\.\s*(?:cookie|write|writeln|location|domain)`, "DOM manipulation (document.x)"),
	mustPattern(`(?:\.innerHTML|\.outerHTML|\.insertAdjacentHTML)\s*=`, "innerHTML/outerHTML assignment"),
	mustPattern(`\beval\s*\(`, "eval() call"),
	mustPattern(`\bsetTimeout\s*\(\s*["']`, "setTimeout with string argument"),
	mustPattern(`\bsetInterval\s*\(\s*["']`, "setInterval with string argument"),
	mustPattern(`\bFunction\s*\(`, "Function() constructor"),
	mustPattern(`window\s*\.\s*location\s*(?:=|\.href\s*=|\.replace\s*\()`, "window.location redirect"),

	// obfuscation
	mustPattern(`(?:&#x?0*(?:3[Cc]|60)\s*;?\s*)+s\s*c\s*r\s*i\s*p\s*t`, "HTML-entity-encoded <script"),
	mustPattern(`(?:amF2YXNjcmlwdA|amF2YXNjcmlwdDo)`, "base64-encoded javascript:"),

	// PDF actions, mostly visible in the raw file
	mustPattern(`/(?:JavaScript|JS)\s*[(<\[]`, "PDF /JavaScript action"),
	mustPattern(`/(?:OpenAction|AA)\s*[(<\[]`, "PDF /OpenAction or /AA trigger"),
	mustPattern(`/URI\s*\([^)]*javascript:`, "PDF /URI with javascript: scheme"),
	mustPattern(`/Launch\s*[(<\[]`, "PDF /Launch action"),
	mustPattern(`/SubmitForm\s*[(<\[]`, "PDF /SubmitForm action"),
	mustPattern(`/ImportData\s*[(<\[]`, "PDF /ImportData action"),
	mustPattern(`/RichMedia\s*[(<\[]`, "PDF /RichMedia action"),
	mustPattern(`/EmbeddedFiles?\s*[(<\[]`, "PDF embedded file"),
}
