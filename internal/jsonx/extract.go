package jsonx

import (
	"regexp"
	"strings"
)

var fencedBlockRegex = regexp.MustCompile("(?is)```(?:json)?[ \\t]*\\r?\\n?(.*?)```")

// StripFence returns the content of the first fenced block in text, or the
// trimmed text when there is no complete fence.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if matches := fencedBlockRegex.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return text
}

// Extract returns the first balanced top-level JSON object in text. Braces
// inside string literals are ignored. It returns false when no '{' exists or
// the object never closes.
func Extract(text string) (string, bool) {
	text = StripFence(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	var sc scanner
	depth := 0
	for i := start; i < len(text); i++ {
		c := text[i]
		if sc.step(c) != stateOutside {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
