package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// fencePattern matches the body of a markdown code fence.
	fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n?(.*?)```")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON extracts the first JSON object from an LLM response.
// Fenced code blocks win over bare text. Comments and trailing commas are removed.
func ExtractJSON(content string) string {
	return extract(content, '{')
}

// ExtractJSONArray extracts the first JSON array from an LLM response.
func ExtractJSONArray(content string) string {
	return extract(content, '[')
}

func extract(content string, open byte) string {
	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		if s := firstValid(m[1], open); s != "" {
			return s
		}
	}
	return firstValid(content, open)
}

// firstValid returns the first span starting at open whose brackets close
// and which parses once cleaned. Brackets inside string literals and //
// comments are ignored.
func firstValid(s string, open byte) string {
	for start := 0; start < len(s); start++ {
		idx := strings.IndexByte(s[start:], open)
		if idx < 0 {
			break
		}
		start += idx
		if end := closingIndex(s, start); end > 0 {
			if cleaned := cleanJSON(s[start : end+1]); json.Valid([]byte(cleaned)) {
				return cleaned
			}
		}
	}
	return ""
}

func closingIndex(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return -1
			}
			i += nl
		case ch == '{' || ch == '[':
			depth++
		case ch == '}' || ch == ']':
			depth--
			if depth == 0 {
				return i
			}
			if depth < 0 {
				return -1
			}
		}
	}
	return -1
}

// cleanJSON removes // comments and trailing commas, both common in model output.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a // comment from a JSON line, respecting string values:
//
//	"url": "https://visitlisbon.com", // tourism board  ->  "url": "https://visitlisbon.com",
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
