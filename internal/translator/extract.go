package translator

import "strings"

// ExtractSQL pulls the SQL statement out of a model response: the first
// ```sql fenced block, else the first fenced block of any kind, else the
// whole response trimmed.
func ExtractSQL(response string) string {
	var first string
	found := false

	rest := response
	for {
		i := strings.Index(rest, "```")
		if i < 0 {
			break
		}
		tag, body := splitFenceTag(rest[i+3:])

		var block string
		if end := strings.Index(body, "```"); end >= 0 {
			block, rest = body[:end], body[end+3:]
		} else {
			block, rest = body, ""
		}
		block = strings.TrimSpace(block)

		if strings.EqualFold(tag, "sql") {
			return block
		}
		if !found {
			first, found = block, true
		}
		if rest == "" {
			break
		}
	}

	if found {
		return first
	}
	return strings.TrimSpace(response)
}

// splitFenceTag separates the info string after an opening fence from the
// block body.
func splitFenceTag(s string) (tag, body string) {
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		// single line: ```sql SELECT 1```
		if len(s) > 4 && strings.EqualFold(s[:3], "sql") && (s[3] == ' ' || s[3] == '\t') {
			return "sql", s[4:]
		}
		return "", s
	}
	line := strings.TrimSpace(s[:nl])
	if line == "" {
		return "", s[nl+1:]
	}
	if strings.ContainsAny(line, " \t") || looksLikeSQL(line) {
		return "", s
	}
	return line, s[nl+1:]
}

func looksLikeSQL(word string) bool {
	switch strings.ToUpper(word) {
	case "SELECT", "WITH":
		return true
	}
	return false
}
