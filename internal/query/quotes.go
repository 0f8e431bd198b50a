package query

import (
	"strings"

	"github.com/sqlassist/sqlassist-go/internal/database"
)

// SQLite resolves an unknown double-quoted identifier to a string literal
// instead of failing, so SELECT "Passenger Class" FROM data returns the text
// 'Passenger Class' for every row. On such engines, quoted names are checked
// against the relation before the query runs.

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokPunct
	tokOp
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits a statement into words, double-quoted identifiers,
// comparison operators and the punctuation the resolver cares about. String literals, other identifier
// quoting styles and comments are skipped.
func tokenize(q string) []token {
	var toks []token
	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case c == '\'':
			i = skipQuoted(q, i, '\'')
		case c == '`':
			i = skipQuoted(q, i, '`')
		case c == '[':
			end := strings.IndexByte(q[i:], ']')
			if end < 0 {
				return toks
			}
			i += end + 1
		case c == '"':
			text, next := readQuoted(q, i)
			toks = append(toks, token{kind: tokQuoted, text: text})
			i = next
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			end := strings.IndexByte(q[i:], '\n')
			if end < 0 {
				return toks
			}
			i += end + 1
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			end := strings.Index(q[i+2:], "*/")
			if end < 0 {
				return toks
			}
			i += end + 4
		case isWordByte(c):
			start := i
			for i < len(q) && isWordByte(q[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: strings.ToUpper(q[start:i])})
		case strings.IndexByte("=<>!", c) >= 0:
			start := i
			for i < len(q) && strings.IndexByte("=<>!", q[i]) >= 0 {
				i++
			}
			toks = append(toks, token{kind: tokOp, text: q[start:i]})
		case c == '.' || c == '(' || c == ')' || c == ',':
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		default:
			i++
		}
	}
	return toks
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// skipQuoted returns the index after the quoted section starting at i.
// A doubled quote inside the section is an escaped quote.
func skipQuoted(q string, i int, quote byte) int {
	for j := i + 1; j < len(q); j++ {
		if q[j] == quote {
			if j+1 < len(q) && q[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(q)
}

func readQuoted(q string, i int) (string, int) {
	end := skipQuoted(q, i, '"')
	inner := q[i+1 : end]
	inner = strings.TrimSuffix(inner, `"`)
	return strings.ReplaceAll(inner, `""`, `"`), end
}

var tableKeywords = map[string]bool{
	"FROM": true, "JOIN": true, "INTO": true, "UPDATE": true, "TABLE": true,
}

// literalKeywords introduce an operand that SQLite users commonly write as a
// double-quoted string: name LIKE "%Mrs%", CASE ... THEN "adult".
var literalKeywords = map[string]bool{
	"LIKE": true, "GLOB": true, "REGEXP": true, "MATCH": true,
	"BETWEEN": true, "THEN": true, "ELSE": true,
}

// literalOperands returns the indexes of double-quoted tokens that sit where
// a value is expected: after a comparison operator or literal keyword, after
// the AND of a BETWEEN, or as an item of an IN (...) value list.
func literalOperands(toks []token) map[int]bool {
	lit := make(map[int]bool)
	depth := 0
	var lists []int
	between, betweenAnd := false, -1

	for i, tok := range toks {
		switch {
		case tok.kind == tokPunct && tok.text == "(":
			depth++
			prev, next := tokenAt(toks, i-1), tokenAt(toks, i+1)
			if prev.kind == tokWord && prev.text == "IN" &&
				!(next.kind == tokWord && (next.text == "SELECT" || next.text == "WITH" || next.text == "VALUES")) {
				lists = append(lists, depth)
			}
		case tok.kind == tokPunct && tok.text == ")":
			if n := len(lists); n > 0 && lists[n-1] == depth {
				lists = lists[:n-1]
			}
			depth--
		case tok.kind == tokWord && tok.text == "BETWEEN":
			between = true
		case tok.kind == tokWord && tok.text == "AND" && between:
			between, betweenAnd = false, i
		}

		if tok.kind != tokQuoted {
			continue
		}
		prev := tokenAt(toks, i-1)
		inList := len(lists) > 0 && lists[len(lists)-1] == depth
		switch {
		case prev.kind == tokOp:
			lit[i] = true
		case prev.kind == tokWord && literalKeywords[prev.text]:
			lit[i] = true
		case betweenAnd >= 0 && i-1 == betweenAnd:
			lit[i] = true
		case inList && prev.kind == tokPunct && (prev.text == "(" || prev.text == ","):
			lit[i] = true
		}
	}
	return lit
}

// unresolvedQuoted returns the first double-quoted name in q that is used as
// a column reference outside a value position, but names neither a column of
// rel, the relation itself, nor an alias or CTE defined in q. It returns ""
// when every name resolves.
func unresolvedQuoted(q string, rel *database.Relation) string {
	toks := tokenize(q)

	known := make(map[string]bool)
	if rel != nil {
		known[strings.ToLower(rel.Name)] = true
		for _, c := range rel.Columns {
			known[strings.ToLower(c.Name)] = true
		}
	}

	literals := literalOperands(toks)

	var refs []string
	for i, tok := range toks {
		if tok.kind != tokQuoted || literals[i] {
			continue
		}
		name := strings.ToLower(tok.text)
		prev, next := tokenAt(toks, i-1), tokenAt(toks, i+1)

		switch {
		case prev.kind == tokWord && prev.text == "AS":
			known[name] = true
		case prev.kind == tokWord && tableKeywords[prev.text]:
			known[name] = true
		case isTableRef(toks, i-1), prev.kind == tokPunct && prev.text == ")":
			// implicit alias: FROM data "d", COUNT(*) "n"
			known[name] = true
		case next.kind == tokWord && next.text == "AS" && tokenAt(toks, i+2).text == "(":
			// CTE: WITH "t" AS (...)
			known[name] = true
		case next.kind == tokPunct && next.text == ".":
			// qualifier
		case prev.kind == tokPunct && prev.text == ".":
			// qualified column, the engine reports these itself
		default:
			refs = append(refs, tok.text)
		}
	}

	for _, ref := range refs {
		if !known[strings.ToLower(ref)] {
			return ref
		}
	}
	return ""
}

func tokenAt(toks []token, i int) token {
	if i < 0 || i >= len(toks) {
		return token{kind: tokPunct}
	}
	return toks[i]
}

// isTableRef reports whether toks[i] names a table directly after a table
// keyword.
func isTableRef(toks []token, i int) bool {
	if i < 1 || i >= len(toks) {
		return false
	}
	if toks[i].kind == tokPunct {
		return false
	}
	prev := toks[i-1]
	return prev.kind == tokWord && tableKeywords[prev.text]
}

// checkQuotedIdentifiers returns a column-not-found error for the first
// unresolved double-quoted reference in q, or nil.
func checkQuotedIdentifiers(q string, rel *database.Relation) error {
	if name := unresolvedQuoted(q, rel); name != "" {
		return database.ColumnNotFound(name)
	}
	return nil
}
