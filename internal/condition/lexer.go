package condition

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokIdent  tokenKind = iota // field path or keyword
	tokCmp                     // == != >= <= > <
	tokString                  // "…" or '…'
	tokNumber
	tokBool
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

// lex splits an expression into tokens. Identifiers may contain dots so that
// "event.title_name" arrives as a single path token.
func lex(src string) ([]token, error) {
	var out []token
	for i := 0; i < len(src); {
		ch := rune(src[i])
		switch {
		case unicode.IsSpace(ch):
			i++

		case ch == '(':
			out = append(out, token{tokLParen, "(", i})
			i++

		case ch == ')':
			out = append(out, token{tokRParen, ")", i})
			i++

		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				out = append(out, token{tokCmp, src[i : i+2], i})
				i += 2
				continue
			}
			if ch == '=' || ch == '!' {
				return nil, fmt.Errorf("unexpected %q at position %d", ch, i)
			}
			out = append(out, token{tokCmp, string(ch), i})
			i++

		case ch == '"' || ch == '\'':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			out = append(out, token{tokString, s, i})
			i = next

		case unicode.IsDigit(ch) || (ch == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			out = append(out, token{tokNumber, src[i:j], i})
			i = j

		case unicode.IsLetter(ch) || ch == '_':
			j := i + 1
			for j < len(src) && isIdentRune(rune(src[j])) {
				j++
			}
			word := src[i:j]
			if lw := strings.ToLower(word); lw == "true" || lw == "false" {
				out = append(out, token{tokBool, lw, i})
			} else {
				out = append(out, token{tokIdent, word, i})
			}
			i = j

		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}
	return append(out, token{tokEOF, "", len(src)}), nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

// lexString reads a quoted literal starting at src[start] and returns its
// unescaped contents and the index just past the closing quote.
func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	for j := start + 1; j < len(src); j++ {
		c := src[j]
		switch {
		case c == '\\' && j+1 < len(src):
			j++
			b.WriteByte(src[j])
		case c == quote:
			return b.String(), j + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string starting at position %d", start)
}
