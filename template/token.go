// Package template scans stored command strings for @name placeholders and
// rewrites them into final shell commands.
package template

import (
	"unicode"
	"unicode/utf8"
)

// Marker starts a placeholder.
const Marker = '@'

// Token is one placeholder occurrence. Start and End are byte offsets into
// the raw template covering the marker, the name and any ":description".
type Token struct {
	Name        string
	Description string
	Start       int
	End         int
}

// Tokenize returns the placeholders in raw, left to right.
func Tokenize(raw string) ([]Token, error) {
	var tokens []Token
	for i := 0; i < len(raw); i++ {
		if raw[i] != Marker || escaped(raw, i) {
			continue
		}
		nameEnd := scanIdent(raw, i+1)
		if nameEnd == i+1 {
			continue // literal marker
		}
		tok := Token{Name: raw[i+1 : nameEnd], Start: i, End: nameEnd}

		if nameEnd < len(raw) && raw[nameEnd] == ':' {
			descEnd := scanDescription(raw, nameEnd+1)
			if descEnd == nameEnd+1 {
				return nil, &SyntaxError{
					Pos:  nameEnd,
					Name: tok.Name,
					Msg:  "empty description after ':'",
				}
			}
			tok.Description = raw[nameEnd+1 : descEnd]
			tok.End = descEnd
		}

		tokens = append(tokens, tok)
		i = tok.End - 1
	}
	return tokens, nil
}

// escaped reports whether the byte at i is preceded by an odd run of backslashes.
func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func scanIdent(s string, start int) int {
	if start >= len(s) || !isIdentStart(s[start]) {
		return start
	}
	i := start + 1
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return i
}

// scanDescription returns the end of the description beginning at start.
// Normally that is the next whitespace. A description whose remaining text up
// to the end of the string is nothing but label words is allowed to span
// them, so trailing labels like "@msg:Commit message" are consumed whole.
func scanDescription(s string, start int) int {
	end := nextSpace(s, start)
	if end == start || end == len(s) {
		return end
	}
	if tail, ok := trailingLabel(s, end); ok {
		return tail
	}
	return end
}

func nextSpace(s string, start int) int {
	for i := start; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			return i
		}
		i += size
	}
	return len(s)
}

// trailingLabel checks whether s[from:] is only label words separated by
// blanks. Words must start with a letter or digit, so flags like "-la" end
// the description. It returns the end of the last word.
func trailingLabel(s string, from int) (int, bool) {
	last := from
	inWord := false
	for i := from; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == ' ' || r == '\t':
			inWord = false
		case !inWord && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			inWord = true
			last = i + size
		case inWord && isLabelRune(r):
			last = i + size
		default:
			return 0, false
		}
		i += size
	}
	return last, true
}

func isLabelRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == ','
}
