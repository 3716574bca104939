package template

import "strings"

// Template is a raw command string with its placeholders resolved up front.
// It is immutable once parsed.
type Template struct {
	raw    string
	tokens []Token
	params *ParameterSet
}

// Parse tokenizes raw and builds its parameter set.
func Parse(raw string) (*Template, error) {
	tokens, err := Tokenize(raw)
	if err != nil {
		return nil, err
	}
	return &Template{
		raw:    raw,
		tokens: tokens,
		params: NewParameterSet(tokens),
	}, nil
}

// Literal wraps raw as a template without placeholders. Markers in raw are
// kept as plain text.
func Literal(raw string) *Template {
	return &Template{raw: raw, params: NewParameterSet(nil)}
}

// Raw returns the original template text.
func (t *Template) Raw() string { return t.raw }

// Tokens returns a copy of the placeholder occurrences.
func (t *Template) Tokens() []Token {
	out := make([]Token, len(t.tokens))
	copy(out, t.tokens)
	return out
}

// Params returns the template's parameter set.
func (t *Template) Params() *ParameterSet { return t.params }

// Substitute replaces every placeholder span, description included, with its
// bound value. Values are inserted verbatim and are not scanned again.
func (t *Template) Substitute(b Binding) (string, error) {
	if name, missing := b.Missing(t.params); missing {
		return "", &UnboundParameterError{Name: name}
	}
	if len(t.tokens) == 0 {
		return t.raw, nil
	}

	var sb strings.Builder
	sb.Grow(len(t.raw))
	prev := 0
	for _, tok := range t.tokens {
		sb.WriteString(t.raw[prev:tok.Start])
		sb.WriteString(b[tok.Name])
		prev = tok.End
	}
	sb.WriteString(t.raw[prev:])
	return sb.String(), nil
}

// Preview substitutes the values present in b and leaves the remaining
// placeholders as bare @name markers without their descriptions.
func (t *Template) Preview(b Binding) string {
	var sb strings.Builder
	prev := 0
	for _, tok := range t.tokens {
		sb.WriteString(t.raw[prev:tok.Start])
		if v, ok := b[tok.Name]; ok {
			sb.WriteString(v)
		} else {
			sb.WriteByte(Marker)
			sb.WriteString(tok.Name)
		}
		prev = tok.End
	}
	sb.WriteString(t.raw[prev:])
	return sb.String()
}
