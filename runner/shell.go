package runner

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"cmdvault/template"
)

// QuoteBinding shell-quotes every value so it reaches the command as one
// literal word. Substitution never quotes on its own; callers that want
// literal-value semantics for supplied values opt in here.
func QuoteBinding(b template.Binding) (template.Binding, error) {
	quoted := make(template.Binding, len(b))
	for name, value := range b {
		q, err := syntax.Quote(value, syntax.LangPOSIX)
		if err != nil {
			return nil, fmt.Errorf("quote value for @%s: %w", name, err)
		}
		quoted[name] = q
	}
	return quoted, nil
}

// CheckSyntax parses command as a POSIX shell program without running it.
func CheckSyntax(command string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(command), ""); err != nil {
		return fmt.Errorf("invalid shell syntax: %w", err)
	}
	return nil
}
