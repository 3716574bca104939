package template

import "fmt"

// SyntaxError reports a malformed placeholder. Pos is the byte offset of the
// offending character in the raw template.
type SyntaxError struct {
	Pos  int
	Name string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at position %d (@%s): %s", e.Pos, e.Name, e.Msg)
}

// UnboundParameterError reports a parameter that has no value in the binding.
type UnboundParameterError struct {
	Name string
}

func (e *UnboundParameterError) Error() string {
	return fmt.Sprintf("parameter @%s is not bound", e.Name)
}
