package render

import "fmt"

// RenderError reports a failure to produce the report document. No partial
// document accompanies it.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// UnsupportedRuneError is a character the document fonts cannot show.
type UnsupportedRuneError struct {
	Rune rune
	Text string
}

func (e *UnsupportedRuneError) Error() string {
	return fmt.Sprintf("unsupported character %q (U+%04X) in %q", e.Rune, e.Rune, e.Text)
}
