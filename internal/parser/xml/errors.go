package xmlparser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed reports input that is not well-formed XML, including
// truncated files and files without a root element.
var ErrMalformed = errors.New("malformed xml")

// classify wraps decoder errors. Syntax errors and truncation become
// ErrMalformed; anything else (read errors from the underlying source) is
// passed through with context.
func classify(err error) error {
	var se *xml.SyntaxError
	switch {
	case errors.As(err, &se):
		return fmt.Errorf("%w: line %d: %s", ErrMalformed, se.Line, se.Msg)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: truncated input", ErrMalformed)
	default:
		return fmt.Errorf("read xml: %w", err)
	}
}
