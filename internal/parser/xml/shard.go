package xmlparser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// Job is one record element, re-encoded as a standalone XML fragment.
type Job struct {
	Index int
	Bytes []byte
}

// newDecoder returns a strict decoder that understands declared charsets and
// HTML named entities (&nbsp;, &reg;, ...), which product feeds use freely.
func newDecoder(r io.Reader, bufSize int) *xml.Decoder {
	dec := xml.NewDecoder(bufio.NewReaderSize(r, bufSize))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// Shard splits a stream into <recordTag> elements that are direct children
// of the document root, re-encoding each subtree into its own buffer. Unlike
// a tolerant scanner it reads the whole document: any syntax error,
// truncation, or a missing root element yields ErrMalformed. Records are
// passed to emit in document order.
func Shard(ctx context.Context, r io.Reader, recordTag string, bufSize int, emit func(Job) error) error {
	if recordTag == "" {
		return fmt.Errorf("xmlparser: record tag required")
	}
	dec := newDecoder(r, bufSize)

	depth := 0
	sawRoot := false
	rootClosed := false
	i := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			if !sawRoot {
				return fmt.Errorf("%w: no root element", ErrMalformed)
			}
			return nil
		}
		if err != nil {
			return classify(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if rootClosed {
					return fmt.Errorf("%w: line %d: content after root element", ErrMalformed, line(dec))
				}
				sawRoot = true
				depth++
				continue
			}
			if depth != 1 || t.Name.Local != recordTag {
				depth++
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := capture(dec, t)
			if err != nil {
				return err
			}
			if err := emit(Job{Index: i, Bytes: b}); err != nil {
				return err
			}
			i++
		case xml.EndElement:
			depth--
			if depth == 0 {
				rootClosed = true
			}
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("%w: line %d: text outside root element", ErrMalformed, line(dec))
			}
		}
	}
}

// capture re-encodes the subtree opened by start, consuming tokens up to and
// including its matching end element.
func capture(dec *xml.Decoder, start xml.StartElement) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeToken(start); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: truncated <%s> record", ErrMalformed, start.Name.Local)
		}
		if err != nil {
			return nil, classify(err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.ProcInst:
			continue
		}
		if err := enc.EncodeToken(tok); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func line(dec *xml.Decoder) int {
	l, _ := dec.InputPos()
	return l
}
