package hl7

import (
	"fmt"
	"strings"
)

type DelimiterKind int

const (
	FieldDelimiter DelimiterKind = iota
	ComponentDelimiter
	SubcomponentDelimiter
	SubSubcomponentDelimiter
	EscapeCharacter
)

func (k DelimiterKind) String() string {
	switch k {
	case FieldDelimiter:
		return "field"
	case ComponentDelimiter:
		return "component"
	case SubcomponentDelimiter:
		return "subcomponent"
	case SubSubcomponentDelimiter:
		return "sub-subcomponent"
	case EscapeCharacter:
		return "escape"
	}
	return fmt.Sprintf("DelimiterKind(%d)", int(k))
}

// Delimiters holds the five separator characters used while parsing.
// The value is copied into every Message and never changes after that.
type Delimiters struct {
	Field           rune
	Component       rune
	Subcomponent    rune
	SubSubcomponent rune
	Escape          rune
}

// DefaultDelimiters returns | ^ ~ \ &.
func DefaultDelimiters() Delimiters {
	return Delimiters{
		Field:           '|',
		Component:       '^',
		Subcomponent:    '~',
		SubSubcomponent: '\\',
		Escape:          '&',
	}
}

// For returns the delimiter of the given kind.
func (d Delimiters) For(kind DelimiterKind) rune {
	switch kind {
	case FieldDelimiter:
		return d.Field
	case ComponentDelimiter:
		return d.Component
	case SubcomponentDelimiter:
		return d.Subcomponent
	case SubSubcomponentDelimiter:
		return d.SubSubcomponent
	case EscapeCharacter:
		return d.Escape
	}
	return 0
}

// EncodingCharacters renders the delimiters in header order, e.g. "^~\&".
func (d Delimiters) EncodingCharacters() string {
	return string([]rune{d.Component, d.Subcomponent, d.SubSubcomponent, d.Escape})
}

func (d Delimiters) Validate() error {
	all := []rune{d.Field, d.Component, d.Subcomponent, d.SubSubcomponent, d.Escape}
	seen := make(map[rune]DelimiterKind, len(all))
	for i, r := range all {
		kind := DelimiterKind(i)
		switch r {
		case 0:
			return &Error{Code: ErrCodeDelimiters, Message: kind.String() + " delimiter is not set"}
		case '\r', '\n':
			return &Error{Code: ErrCodeDelimiters, Message: kind.String() + " delimiter cannot be a line break"}
		}
		if prev, ok := seen[r]; ok {
			return &Error{
				Code:    ErrCodeDelimiters,
				Message: fmt.Sprintf("%s and %s delimiters are both %q", prev, kind, r),
			}
		}
		seen[r] = kind
	}
	return nil
}

// DelimitersFromHeader reads the delimiters declared by a header line: the
// character right after the header code is the field delimiter and the next
// field lists component, subcomponent, sub-subcomponent and escape in order.
// Characters missing from a short declaration keep their default.
func DelimitersFromHeader(line string) (Delimiters, error) {
	d := DefaultDelimiters()
	end := headerEnd(line)
	if end < 0 {
		return d, &Error{Code: ErrCodeMissingHeader, Message: "line is not a header", Value: truncate(line, 16)}
	}
	rest := []rune(line[end:])
	if len(rest) == 0 {
		return d, &Error{Code: ErrCodeDelimiters, Message: "header declares no field delimiter"}
	}
	d.Field = rest[0]
	encoding := string(rest[1:])
	if i := strings.IndexRune(encoding, d.Field); i >= 0 {
		encoding = encoding[:i]
	}
	targets := []*rune{&d.Component, &d.Subcomponent, &d.SubSubcomponent, &d.Escape}
	for i, r := range []rune(encoding) {
		if i >= len(targets) {
			break
		}
		*targets[i] = r
	}
	if err := d.Validate(); err != nil {
		return DefaultDelimiters(), err
	}
	return d, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
